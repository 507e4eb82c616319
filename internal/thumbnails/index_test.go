package thumbnails

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plex-thumbnails/internal/bif"
	"plex-thumbnails/internal/filesystem"
)

// scenarioIndex builds a 0x3000 byte index with records at 0s, 2s and 4s,
// each frame filled with its own byte value.
func scenarioIndex() []byte {
	data := make([]byte, 0x3000)
	copy(data, bif.Magic)
	binary.LittleEndian.PutUint32(data[12:], 3)

	records := [][2]uint32{{0, 0x40}, {2, 0x1000}, {4, 0x2000}}
	for i, r := range records {
		binary.LittleEndian.PutUint32(data[bif.HeaderSize+i*bif.RecordSize:], r[0])
		binary.LittleEndian.PutUint32(data[bif.HeaderSize+i*bif.RecordSize+4:], r[1])
	}
	for i := 0x1000; i < 0x2000; i++ {
		data[i] = 0xB1
	}
	for i := 0x2000; i < 0x3000; i++ {
		data[i] = 0xB2
	}
	return data
}

func newTestIndexSource(t *testing.T) (*IndexSource, *fakeStore, string) {
	t.Helper()
	dataDir := t.TempDir()
	store := newFakeStore()
	return NewIndexSource(dataDir, store, 100, filesystem.DefaultRetryConfig()), store, dataDir
}

func TestIndexPath(t *testing.T) {
	got := IndexPath("/plex", "3f2a9c")
	assert.Equal(t, "/plex/Media/localhost/3/f2a9c.bundle/Contents/Indexes/index-sd.bif", filepath.ToSlash(got))
}

func TestIndexSourceScenario(t *testing.T) {
	s, store, dataDir := newTestIndexSource(t)
	store.hashes[7] = []string{"abc123"}
	raw := scenarioIndex()
	writeFile(t, IndexPath(dataDir, "abc123"), raw)

	data, err := s.GetThumbnail(context.Background(), 7, 3500)
	require.NoError(t, err)
	assert.Equal(t, raw[0x1000:0x2000], data)

	// Clamp high lands on the last frame
	data, err = s.GetThumbnail(context.Background(), 7, 3_600_000)
	require.NoError(t, err)
	assert.Equal(t, raw[0x2000:], data)

	// Negative clamps to the first frame
	data, err = s.GetThumbnail(context.Background(), 7, -10)
	require.NoError(t, err)
	assert.Equal(t, raw[0x40:0x1000], data)
}

func TestIndexSourceCacheHitSkipsRead(t *testing.T) {
	s, store, dataDir := newTestIndexSource(t)
	store.hashes[7] = []string{"abc123"}
	path := IndexPath(dataDir, "abc123")
	raw := scenarioIndex()
	writeFile(t, path, raw)

	_, err := s.GetThumbnail(context.Background(), 7, 2000)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	data, err := s.GetThumbnail(context.Background(), 7, 3999)
	require.NoError(t, err, "same frame must come from memory")
	assert.Equal(t, raw[0x1000:0x2000], data)

	_, err = s.GetThumbnail(context.Background(), 7, 4000)
	assert.ErrorIs(t, err, ErrNotAvailable, "uncached frame needs the file")
}

func TestIndexSourceNotAvailable(t *testing.T) {
	s, store, _ := newTestIndexSource(t)
	store.hashes[1] = []string{"deadbeef"}

	has, err := s.HasThumbnails(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = s.GetThumbnail(context.Background(), 1, 1000)
	assert.ErrorIs(t, err, ErrNotAvailable)

	_, err = s.GetThumbnail(context.Background(), 99, 1000)
	assert.ErrorIs(t, err, ErrNotAvailable, "unknown item")
}

func TestIndexSourceCorrupt(t *testing.T) {
	s, store, dataDir := newTestIndexSource(t)
	store.hashes[3] = []string{"ff00"}
	raw := scenarioIndex()
	binary.LittleEndian.PutUint32(raw[bif.HeaderSize:], 5)
	writeFile(t, IndexPath(dataDir, "ff00"), raw)

	has, err := s.HasThumbnails(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, has)

	_, err = s.GetThumbnail(context.Background(), 3, 1000)
	assert.ErrorIs(t, err, bif.ErrCorruptIndex)

	var cerr *bif.CorruptIndexError
	assert.True(t, errors.As(err, &cerr))
}

func TestIndexSourceHasThumbnailsIdempotent(t *testing.T) {
	s, store, dataDir := newTestIndexSource(t)
	store.hashes[7] = []string{"abc123"}
	writeFile(t, IndexPath(dataDir, "abc123"), scenarioIndex())

	first, err := s.HasThumbnails(context.Background(), 7)
	require.NoError(t, err)
	second, err := s.HasThumbnails(context.Background(), 7)
	require.NoError(t, err)

	assert.True(t, first)
	assert.Equal(t, first, second)
	hashCalls, _ := store.calls()
	assert.Equal(t, 1, hashCalls)
}

func TestIndexSourceConcurrentProbesShareOneLookup(t *testing.T) {
	s, store, dataDir := newTestIndexSource(t)
	store.hashes[7] = []string{"abc123"}
	writeFile(t, IndexPath(dataDir, "abc123"), scenarioIndex())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			has, err := s.HasThumbnails(context.Background(), 7)
			assert.NoError(t, err)
			assert.True(t, has)
		}()
	}
	wg.Wait()

	hashCalls, _ := store.calls()
	assert.Equal(t, 1, hashCalls)
}

// slowStore blocks PartHashes until released, failing early only if its own
// context ends.
type slowStore struct {
	*fakeStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowStore) PartHashes(ctx context.Context, id int64) ([]string, error) {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.fakeStore.PartHashes(ctx, id)
}

func TestIndexSourceCanceledCallerLeavesSharedLookupRunning(t *testing.T) {
	dataDir := t.TempDir()
	store := &slowStore{fakeStore: newFakeStore(), started: make(chan struct{}), release: make(chan struct{})}
	store.hashes[7] = []string{"abc123"}
	writeFile(t, IndexPath(dataDir, "abc123"), scenarioIndex())
	s := NewIndexSource(dataDir, store, 100, filesystem.DefaultRetryConfig())

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.HasThumbnails(ctx, 7)
		firstErr <- err
	}()
	<-store.started

	type result struct {
		has bool
		err error
	}
	second := make(chan result, 1)
	go func() {
		has, err := s.HasThumbnails(context.Background(), 7)
		second <- result{has, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled, "the canceled caller stops waiting")

	close(store.release)
	got := <-second
	require.NoError(t, got.err)
	assert.True(t, got.has)

	has, err := s.HasThumbnails(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, has, "the shared result was cached")
}

func TestIndexSourcePicksNewestIndex(t *testing.T) {
	s, store, dataDir := newTestIndexSource(t)
	store.hashes[5] = []string{"aa11", "bb22"}

	older := bif.Encode([][]byte{[]byte("old0"), []byte("old1")}, 10)
	newer := bif.Encode([][]byte{[]byte("new0"), []byte("new1")}, 10)
	writeFile(t, IndexPath(dataDir, "aa11"), older)
	writeFile(t, IndexPath(dataDir, "bb22"), newer)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(IndexPath(dataDir, "aa11"), past, past))

	data, err := s.GetThumbnail(context.Background(), 5, 12_000)
	require.NoError(t, err)
	assert.Equal(t, []byte("new1"), data)
}

func TestIndexSourceNegativeResultIsSticky(t *testing.T) {
	s, store, dataDir := newTestIndexSource(t)
	store.hashes[7] = []string{"abc123"}

	has, err := s.HasThumbnails(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, has)

	writeFile(t, IndexPath(dataDir, "abc123"), scenarioIndex())

	has, err = s.HasThumbnails(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, has, "existence is remembered until invalidated")

	assert.True(t, s.Invalidate(7))

	has, err = s.HasThumbnails(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, has)

	hashCalls, _ := store.calls()
	assert.Equal(t, 2, hashCalls)
}

func TestIndexSourceStoreErrorNotCached(t *testing.T) {
	s, store, _ := newTestIndexSource(t)
	store.setErr(errors.New("database is locked"))

	_, err := s.HasThumbnails(context.Background(), 7)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAvailable)

	store.setErr(nil)
	_, err = s.HasThumbnails(context.Background(), 7)
	require.NoError(t, err)

	hashCalls, _ := store.calls()
	assert.Equal(t, 2, hashCalls)
}

func TestIndexSourceSkipsShortHash(t *testing.T) {
	s, store, _ := newTestIndexSource(t)
	store.hashes[7] = []string{"a", ""}

	has, err := s.HasThumbnails(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestIndexSourceStatsAndClose(t *testing.T) {
	s, store, dataDir := newTestIndexSource(t)
	store.hashes[7] = []string{"abc123"}
	writeFile(t, IndexPath(dataDir, "abc123"), scenarioIndex())

	_, err := s.GetThumbnail(context.Background(), 7, 0)
	require.NoError(t, err)
	_, err = s.GetThumbnail(context.Background(), 7, 2000)
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, 2, stats.Thumbnails)
	assert.Equal(t, int64(0x1000-0x40+0x1000), stats.Bytes)

	s.Close(true)
	assert.Equal(t, SourceStats{}, s.Stats())

	_, err = os.Stat(IndexPath(dataDir, "abc123"))
	assert.NoError(t, err, "Plex files are never removed")
}
