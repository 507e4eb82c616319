// Package thumbnails serves seek-preview images for Plex library items.
//
// Two backends implement Source:
//
//   - IndexSource reads the BIF preview indexes Plex generates during
//     library analysis. Resolution is whatever the index interval is,
//     typically a few seconds.
//   - OnDemandSource runs ffmpeg against the media file and keeps the
//     results as JPEGs under a cache directory. Timestamps are bucketed to
//     100ms.
//
// Both keep an aging in-memory cache per item. Whether an item has
// thumbnails is decided once, on first use, and remembered (including a
// negative answer) until Invalidate is called.
//
// A Manager fronts the selected backend. Holder keeps one Manager per
// process:
//
//	var holder thumbnails.Holder
//	m, err := holder.Create(thumbnails.Options{DataDir: dataDir, Store: db})
//	...
//	data, err := m.GetThumbnail(ctx, id, 3500)
//	if errors.Is(err, thumbnails.ErrNotAvailable) {
//		// no thumbnail for this item
//	}
package thumbnails
