package bif

import "encoding/binary"

// Encode builds a BIF file holding frames spaced interval seconds apart.
// It is the inverse of Parse and is mostly useful for fixtures.
func Encode(frames [][]byte, interval int) []byte {
	tableEnd := HeaderSize + len(frames)*RecordSize
	size := tableEnd
	for _, f := range frames {
		size += len(f)
	}

	out := make([]byte, size)
	copy(out, Magic)
	binary.LittleEndian.PutUint32(out[frameCountOffset:], uint32(len(frames)))

	offset := tableEnd
	for i, f := range frames {
		record := out[HeaderSize+i*RecordSize:]
		binary.LittleEndian.PutUint32(record, uint32(i*interval))
		binary.LittleEndian.PutUint32(record[4:], uint32(offset))
		copy(out[offset:], f)
		offset += len(f)
	}
	return out
}
