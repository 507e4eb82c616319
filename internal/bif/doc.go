// Package bif decodes the binary preview-index ("BIF") files Plex generates
// next to each media part.
//
// A BIF file starts with an 8-byte magic number, followed by a little-endian
// frame count at offset 12 and an index table starting at offset 64. Each
// index record is 8 bytes: a uint32 timestamp in seconds and a uint32 byte
// offset into the file. A frame spans from its own offset to the next
// record's offset, and the last frame runs to the end of the file.
//
// The package only locates frames; it never decodes the JPEG payloads.
package bif
