// Package database provides read-only access to the Plex Media Server
// library database.
//
// The library database is owned by Plex; this package never writes to it.
// Connections are opened with mode=ro and a busy timeout so lookups keep
// working while Plex holds a write lock.
//
// Two lookups are provided, both keyed by metadata item id and resolved by
// joining metadata_items, media_items and media_parts:
//   - PartHashes returns the content hashes of every part, most recently
//     updated first. The hashes locate the pre-generated index bundles.
//   - PartFiles returns the file path and duration of every part, longest
//     first. These are the inputs for on-demand frame extraction.
package database
