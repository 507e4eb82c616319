// Package agecache implements the two-level cache used for thumbnails: one
// entry per media item, each holding a map of bucket keys to image data.
//
// Every thumbnail carries a rank that is reset to capacityHint+1 whenever it
// is stored or read. Accesses are counted as ticks; every TickThreshold ticks
// the cache sweeps all thumbnails, subtracts TickThreshold from each rank and
// drops those that reach zero. Item entries themselves are never swept, only
// their thumbnails, so per-item metadata such as the location of the source
// file survives eviction.
//
// Decay is batched rather than per access. A thumbnail that is not touched for
// roughly capacityHint accesses falls out of the cache, and the cost of aging
// is paid once every TickThreshold accesses instead of on each one.
package agecache
