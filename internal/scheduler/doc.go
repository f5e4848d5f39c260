// Package scheduler turns section text into playable chunks. The main
// scheduler feeds playback in order; the prefetch scheduler warms the cache
// for the start of the next section.
package scheduler
