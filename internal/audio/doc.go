// Package audio plays chunk playlists. Playlist carries the item and state
// bookkeeping; OtoPlayer renders through oto/v3 and MockPlayer simulates
// rendering for tests.
package audio
