// Package playback drives the player from scheduled chunks and keeps the
// reading cursor in step with what is heard.
package playback
