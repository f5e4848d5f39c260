// Package synth implements the streaming speech-synthesis client. Each call
// opens one websocket session, sends the normalized text followed by an end
// of input marker and exposes the binary audio frames as a bounded stream.
package synth
