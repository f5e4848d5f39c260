// Package signals delivers reader signals to the host: a structured log,
// a NATS subject tree, a channel, or several of these at once.
package signals
