// Package queue provides the bounded byte pipe that carries synthesized
// audio from the network reader to the consumer. It applies backpressure
// to the producer and propagates close errors to the consumer.
package queue
