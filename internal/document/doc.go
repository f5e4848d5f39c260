// Package document turns markdown and plain text files into sections of
// text units for reading aloud.
package document
