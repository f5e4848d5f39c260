package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// MediaScheme prefixes the virtual URIs players resolve against the cache.
const MediaScheme = "memory://media/"

// Fingerprint derives the cache key for a chunk from the synthesis rate and
// its normalized text.
func Fingerprint(rate int, text string) string {
	data := fmt.Sprintf("%d|%s", rate, text)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// MediaURI returns the virtual URI addressing a fingerprint.
func MediaURI(fingerprint string) string {
	return MediaScheme + fingerprint
}

// ParseMediaURI extracts the fingerprint from a media URI.
func ParseMediaURI(uri string) (string, error) {
	key, ok := strings.CutPrefix(uri, MediaScheme)
	if !ok || key == "" || strings.Contains(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrBadMediaURI, uri)
	}
	return key, nil
}
