package synth

import (
	"net/url"
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// unspeakable matches everything outside latin word characters, whitespace,
// CJK ideographs and common CJK punctuation.
var unspeakable = regexp.MustCompile(`[^\w\s\x{4e00}-\x{9fff}，。！？；：、（）《》【】“”‘’]`)

// Normalize prepares text for the backend. Percent-encoded content is
// decoded when it decodes cleanly, the result is NFC-composed and any
// character the backend cannot voice is stripped.
func Normalize(text string) string {
	if decoded, err := url.QueryUnescape(text); err == nil {
		text = decoded
	}
	text = norm.NFC.String(text)
	return unspeakable.ReplaceAllString(text, "")
}
