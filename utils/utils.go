// Package utils provides utility functions.
package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
)

var frontmatterBoundaries = regexp.MustCompile(`(?m)^---\r?\n`)

// SplitFrontmatter separates a leading YAML frontmatter block from the
// content. The frontmatter is nil when there is none.
func SplitFrontmatter(content []byte) (frontmatter, body []byte) {
	if !bytes.HasPrefix(content, []byte("---")) {
		return nil, content
	}

	bounds := frontmatterBoundaries.FindAllIndex(content, 2)
	if len(bounds) < 2 || bounds[0][0] != 0 {
		return nil, content
	}
	return content[bounds[0][1]:bounds[1][0]], content[bounds[1][1]:]
}

// RemoveFrontmatter removes the front matter header of a markdown file.
func RemoveFrontmatter(content []byte) []byte {
	_, body := SplitFrontmatter(content)
	return body
}

// ExpandPath expands tilde and all environment variables from the given path.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return os.ExpandEnv(path)
}

var markdownExtensions = []string{
	".md", ".mdown", ".mkdn", ".mkd", ".markdown",
}

// IsMarkdownFile returns whether the filename has a markdown extension.
func IsMarkdownFile(filename string) bool {
	ext := filepath.Ext(filename)
	if ext == "" {
		// By default, assume it's a markdown file.
		return true
	}

	for _, v := range markdownExtensions {
		if strings.EqualFold(ext, v) {
			return true
		}
	}

	return false
}
