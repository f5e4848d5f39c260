package document

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/aloud/internal/ttypes"
	"github.com/dgnsrekt/aloud/utils"
)

// DefaultChapterPattern matches chapter headings of plain text novels such
// as "第十二章 归来" or "Chapter 3".
const DefaultChapterPattern = `^\s*(第[0-9０-９零〇一二三四五六七八九十百千两]+[章回节卷]|(?i:chapter)\s+\d+)`

// Options control how a document is split.
type Options struct {
	// PageChars starts a new page every PageChars characters, at unit
	// boundaries. Zero disables pagination.
	PageChars int

	// SplitLevel is the deepest markdown heading level that starts a new
	// section.
	SplitLevel int

	// IncludeCode reads code blocks instead of skipping them
	IncludeCode bool

	// ChapterPattern starts a new section in plain text files at matching
	// lines. Empty disables chapter detection.
	ChapterPattern string
}

// DefaultOptions returns the default split options.
func DefaultOptions() Options {
	return Options{
		PageChars:      1000,
		SplitLevel:     2,
		ChapterPattern: DefaultChapterPattern,
	}
}

// Document is a parsed file.
type Document struct {
	// Name identifies the document, usually its absolute path
	Name  string
	Title string

	Sections []ttypes.Section
}

// Chars returns the character count of the whole document.
func (d *Document) Chars() int {
	n := 0
	for _, s := range d.Sections {
		n += s.Chars()
	}
	return n
}

// SectionIndex returns the index of the section with id.
func (d *Document) SectionIndex(id string) (int, bool) {
	for i, s := range d.Sections {
		if s.ID == id {
			return i, true
		}
	}
	return 0, false
}

type frontmatter struct {
	Title string `yaml:"title"`
}

// Load reads and parses the file at path. Markdown is detected by
// extension.
func Load(path string, opts Options) (*Document, error) {
	path = utils.ExpandPath(path)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read document: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	if utils.IsMarkdownFile(path) {
		return ParseMarkdown(abs, b, opts)
	}
	return ParseText(abs, b, opts)
}

// ParseText splits plain text into one unit per non-empty line. Lines
// matching the chapter pattern open new sections.
func ParseText(name string, content []byte, opts Options) (*Document, error) {
	var chapter *regexp.Regexp
	if opts.ChapterPattern != "" {
		re, err := regexp.Compile(opts.ChapterPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid chapter pattern: %w", err)
		}
		chapter = re
	}

	b := newBuilder(opts)
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if chapter != nil && chapter.MatchString(line) {
			b.open(line)
		}
		b.add(line)
	}

	return &Document{Name: name, Title: baseTitle(name), Sections: b.finish()}, nil
}

// Paginate sets the page starts of s so that a page begins at the first
// unit boundary at least chars characters after the previous page.
func Paginate(s *ttypes.Section, chars int) {
	s.PageStarts = nil
	if chars <= 0 || len(s.Units) == 0 {
		return
	}

	last := s.BaseChars
	s.PageStarts = []int{last}
	for i := 1; i < len(s.Units); i++ {
		if start := s.UnitStart(i); start-last >= chars {
			s.PageStarts = append(s.PageStarts, start)
			last = start
		}
	}
}

const leadID = "intro"

// builder collects units into sections.
type builder struct {
	opts     Options
	sections []ttypes.Section
	current  *ttypes.Section
	seen     map[string]int
}

func newBuilder(opts Options) *builder {
	return &builder{opts: opts, seen: make(map[string]int)}
}

// open starts a section titled title.
func (b *builder) open(title string) {
	b.flush()
	b.current = &ttypes.Section{ID: b.uniqueID(slug(title)), Title: title}
}

func (b *builder) add(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.current == nil {
		b.current = &ttypes.Section{ID: b.uniqueID(leadID)}
	}
	b.current.Units = append(b.current.Units, ttypes.TextUnit{Index: len(b.current.Units), Text: text})
}

func (b *builder) flush() {
	if b.current == nil || len(b.current.Units) == 0 {
		b.current = nil
		return
	}
	Paginate(b.current, b.opts.PageChars)
	b.sections = append(b.sections, *b.current)
	b.current = nil
}

func (b *builder) finish() []ttypes.Section {
	b.flush()
	return b.sections
}

func (b *builder) uniqueID(id string) string {
	if id == "" {
		id = "section"
	}
	b.seen[id]++
	if n := b.seen[id]; n > 1 {
		return id + "-" + strconv.Itoa(n)
	}
	return id
}

// slug lowercases s and keeps letters and digits, joining words with
// hyphens.
func slug(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			dash = false
		case sb.Len() > 0 && !dash:
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}

func baseTitle(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseFrontmatter(b []byte) (frontmatter, error) {
	var fm frontmatter
	if len(b) == 0 {
		return fm, nil
	}
	if err := yaml.Unmarshal(b, &fm); err != nil {
		return fm, fmt.Errorf("invalid frontmatter: %w", err)
	}
	return fm, nil
}
