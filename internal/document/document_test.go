package document

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

func texts(s ttypes.Section) []string {
	out := make([]string, len(s.Units))
	for i, u := range s.Units {
		out[i] = u.Text
	}
	return out
}

func TestParseMarkdown(t *testing.T) {
	src := `---
title: 山海经
---
开篇的话。

# 第一卷

## 南山经

南山之首曰䧿山。其首曰招摇之山，
临于西海之上。

- 多桂
- 多金玉

> 有草焉，其状如韭。

` + "```go\nfmt.Println(\"skip\")\n```" + `

### 小节

**丽麂**之水出焉。

## 南次二经

南次二经之首，曰柜山。
`

	doc, err := ParseMarkdown("shj.md", []byte(src), Options{SplitLevel: 2})
	if err != nil {
		t.Fatalf("ParseMarkdown failed: %v", err)
	}

	if doc.Title != "山海经" {
		t.Errorf("Title = %q, want the frontmatter title", doc.Title)
	}

	var ids []string
	for _, s := range doc.Sections {
		ids = append(ids, s.ID)
	}
	if want := []string{"intro", "第一卷", "南山经", "南次二经"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("section ids = %v, want %v", ids, want)
	}

	want := []string{
		"南山经",
		"南山之首曰䧿山。其首曰招摇之山， 临于西海之上。",
		"多桂",
		"多金玉",
		"有草焉，其状如韭。",
		"小节",
		"丽麂之水出焉。",
	}
	if got := texts(doc.Sections[2]); !reflect.DeepEqual(got, want) {
		t.Errorf("units = %q\nwant %q", got, want)
	}
	for i, u := range doc.Sections[2].Units {
		if u.Index != i {
			t.Errorf("unit %d has index %d", i, u.Index)
		}
	}
}

func TestParseMarkdownTitleFallback(t *testing.T) {
	doc, err := ParseMarkdown("/books/notes.md", []byte("# Notes\n\nbody\n"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Notes" {
		t.Errorf("Title = %q, want the first heading", doc.Title)
	}

	doc, err = ParseMarkdown("/books/notes.md", []byte("body only\n"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "notes" {
		t.Errorf("Title = %q, want the file name", doc.Title)
	}
}

func TestParseMarkdownIncludeCode(t *testing.T) {
	src := "text\n\n```\nline one\nline two\n```\n"
	doc, err := ParseMarkdown("a.md", []byte(src), Options{IncludeCode: true})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := texts(doc.Sections[0]), []string{"text", "line one", "line two"}; !reflect.DeepEqual(got, want) {
		t.Errorf("units = %q, want %q", got, want)
	}
}

func TestParseMarkdownBadFrontmatter(t *testing.T) {
	if _, err := ParseMarkdown("a.md", []byte("---\ntitle: [\n---\nbody\n"), Options{}); err == nil {
		t.Error("expected invalid frontmatter to fail")
	}
}

func TestParseTextChapters(t *testing.T) {
	src := "序\n\n第一章 出山\n  少年下山。\n\n第二章 入城\n城门高大。\n第二章 入城\n重复的标题。\n"
	doc, err := ParseText("book.txt", []byte(src), DefaultOptions())
	if err != nil {
		t.Fatalf("ParseText failed: %v", err)
	}

	var ids []string
	for _, s := range doc.Sections {
		ids = append(ids, s.ID)
	}
	if want := []string{"intro", "第一章-出山", "第二章-入城", "第二章-入城-2"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("section ids = %v, want %v", ids, want)
	}
	if got, want := texts(doc.Sections[1]), []string{"第一章 出山", "少年下山。"}; !reflect.DeepEqual(got, want) {
		t.Errorf("units = %q, want %q", got, want)
	}
	if doc.Title != "book" {
		t.Errorf("Title = %q", doc.Title)
	}
}

func TestPaginate(t *testing.T) {
	// units of 10 characters start at 0, 11, 22, 33, 44
	s := ttypes.NewSection("s", "s", []string{
		"aaaaaaaaaa", "bbbbbbbbbb", "cccccccccc", "dddddddddd", "eeeeeeeeee",
	})

	Paginate(&s, 20)
	if want := []int{0, 22, 44}; !reflect.DeepEqual(s.PageStarts, want) {
		t.Errorf("PageStarts = %v, want %v", s.PageStarts, want)
	}

	Paginate(&s, 0)
	if s.PageStarts != nil {
		t.Errorf("expected no pages, got %v", s.PageStarts)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.txt")
	if err := os.WriteFile(path, []byte("一行。\n二行。\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := Load(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(doc.Sections) != 1 || len(doc.Sections[0].Units) != 2 {
		t.Fatalf("unexpected sections: %+v", doc.Sections)
	}
	if doc.Sections[0].PageStarts[0] != 0 {
		t.Errorf("first page should start at 0")
	}
	if idx, ok := doc.SectionIndex("intro"); !ok || idx != 0 {
		t.Errorf("SectionIndex = %d, %v", idx, ok)
	}
	if doc.Chars() != doc.Sections[0].Chars() {
		t.Errorf("Chars = %d", doc.Chars())
	}

	if _, err := Load(filepath.Join(dir, "missing.md"), DefaultOptions()); err == nil {
		t.Error("expected an error for a missing file")
	}
}
