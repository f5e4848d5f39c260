package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
)

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{1500 * time.Millisecond, "0:02"},
		{61 * time.Second, "1:01"},
		{75 * time.Minute, "75:00"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.in); got != tt.want {
			t.Errorf("formatClock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusLineTruncates(t *testing.T) {
	var buf bytes.Buffer
	l := &statusLine{w: &buf, width: 20}
	l.render(statusInfo{
		State:    "reading",
		Title:    "南山经之首曰䧿山其首曰招摇之山",
		Section:  1,
		Sections: 3,
		Chars:    50,
		Total:    100,
		Rate:     "1.25x",
	})

	out := strings.TrimPrefix(buf.String(), "\r\x1b[2K")
	if w := runewidth.StringWidth(out); w > 19 {
		t.Errorf("line width = %d, want at most 19: %q", w, out)
	}
	if !strings.HasPrefix(out, "reading 1/3 50%") {
		t.Errorf("line = %q", out)
	}
}

func TestStatusLineSkipsRepeats(t *testing.T) {
	var buf bytes.Buffer
	l := &statusLine{w: &buf, width: 200}
	info := statusInfo{State: "paused", Section: 1, Sections: 1}

	l.render(info)
	n := buf.Len()
	l.render(info)
	if buf.Len() != n {
		t.Error("identical status was redrawn")
	}

	l.message("hello")
	if !strings.Contains(buf.String(), "hello\r\n") {
		t.Errorf("message not written: %q", buf.String())
	}
}

func TestSynthText(t *testing.T) {
	if got, err := synthText(strings.NewReader("ignored"), []string{"  你好 "}); err != nil || got != "你好" {
		t.Errorf("synthText(arg) = %q, %v", got, err)
	}
	if got, err := synthText(strings.NewReader("from stdin\n"), nil); err != nil || got != "from stdin" {
		t.Errorf("synthText(stdin) = %q, %v", got, err)
	}
	if _, err := synthText(strings.NewReader(" \n"), nil); err == nil {
		t.Error("expected an error for empty text")
	}
}
