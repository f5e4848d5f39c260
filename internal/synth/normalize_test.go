package synth

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain chinese", "你好，世界！", "你好，世界！"},
		{"ascii punctuation stripped", "Hello, world!", "Hello world"},
		{"percent encoded", "%E4%BD%A0%E5%A5%BD", "你好"},
		{"invalid escape left as is", "50% off", "50 off"},
		{"plus decodes to space", "a+b", "a b"},
		{"emoji stripped", "读书📚", "读书"},
		{"cjk quotes kept", "“引号”《书名》", "“引号”《书名》"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
