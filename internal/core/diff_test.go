package core

import (
	"strings"
	"testing"
)

func TestDetectTextContent(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"empty", nil, true},
		{"plain text", []byte("hello\nworld\n"), true},
		{"json document", []byte(`{"type":"doc"}`), true},
		{"null byte", []byte{'a', 0, 'b'}, false},
		{"invalid utf8", []byte{0xff, 0xfe, 0xfd}, false},
		{"control chars", []byte{1, 2, 3, 4, 'a'}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectTextContent(tt.data); got != tt.want {
				t.Errorf("DetectTextContent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateUnifiedDiff(t *testing.T) {
	if got := GenerateUnifiedDiff("p1", []byte("same"), []byte("same")); got != "" {
		t.Errorf("expected empty diff for identical content, got %q", got)
	}

	diff := GenerateUnifiedDiff("p1", []byte("line one\nline two\n"), []byte("line one\nline 2\n"))
	for _, want := range []string{"--- locked/p1", "+++ current/p1", "-line two", "+line 2"} {
		if !strings.Contains(diff, want) {
			t.Errorf("diff missing %q:\n%s", want, diff)
		}
	}

	binary := GenerateUnifiedDiff("p1/scene", []byte{0, 1}, []byte{0, 2})
	if binary != "Binary content p1/scene has changed\n" {
		t.Errorf("unexpected binary diff %q", binary)
	}
}
