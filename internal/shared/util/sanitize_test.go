package util

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "chapter.txt", want: "chapter.txt"},
		{name: "separators", in: "a/b\\c.pdf", want: "a_b_c.pdf"},
		{name: "control chars", in: "bad\x00\nname.docx", want: "badname.docx"},
		{name: "traversal", in: "../etc/passwd", wantErr: true},
		{name: "blank", in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeFileName(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFileName) {
					t.Fatalf("expected ErrInvalidFileName, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizeFileName(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileNameKeepsExtensionWhenTruncating(t *testing.T) {
	long := strings.Repeat("a", 300) + ".pdf"
	got, err := SanitizeFileName(long)
	if err != nil {
		t.Fatalf("SanitizeFileName: %v", err)
	}
	if len(got) != maxFileNameLen || !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("unexpected truncation: len=%d suffix=%q", len(got), got[len(got)-4:])
	}
}
