package storage

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateMedia(t *testing.T) {
	cases := []struct {
		name        string
		filename    string
		contentType string
		wantErr     bool
	}{
		{"mp4", "clip.mp4", "video/mp4", false},
		{"upperExtension", "CLIP.MOV", "video/quicktime", false},
		{"movAlias", "clip.mov", "video/mov", false},
		{"aviAlias", "clip.avi", "video/avi", false},
		{"mkv", "clip.mkv", "video/x-matroska", false},
		{"webmWithParams", "clip.webm", "Video/WebM; codecs=vp9", false},
		{"badExtension", "clip.gif", "video/mp4", true},
		{"noExtension", "clip", "video/mp4", true},
		{"badContentType", "clip.mp4", "image/gif", true},
		{"emptyContentType", "clip.mp4", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMedia(tc.filename, tc.contentType)
			if tc.wantErr {
				if !errors.Is(err, ErrUnsupportedMediaType) {
					t.Fatalf("expected ErrUnsupportedMediaType, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"videos/a.mp4":  "video/mp4",
		"videos/a.MOV":  "video/quicktime",
		"videos/a.avi":  "video/x-msvideo",
		"videos/a.mkv":  "video/x-matroska",
		"videos/a.webm": "video/webm",
		"videos/a.bin":  "video/mp4",
		"videos/a":      "video/mp4",
	}
	for in, want := range cases {
		if got := ContentType(in); got != want {
			t.Fatalf("ContentType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewBlobPathIgnoresClientName(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	p := newBlobPath(now, "../../etc/Evil Name.MP4")
	if !strings.HasPrefix(p, "videos/1700000000123-") {
		t.Fatalf("unexpected path prefix: %s", p)
	}
	if !strings.HasSuffix(p, ".mp4") {
		t.Fatalf("expected lower-cased extension: %s", p)
	}
	if strings.Contains(p, "Evil") || strings.Contains(p, "..") {
		t.Fatalf("client filename leaked into path: %s", p)
	}

	if other := newBlobPath(now, "clip.mp4"); other == p {
		t.Fatalf("expected distinct paths for concurrent uploads")
	}
}

func TestCleanStoragePath(t *testing.T) {
	valid := map[string]string{
		"videos/a.mp4":      "videos/a.mp4",
		"videos/./a.mp4":    "videos/a.mp4",
		"videos/x/../a.mp4": "videos/a.mp4",
	}
	for in, want := range valid {
		got, err := cleanStoragePath(in)
		if err != nil {
			t.Fatalf("cleanStoragePath(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("cleanStoragePath(%q) = %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"", "  ", "/etc/passwd", "../secret", "videos/../../secret", `videos\..\a`} {
		if _, err := cleanStoragePath(in); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("cleanStoragePath(%q): expected ErrInvalidPath, got %v", in, err)
		}
	}
}
