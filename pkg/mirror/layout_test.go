package mirror

import (
	"path/filepath"
	"testing"

	"github.com/matzehuels/nixmirror/pkg/errors"
)

func TestLayoutMetadataPath(t *testing.T) {
	l := NewLayout("/srv/mirror/")

	got, err := l.MetadataPath("0001xyz")
	if err != nil {
		t.Fatalf("MetadataPath() error: %v", err)
	}
	if want := filepath.Join("/srv/mirror", "0001xyz.narinfo"); got != want {
		t.Errorf("MetadataPath() = %q, want %q", got, want)
	}

	for _, id := range []string{"", "..", "a/b", "../x"} {
		if _, err := l.MetadataPath(id); err == nil {
			t.Errorf("MetadataPath(%q) should fail", id)
		}
	}
}

func TestLayoutContentPath(t *testing.T) {
	l := NewLayout("/srv/mirror")

	tests := []struct {
		rel  string
		want string
	}{
		{"nar/abc.nar.xz", "/srv/mirror/nar/abc.nar.xz"},
		{"nar//abc.nar.xz", "/srv/mirror/nar/abc.nar.xz"},
		{"./nar/abc.nar.xz", "/srv/mirror/nar/abc.nar.xz"},
		{"nar/../nar/abc.nar", "/srv/mirror/nar/abc.nar"},
	}
	for _, tt := range tests {
		got, err := l.ContentPath(tt.rel)
		if err != nil {
			t.Errorf("ContentPath(%q) error: %v", tt.rel, err)
			continue
		}
		if got != filepath.FromSlash(tt.want) {
			t.Errorf("ContentPath(%q) = %q, want %q", tt.rel, got, tt.want)
		}
	}
}

func TestLayoutRejectsEscapes(t *testing.T) {
	l := NewLayout("/srv/mirror")

	for _, rel := range []string{"", ".", "..", "../etc/passwd", "nar/../../x", "nar/.."} {
		_, err := l.ContentPath(rel)
		if !errors.Is(err, errors.ErrCodeInvalidPath) {
			t.Errorf("ContentPath(%q) error = %v, want %s", rel, err, errors.ErrCodeInvalidPath)
		}
	}
}

func TestRemoteURLs(t *testing.T) {
	r := NewRemote("https://cache.nixos.org/")

	if r.Base() != "https://cache.nixos.org" {
		t.Errorf("Base() = %q", r.Base())
	}
	if got := r.MetadataURL("0001xyz"); got != "https://cache.nixos.org/0001xyz.narinfo" {
		t.Errorf("MetadataURL() = %q", got)
	}
	if got := r.ContentURL("nar/abc.nar.xz"); got != "https://cache.nixos.org/nar/abc.nar.xz" {
		t.Errorf("ContentURL() = %q", got)
	}
	if got := r.ContentURL("/nar/abc.nar.xz"); got != "https://cache.nixos.org/nar/abc.nar.xz" {
		t.Errorf("ContentURL() with leading slash = %q", got)
	}
}
