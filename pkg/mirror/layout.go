package mirror

import (
	"path/filepath"
	"strings"

	"github.com/matzehuels/nixmirror/pkg/errors"
	"github.com/matzehuels/nixmirror/pkg/narinfo"
)

// NarDir is the conventional subdirectory holding content blobs.
const NarDir = "nar"

// Layout maps identifiers and content URLs to paths under a mirror root.
type Layout struct {
	root string
}

// NewLayout creates a Layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{root: filepath.Clean(root)}
}

// Root returns the cleaned mirror root.
func (l Layout) Root() string { return l.root }

// MetadataPath returns the path of the narinfo document for id.
func (l Layout) MetadataPath(id string) (string, error) {
	if err := errors.ValidatePackageID(id); err != nil {
		return "", err
	}
	return l.within(id + narinfo.Extension)
}

// ContentPath returns the path of the content blob at the cache-relative
// location rel, as found in a narinfo URL field.
func (l Layout) ContentPath(rel string) (string, error) {
	return l.within(rel)
}

// within joins rel onto the root, normalizing redundant separators and dot
// segments, and rejects results that are the root itself or lie outside it.
func (l Layout) within(rel string) (string, error) {
	p := filepath.Join(l.root, filepath.FromSlash(rel))
	r, err := filepath.Rel(l.root, p)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodeInvalidPath, "path %q escapes mirror root %s", rel, l.root)
	}
	return p, nil
}

// Remote builds download URLs on a binary cache.
type Remote struct {
	base string
}

// NewRemote creates a Remote for the cache at base, e.g.
// "https://cache.nixos.org". Trailing slashes are ignored.
func NewRemote(base string) Remote {
	return Remote{base: strings.TrimRight(base, "/")}
}

// Base returns the cache base URL without trailing slash.
func (r Remote) Base() string { return r.base }

// MetadataURL returns the URL of the narinfo document for id.
func (r Remote) MetadataURL(id string) string {
	return r.base + "/" + id + narinfo.Extension
}

// ContentURL returns the URL of the content blob at the cache-relative
// location rel.
func (r Remote) ContentURL(rel string) string {
	return r.base + "/" + strings.TrimLeft(rel, "/")
}
