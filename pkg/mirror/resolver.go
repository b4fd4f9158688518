package mirror

import (
	"context"
	"fmt"
	"os"

	"github.com/matzehuels/nixmirror/pkg/narinfo"
	"github.com/matzehuels/nixmirror/pkg/nixhash"
	"github.com/matzehuels/nixmirror/pkg/observability"
)

// Downloader retrieves url into dest atomically, verifying it against
// expected when non-nil. [fetch.Fetcher] is the standard implementation.
//
// Fetch must be safe for concurrent use by multiple goroutines.
type Downloader interface {
	Fetch(ctx context.Context, url, dest string, expected *nixhash.Digest) (*os.File, error)
}

// Resolver makes one package identifier's files present in the mirror and
// reports its references.
type Resolver struct {
	layout     Layout
	remote     Remote
	downloader Downloader
}

// NewResolver creates a Resolver that stores files according to layout and
// downloads missing ones from remote.
func NewResolver(layout Layout, remote Remote, downloader Downloader) *Resolver {
	return &Resolver{layout: layout, remote: remote, downloader: downloader}
}

// Resolve ensures the narinfo document of id and the content blob it names
// exist locally, and returns the identifiers the document references.
//
// A narinfo already in the mirror is read as-is; otherwise it is downloaded
// without verification. A content blob already in the mirror is trusted;
// otherwise it is downloaded and checked against the document's FileHash.
func (r *Resolver) Resolve(ctx context.Context, id string) ([]string, error) {
	info, err := r.metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.content(ctx, info); err != nil {
		return nil, err
	}
	return info.References, nil
}

func (r *Resolver) metadata(ctx context.Context, id string) (*narinfo.Info, error) {
	path, err := r.layout.MetadataPath(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err == nil {
		observability.Fetch().OnFetchSkip(ctx, path)
	} else {
		f, err = r.downloader.Fetch(ctx, r.remote.MetadataURL(id), path, nil)
		if err != nil {
			return nil, err
		}
	}
	defer f.Close()

	info, err := narinfo.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

func (r *Resolver) content(ctx context.Context, info *narinfo.Info) error {
	path, err := r.layout.ContentPath(info.URL)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		observability.Fetch().OnFetchSkip(ctx, path)
		return nil
	}

	f, err := r.downloader.Fetch(ctx, r.remote.ContentURL(info.URL), path, &info.FileHash)
	if err != nil {
		return err
	}
	return f.Close()
}
