// Package fetch downloads files into a local mirror atomically.
//
// A download is streamed into a scratch file in the destination's directory
// and only renamed onto the destination once the body has been fully
// received, synced and (optionally) verified against an expected digest.
// Readers of the mirror therefore never observe a partially written file:
// the destination is either absent, holds its previous contents, or holds
// the complete verified download.
//
// # Usage
//
//	f := fetch.New(nil, map[string]string{"User-Agent": "nixmirror/dev"})
//	file, err := f.Fetch(ctx, url, "/srv/mirror/nar/abc.nar.xz", &digest)
//	if err != nil {
//	    return err
//	}
//	defer file.Close()
package fetch

import (
	"context"
	"hash"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/matzehuels/nixmirror/pkg/errors"
	"github.com/matzehuels/nixmirror/pkg/nixhash"
	"github.com/matzehuels/nixmirror/pkg/observability"
)

// chunkSize is the read size used when streaming response bodies.
const chunkSize = 64 << 10

// Fetcher performs verified atomic downloads. A Fetcher is safe for
// concurrent use; concurrent calls must target distinct destinations.
type Fetcher struct {
	http    *http.Client
	headers map[string]string
}

// New creates a Fetcher using client and sending headers with every request.
// A nil client selects [NewHTTPClient]. Pass nil for headers if no default
// headers are needed.
func New(client *http.Client, headers map[string]string) *Fetcher {
	if client == nil {
		client = NewHTTPClient()
	}
	return &Fetcher{http: client, headers: headers}
}

// NewHTTPClient creates the HTTP client used for cache downloads. It sets no
// overall timeout, since content blobs can be large; cancellation comes from
// the request context.
func NewHTTPClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 64
	return &http.Client{Transport: t}
}

// Fetch downloads url to dest and returns dest opened for reading.
//
// If expected is non-nil, the body is hashed while it is written and the
// download fails with an INTEGRITY_ERROR unless the digest matches. Non-2xx
// responses and connection failures are TRANSPORT_ERRORs; local I/O failures
// are FILESYSTEM_ERRORs. On any error dest is left untouched and no scratch
// file remains.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string, expected *nixhash.Digest) (*os.File, error) {
	var h hash.Hash
	if expected != nil {
		var err error
		if h, err = expected.Algorithm.New(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeParse, err, "digest for %s", url)
		}
	}

	hooks := observability.Fetch()
	hooks.OnFetchStart(ctx, url)
	start := time.Now()
	n, err := f.download(ctx, url, dest, expected, h)
	hooks.OnFetchComplete(ctx, url, n, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(dest)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFilesystem, err, "opening %s", dest)
	}
	return file, nil
}

// download streams the body of url into a scratch file and promotes it onto
// dest. It returns the number of body bytes received.
func (f *Fetcher) download(ctx context.Context, url, dest string, expected *nixhash.Digest, h hash.Hash) (int64, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	s, err := newScratch(dest)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeFilesystem, err, "creating scratch file for %s", dest)
	}
	defer s.Release()

	var w io.Writer = s
	if h != nil {
		w = io.MultiWriter(s, h)
	}

	var n int64
	buf := make([]byte, chunkSize)
	for {
		k, rerr := body.Read(buf)
		if k > 0 {
			if _, werr := w.Write(buf[:k]); werr != nil {
				return n, errors.Wrap(errors.ErrCodeFilesystem, werr, "writing %s", dest)
			}
			n += int64(k)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return n, errors.Wrap(errors.ErrCodeTransport, rerr, "reading %s", url)
		}
	}

	if err := s.Close(); err != nil {
		return n, errors.Wrap(errors.ErrCodeFilesystem, err, "flushing %s", dest)
	}

	if expected != nil {
		if err := expected.Verify(h.Sum(nil)); err != nil {
			return n, errors.Wrap(errors.ErrCodeIntegrity, err, "verifying %s from %s", dest, url)
		}
	}

	if err := s.Promote(dest); err != nil {
		return n, errors.Wrap(errors.ErrCodeFilesystem, err, "renaming into %s", dest)
	}
	return n, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTransport, err, "GET %s", url)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTransport, err, "GET %s", url)
	}

	if err := checkStatus(url, resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(url string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	return errors.New(errors.ErrCodeTransport, "GET %s: status %d %s", url, code, http.StatusText(code))
}
