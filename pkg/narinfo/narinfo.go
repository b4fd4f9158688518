// Package narinfo parses the metadata documents served by Nix binary caches.
//
// A narinfo document is a list of "Key: value" lines. Only three keys matter
// for mirroring:
//
//	URL: nar/1w1fff338fvdw53sqgamddn1b2xgds473pv6y13gizdbqjv4i5p3.nar.xz
//	FileHash: sha256:1w1fff338fvdw53sqgamddn1b2xgds473pv6y13gizdbqjv4i5p3
//	References: 0d71ygfwbmy1xjlbj1v027dfmy9cqavy-libffi-3.3 3qnm3nwjajgqa771dmi2dnwxrw0kzq5m-glibc-2.33
//
// URL locates the content blob relative to the cache root, FileHash is the
// digest of that blob as served, and References lists the store objects it
// depends on. Other keys are captured when present but never required.
package narinfo

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/matzehuels/nixmirror/pkg/errors"
	"github.com/matzehuels/nixmirror/pkg/nixhash"
)

// Extension is the file suffix of metadata documents, both on the cache and
// in a local mirror.
const Extension = ".narinfo"

// maxLineSize bounds a single line. References lines of large closures run
// to tens of kilobytes.
const maxLineSize = 1 << 20

// Info is the parsed form of one narinfo document.
type Info struct {
	URL        string         // Content blob location, relative to the cache root
	FileHash   nixhash.Digest // Digest of the content blob as served
	References []string       // Referenced package identifiers, de-duplicated

	StorePath   string // Full store path (optional)
	Compression string // Compression of the content blob, e.g. "xz" (optional)
	Deriver     string // Deriver store object name (optional)
	NarHash     string // Digest of the uncompressed NAR (optional)
	FileSize    int64  // Size of the content blob in bytes (optional)
	NarSize     int64  // Size of the uncompressed NAR in bytes (optional)
}

// ID returns the package identifier of StorePath, or "" if StorePath is unset.
func (i *Info) ID() string {
	if i.StorePath == "" {
		return ""
	}
	id, err := IDFromStorePath(i.StorePath)
	if err != nil {
		return ""
	}
	return id
}

// Parse reads a narinfo document.
//
// Lines are "Key: value" records; blank lines are skipped and any other line
// without the ": " separator is a parse error. Keys may appear in any order
// and the last occurrence of a repeated key wins. URL and FileHash are
// required; a missing References line means no references.
func Parse(r io.Reader) (*Info, error) {
	var (
		info        Info
		haveURL     bool
		haveHash    bool
		fileHashErr error
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, val, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, errors.New(errors.ErrCodeParse, "line %d: expected \"key: value\", got %q", lineNo, line)
		}

		switch key {
		case "URL":
			info.URL = val
			haveURL = true
		case "References":
			info.References = parseReferences(val)
		case "FileHash":
			info.FileHash, fileHashErr = nixhash.ParseDigest(val)
			haveHash = true
		case "StorePath":
			info.StorePath = val
		case "Compression":
			info.Compression = val
		case "Deriver":
			info.Deriver = val
		case "NarHash":
			info.NarHash = val
		case "FileSize":
			info.FileSize, _ = strconv.ParseInt(val, 10, 64)
		case "NarSize":
			info.NarSize, _ = strconv.ParseInt(val, 10, 64)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFilesystem, err, "reading narinfo")
	}

	if !haveURL {
		return nil, errors.New(errors.ErrCodeParse, "missing URL")
	}
	if !haveHash {
		return nil, errors.New(errors.ErrCodeParse, "missing FileHash")
	}
	if fileHashErr != nil {
		return nil, fileHashErr
	}
	return &info, nil
}

// parseReferences reduces each whitespace-separated store object name to its
// identifier, dropping duplicates and empty identifiers.
func parseReferences(val string) []string {
	fields := strings.Fields(val)
	refs := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		id := IDFromName(f)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, id)
	}
	return refs
}

// String renders the document in narinfo format. Only the fields that are
// set are written; References are written as bare identifiers.
func (i *Info) String() string {
	var b strings.Builder
	if i.StorePath != "" {
		fmt.Fprintf(&b, "StorePath: %s\n", i.StorePath)
	}
	fmt.Fprintf(&b, "URL: %s\n", i.URL)
	if i.Compression != "" {
		fmt.Fprintf(&b, "Compression: %s\n", i.Compression)
	}
	fmt.Fprintf(&b, "FileHash: %s\n", i.FileHash)
	if i.FileSize > 0 {
		fmt.Fprintf(&b, "FileSize: %d\n", i.FileSize)
	}
	if i.NarHash != "" {
		fmt.Fprintf(&b, "NarHash: %s\n", i.NarHash)
	}
	if i.NarSize > 0 {
		fmt.Fprintf(&b, "NarSize: %d\n", i.NarSize)
	}
	fmt.Fprintf(&b, "References: %s\n", strings.Join(i.References, " "))
	if i.Deriver != "" {
		fmt.Fprintf(&b, "Deriver: %s\n", i.Deriver)
	}
	return b.String()
}
