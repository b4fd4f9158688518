// Package roots reads the list of store paths a mirror run starts from.
//
// A root list has one store path per line, like the store-paths.xz files
// published next to every nixpkgs channel. The list may be plain text or
// compressed with xz, zstd or gzip; the format is detected from the first
// bytes of the stream.
package roots

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/matzehuels/nixmirror/pkg/errors"
	"github.com/matzehuels/nixmirror/pkg/narinfo"
)

// Format identifies the encoding of a root list.
type Format string

const (
	FormatPlain Format = "plain"
	FormatXZ    Format = "xz"
	FormatZstd  Format = "zstd"
	FormatGzip  Format = "gzip"
)

var (
	magicXZ   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicGzip = []byte{0x1f, 0x8b}
)

// Detect reports the format of a stream starting with head.
func Detect(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, magicXZ):
		return FormatXZ
	case bytes.HasPrefix(head, magicZstd):
		return FormatZstd
	case bytes.HasPrefix(head, magicGzip):
		return FormatGzip
	default:
		return FormatPlain
	}
}

// NewReader returns a reader yielding the decompressed contents of r.
func NewReader(r io.Reader) (io.ReadCloser, Format, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(magicXZ))
	if err != nil && err != io.EOF {
		return nil, "", errors.Wrap(errors.ErrCodeFilesystem, err, "reading root list")
	}

	format := Detect(head)
	switch format {
	case FormatXZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, format, errors.Wrap(errors.ErrCodeInvalidInput, err, "opening xz root list")
		}
		return io.NopCloser(xr), format, nil
	case FormatZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, format, errors.Wrap(errors.ErrCodeInvalidInput, err, "opening zstd root list")
		}
		return zr.IOReadCloser(), format, nil
	case FormatGzip:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, format, errors.Wrap(errors.ErrCodeInvalidInput, err, "opening gzip root list")
		}
		return gr, format, nil
	default:
		return io.NopCloser(br), format, nil
	}
}

// Read parses a root list into package identifiers.
//
// Blank lines and lines starting with '#' are skipped. Each remaining line
// is a store path or a bare identifier. Identifiers are returned in order of
// first appearance without duplicates.
func Read(r io.Reader) ([]string, error) {
	rc, _, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		ids  []string
		seen = make(map[string]struct{})
	)
	sc := bufio.NewScanner(rc)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := narinfo.IDFromStorePath(line)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "root list line %d", lineNo)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "reading root list")
	}
	return ids, nil
}

// ReadFile parses the root list at path.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFilesystem, err, "open root list")
	}
	defer f.Close()

	ids, err := Read(f)
	if err != nil {
		return nil, errors.Wrap(errors.GetCode(err), err, "%s", path)
	}
	return ids, nil
}

// FromArgs converts store paths or identifiers given on the command line
// into identifiers, dropping duplicates.
func FromArgs(args []string) ([]string, error) {
	ids := make([]string, 0, len(args))
	seen := make(map[string]struct{}, len(args))
	for _, arg := range args {
		id, err := narinfo.IDFromStorePath(arg)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "root %q", arg)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Merge concatenates identifier lists, keeping the first occurrence of each.
func Merge(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
