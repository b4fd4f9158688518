// Package nixhash handles the algorithm-tagged digests found in Nix binary
// cache metadata, such as "sha256:1sfdxziarxw8j3p80lvswgpq9i7smdyxmmsj5sjhhgjdjfwjfkdr".
package nixhash

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/matzehuels/nixmirror/pkg/errors"
)

// Algorithm names a hash function as it appears before the colon of a
// FileHash or NarHash value.
type Algorithm string

// Supported algorithms. Binary caches in the wild use sha256 almost
// exclusively; the others are accepted so that private caches built with
// different settings can be mirrored too.
const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	SHA1   Algorithm = "sha1"
	BLAKE3 Algorithm = "blake3"
)

// New returns a fresh hash accumulator for the algorithm. An empty
// algorithm means sha256.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case SHA256, "":
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA1:
		return sha1.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported hash algorithm %q", string(a))
	}
}

// Digest is an expected content digest. Value is kept exactly as written in
// the metadata document; its encoding is inferred when verifying.
type Digest struct {
	Algorithm Algorithm
	Value     string
}

// ParseDigest splits an "algorithm:digest" pair at its first colon.
func ParseDigest(s string) (Digest, error) {
	algo, value, ok := strings.Cut(s, ":")
	if !ok {
		return Digest{}, errors.New(errors.ErrCodeParse, "invalid hash %q: missing algorithm separator", s)
	}
	if value == "" {
		return Digest{}, errors.New(errors.ErrCodeParse, "invalid hash %q: empty digest", s)
	}
	return Digest{Algorithm: Algorithm(algo), Value: value}, nil
}

// String returns the digest in "algorithm:value" form.
func (d Digest) String() string {
	if d.Algorithm == "" {
		return d.Value
	}
	return string(d.Algorithm) + ":" + d.Value
}

// Encode renders sum in the same encoding as d.Value: nix-base32, hex or
// base64, chosen by length. Values of any other length are compared against
// nix-base32, the canonical encoding in narinfo files.
func (d Digest) Encode(sum []byte) string {
	switch len(d.Value) {
	case hex.EncodedLen(len(sum)):
		return hex.EncodeToString(sum)
	case base64.StdEncoding.EncodedLen(len(sum)):
		return base64.StdEncoding.EncodeToString(sum)
	default:
		return EncodeToString(sum)
	}
}

// Verify compares a finalized hash sum against the expected digest and
// returns an INTEGRITY_ERROR on mismatch.
func (d Digest) Verify(sum []byte) error {
	got := d.Encode(sum)
	want := d.Value
	if len(want) == hex.EncodedLen(len(sum)) {
		want = strings.ToLower(want)
	}
	if got != want {
		return errors.New(errors.ErrCodeIntegrity, "hash mismatch: expected %s, got %s", d.Value, got)
	}
	return nil
}
