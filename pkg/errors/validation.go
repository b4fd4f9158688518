package errors

import (
	"net/url"
	"strings"
	"unicode"
)

// ValidatePackageID validates a package identifier before it is used to
// build a metadata path or URL. Identifiers come from root lists and from
// References lines of downloaded metadata, so they are untrusted.
//
// The validation rules are intentionally conservative:
//   - No empty identifiers
//   - No control characters or null bytes
//   - No path separators or parent-directory references
//   - Maximum length of 256 characters
func ValidatePackageID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidID, "package id cannot be empty")
	}

	if len(id) > 256 {
		return New(ErrCodeInvalidID, "package id too long (max 256 characters)")
	}

	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidID, "package id %q contains invalid characters", id)
		}
	}

	if id == "." || strings.Contains(id, "..") {
		return New(ErrCodeInvalidID, "package id %q contains a path traversal sequence", id)
	}

	if strings.ContainsAny(id, "/\\") {
		return New(ErrCodeInvalidID, "package id %q contains a path separator", id)
	}

	return nil
}

// ValidateURL validates a binary cache base URL.
// It ensures the URL parses, uses http or https, and names a host.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Wrap(ErrCodeInvalidInput, err, "invalid URL %q", rawURL)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	if u.Host == "" {
		return New(ErrCodeInvalidInput, "URL %q has no host", rawURL)
	}

	return nil
}

// ValidateParallelism checks the maximum number of concurrent resolutions.
func ValidateParallelism(n int) error {
	if n < 1 {
		return New(ErrCodeInvalidInput, "parallelism must be at least 1, got %d", n)
	}
	return nil
}
