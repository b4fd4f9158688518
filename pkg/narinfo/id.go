package narinfo

import (
	"path"
	"strings"

	"github.com/matzehuels/nixmirror/pkg/errors"
)

// IDFromName reduces a store object name such as
// "0001w2k3pgl0pkrn827dxiibvc2sibnd-singleton-bool-0.1.5.tar.gz.drv" to its
// package identifier, the part before the first '-'. A name without a '-'
// is returned whole.
func IDFromName(name string) string {
	id, _, _ := strings.Cut(name, "-")
	return id
}

// IDFromStorePath extracts the package identifier from a store path such as
// "/nix/store/0001w2k3pgl0pkrn827dxiibvc2sibnd-singleton-bool-0.1.5.tar.gz.drv".
// Only the final path component is considered, so the store directory does
// not have to be /nix/store. Bare identifiers are accepted as-is.
func IDFromStorePath(storePath string) (string, error) {
	p := strings.TrimSpace(storePath)
	if p == "" {
		return "", errors.New(errors.ErrCodeInvalidID, "empty store path")
	}
	id := IDFromName(path.Base(p))
	if err := errors.ValidatePackageID(id); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidID, err, "failed to parse store path %q", storePath)
	}
	return id, nil
}
