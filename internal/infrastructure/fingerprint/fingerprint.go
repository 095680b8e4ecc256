// Package fingerprint computes stable hashes summarizing the set of file
// changes produced by a phase, used by loop detection to spot repetition.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// Hasher folds file contents into one fingerprint over an abstract
// filesystem, so tests run on an in-memory FS.
type Hasher struct {
	fs afero.Fs
}

// New creates a hasher over the given filesystem
func New(fs afero.Fs) *Hasher {
	return &Hasher{fs: fs}
}

// Changes hashes the named files (path + content) into a single hex
// digest. Paths are sorted first so the result is order-independent.
// Missing files contribute their path only, marking a deletion.
// An empty path set yields an empty fingerprint.
func (h *Hasher) Changes(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}

	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	hash := blake3.New()
	for _, path := range sorted {
		// Path separator byte keeps "ab"+"c" distinct from "a"+"bc"
		hash.Write([]byte(path))
		hash.Write([]byte{0})

		f, err := h.fs.Open(path)
		if err != nil {
			// Deleted file: path alone marks the change
			hash.Write([]byte{1})
			continue
		}
		if _, err := io.Copy(hash, f); err != nil {
			f.Close()
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
		f.Close()
		hash.Write([]byte{0})
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
