package fingerprint

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}

func TestHasher_StableAcrossPathOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "a.go", "package a")
	writeFile(t, fs, "b.go", "package b")

	h := New(fs)
	fp1, err := h.Changes([]string{"a.go", "b.go"})
	require.NoError(t, err)
	fp2, err := h.Changes([]string{"b.go", "a.go"})
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
	assert.NotEmpty(t, fp1)
}

func TestHasher_ContentChangeChangesFingerprint(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "a.go", "package a")

	h := New(fs)
	before, err := h.Changes([]string{"a.go"})
	require.NoError(t, err)

	writeFile(t, fs, "a.go", "package a // changed")
	after, err := h.Changes([]string{"a.go"})
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestHasher_MissingFileCountsAsDeletion(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "a.go", "package a")

	h := New(fs)
	present, err := h.Changes([]string{"a.go"})
	require.NoError(t, err)

	require.NoError(t, fs.Remove("a.go"))
	deleted, err := h.Changes([]string{"a.go"})
	require.NoError(t, err)

	assert.NotEqual(t, present, deleted)
	assert.NotEmpty(t, deleted)
}

func TestHasher_EmptyPathSet(t *testing.T) {
	h := New(afero.NewMemMapFs())
	fp, err := h.Changes(nil)
	require.NoError(t, err)
	assert.Empty(t, fp)
}
