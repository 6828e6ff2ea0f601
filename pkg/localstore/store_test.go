package localstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	_, ok, err := s.GetItem("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetItem("contact_form_submissions", "[1,2]"))
	v, ok, err := s.GetItem("contact_form_submissions")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[1,2]", v)

	require.NoError(t, s.SetItem("contact_form_submissions", "[3]"))
	v, _, err = s.GetItem("contact_form_submissions")
	require.NoError(t, err)
	assert.Equal(t, "[3]", v)

	require.NoError(t, s.RemoveItem("contact_form_submissions"))
	_, ok, err = s.GetItem("contact_form_submissions")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing a missing key is not an error
	assert.NoError(t, s.RemoveItem("contact_form_submissions"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state", "contact.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contact.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetItem("k", "v"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	v, ok, err := reopened.GetItem("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("")
	assert.Error(t, err)
}
