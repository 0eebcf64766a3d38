package impact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppealsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appeals.json")
	require.NoError(t, os.WriteFile(path, []byte(`["dec-1","dec-3"]`), 0o600))

	feed, err := LoadAppealsFile(path)
	require.NoError(t, err)

	out, err := feed.AppealedRefs(context.Background(), []string{"dec-1", "dec-2", "dec-3"})
	require.NoError(t, err)
	assert.True(t, out["dec-1"])
	assert.False(t, out["dec-2"])
	assert.True(t, out["dec-3"])
}

func TestLoadAppealsFile_Errors(t *testing.T) {
	_, err := LoadAppealsFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"a list"}`), 0o600))
	_, err = LoadAppealsFile(path)
	assert.Error(t, err)
}

func TestNoopFeed(t *testing.T) {
	out, err := NoopFeed{}.AppealedRefs(context.Background(), []string{"dec-1"})
	require.NoError(t, err)
	assert.Empty(t, out)
}
