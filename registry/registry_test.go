package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
suites:
  - title: accounts
    file: imports/api/accounts/accounts.spec.ts
    suites:
      - title: creation
      - title: removal
  - title: billing
    file: imports/api/billing/billing.spec.ts
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewRegistry(t *testing.T) {
	t.Run("valid manifest", func(t *testing.T) {
		r, err := NewRegistry(Config{SuiteManifest: writeManifest(t, testManifest)})
		require.NoError(t, err)
		assert.Equal(t, 2, r.TopLevelCount())
	})

	t.Run("missing manifest path", func(t *testing.T) {
		_, err := NewRegistry(Config{})
		require.Error(t, err)
	})

	t.Run("nonexistent file", func(t *testing.T) {
		_, err := NewRegistry(Config{SuiteManifest: "nonexistent.yaml"})
		require.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := NewRegistry(Config{SuiteManifest: writeManifest(t, "suites: [")})
		require.Error(t, err)
	})

	t.Run("empty manifest", func(t *testing.T) {
		_, err := NewRegistry(Config{SuiteManifest: writeManifest(t, "suites: []")})
		require.Error(t, err)
	})

	t.Run("suite without title", func(t *testing.T) {
		_, err := NewRegistry(Config{SuiteManifest: writeManifest(t, `
suites:
  - file: x/a.spec.ts
`)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing a title")
	})
}

func TestResetTransientState(t *testing.T) {
	r, err := NewRegistry(Config{SuiteManifest: writeManifest(t, testManifest)})
	require.NoError(t, err)

	accounts := r.Root().Children[0]
	creation := accounts.Children[0]

	accounts.Pending = true
	accounts.Errors = 3
	creation.TimedOut = true
	creation.Retries = 2
	creation.AddHook(func() error { return nil })
	require.Len(t, creation.Hooks(), 1)

	r.ResetTransientState()

	assert.False(t, accounts.Pending)
	assert.Zero(t, accounts.Errors)
	assert.False(t, creation.TimedOut)
	assert.Zero(t, creation.Retries)
	assert.Empty(t, creation.Hooks())

	// Structure and file tags survive the reset.
	assert.Equal(t, 2, r.TopLevelCount())
	assert.Equal(t, "imports/api/accounts/accounts.spec.ts", accounts.SourceFile)
	assert.Len(t, accounts.Children, 2)
}
