package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const walkerManifest = `
suites:
  - title: A
    file: x/a.spec.ts
  - title: B
    file: x/b.spec.ts
    suites:
      - title: C
`

func TestBuildFileMap(t *testing.T) {
	r, err := NewRegistry(Config{SuiteManifest: writeManifest(t, walkerManifest)})
	require.NoError(t, err)

	fm := r.BuildFileMap()
	require.Len(t, fm, 2)

	assert.Equal(t, []string{"A"}, fm["x/a.spec.ts"])
	// C has no file of its own; it inherits B's and its title is
	// qualified by its ancestor.
	assert.Equal(t, []string{"B", "B C"}, fm["x/b.spec.ts"])
}

func TestBuildFileMapNormalizesKeys(t *testing.T) {
	r, err := NewRegistry(Config{SuiteManifest: writeManifest(t, `
suites:
  - title: A
    file: /x/a.spec.ts/
`)})
	require.NoError(t, err)

	fm := r.BuildFileMap()
	assert.Contains(t, fm, "x/a.spec.ts")
}

func TestBuildFileMapSkipsUntaggedRoots(t *testing.T) {
	r, err := NewRegistry(Config{SuiteManifest: writeManifest(t, `
suites:
  - title: orphan
    suites:
      - title: child
        file: y/c.spec.ts
`)})
	require.NoError(t, err)

	fm := r.BuildFileMap()
	// The orphan has no resolved file: inheritance is top-down only, its
	// child's tag is never looked up.
	require.Len(t, fm, 1)
	assert.Equal(t, []string{"orphan child"}, fm["y/c.spec.ts"])
}

func TestSuitesForFile(t *testing.T) {
	r, err := NewRegistry(Config{SuiteManifest: writeManifest(t, walkerManifest)})
	require.NoError(t, err)

	t.Run("matches by segment", func(t *testing.T) {
		titles := r.SuitesForFile("b.spec.ts")
		assert.Equal(t, []string{"B", "B C"}, titles)
	})

	t.Run("whole directory", func(t *testing.T) {
		titles := r.SuitesForFile("x")
		assert.Len(t, titles, 3)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, r.SuitesForFile("nonexistent/path.ts"))
	})

	t.Run("partial segment does not match", func(t *testing.T) {
		assert.Empty(t, r.SuitesForFile("b.spec"))
	})
}

func TestSuitesForFileEscapesTitles(t *testing.T) {
	r, err := NewRegistry(Config{SuiteManifest: writeManifest(t, `
suites:
  - title: "retries (3.5s) [flaky]"
    file: x/retry.spec.ts
`)})
	require.NoError(t, err)

	titles := r.SuitesForFile("retry.spec.ts")
	require.Len(t, titles, 1)

	// Round-trip: the escaped title, used as a pattern, matches exactly
	// the original title and nothing similar with metacharacters active.
	f, err := NewFilter("", titles)
	require.NoError(t, err)
	assert.True(t, f.Matches("retries (3.5s) [flaky]"))
	assert.False(t, f.Matches("retries (335s) flaky"))
}

func TestQualifiedTitles(t *testing.T) {
	r, err := NewRegistry(Config{SuiteManifest: writeManifest(t, walkerManifest)})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "B C"}, r.QualifiedTitles())
}

func TestLeafName(t *testing.T) {
	assert.Equal(t, "C", LeafName("B C"))
	assert.Equal(t, "A", LeafName("A"))
}
