package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInsideAndOutside(t *testing.T) {
	root := t.TempDir()
	policy, err := New(root)
	require.NoError(t, err)

	inside, err := policy.Check(filepath.Join(root, "src", "not-yet.py"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(policy.Root(), "src", "not-yet.py"), inside)

	_, err = policy.Check(filepath.Join(root, "..", "escape.py"))
	require.Error(t, err)
	assert.Equal(t, failure.OutOfScope, failure.KindOf(err))
}

func TestCheckFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	policy, err := New(root)
	require.NoError(t, err)

	_, err = policy.Check(filepath.Join(link, "x.py"))
	assert.True(t, failure.Is(err, failure.OutOfScope))
	assert.False(t, policy.Allows(filepath.Join(link, "x.py")))
}

func TestEmptyRootAllowsEverything(t *testing.T) {
	policy, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "", policy.Root())
	assert.True(t, policy.Allows("/etc/hosts"))

	var nilPolicy *Policy
	assert.True(t, nilPolicy.Allows("/tmp"))
}

func TestRootPrefixIsNotContainment(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "app")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(root+"-other", 0o755))

	policy, err := New(root)
	require.NoError(t, err)
	assert.False(t, policy.Allows(filepath.Join(root+"-other", "x.py")))
}
