package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLowerUpper_OrdinaryDirIsCompatible(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckLower(dir))
	assert.NoError(t, CheckUpper(dir))
}

func TestCheckLayerFs_NonexistentPathErrors(t *testing.T) {
	err := CheckLower("/nonexistent/path/for/graftd/tests")
	require.Error(t, err)
	assert.False(t, IsIncompatible(err))
}

func TestIsIncompatible_MatchesErrIncompatibleFilesystem(t *testing.T) {
	err := &ErrIncompatibleFilesystem{Path: "/mnt/nfs", Name: "NFS", Kind: upperLayer}
	assert.True(t, IsIncompatible(err))
	assert.Contains(t, err.Error(), "NFS")
	assert.Contains(t, err.Error(), "upper")
}

func TestErrIncompatibleFilesystem_LowerRole(t *testing.T) {
	err := &ErrIncompatibleFilesystem{Path: "/mnt/ecrypt", Name: "ECRYPT", Kind: lowerLayer}
	assert.Contains(t, err.Error(), "lower")
}
