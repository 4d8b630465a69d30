package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rootgraft/graftd/internal/plan"
)

func TestSortedKeys(t *testing.T) {
	set := map[string]bool{"zeta": true, "alpha": true, "mid": true}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, sortedKeys(set))
}

func TestSortedKeys_Empty(t *testing.T) {
	assert.Empty(t, sortedKeys(map[string]bool{}))
}

func TestRun_EmptyPlanProducesEmptyResult(t *testing.T) {
	e := New(nil, nil, t.TempDir(), nil)
	result := e.Run(plan.MountPlan{})
	assert.Empty(t, result.OverlayModuleIDs)
	assert.Empty(t, result.MagicModuleIDs)
	assert.Empty(t, result.ActivePartitions)
}
