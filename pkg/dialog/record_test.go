package dialog_test

import (
	"testing"

	"github.com/aretw0/lockstep/pkg/dialog"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestPolicyRecord(t *testing.T) {
	r := dialog.NewPolicyRecord()
	assert.Equal(t, 0, r.Len())

	_, replaced := r.Set("prefs", "p1")
	assert.False(t, replaced)
	prev, replaced := r.Set("prefs", "p2")
	assert.True(t, replaced)
	assert.Equal(t, domain.PolicyID("p1"), prev)

	got, ok := r.Get("prefs")
	assert.True(t, ok)
	assert.Equal(t, domain.PolicyID("p2"), got)

	snap := r.Snapshot()
	snap["other"] = "p3"
	assert.Equal(t, 1, r.Len(), "Snapshot must be a copy")

	r.Delete("prefs")
	_, ok = r.Get("prefs")
	assert.False(t, ok)

	r.Set("a", "p1")
	r.Set("b", "p2")
	r.Clear()
	assert.Empty(t, r.Snapshot())
}
