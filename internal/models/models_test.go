package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponsibleCodec(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		raw := JoinResponsible([]string{"alice", "bob"})
		assert.Equal(t, "alice, bob", raw)
		assert.Equal(t, []string{"alice", "bob"}, SplitResponsible(raw))
	})

	t.Run("split trims and de-duplicates", func(t *testing.T) {
		assert.Equal(t, []string{"alice", "bob"}, SplitResponsible(" alice ,bob, alice,,"))
	})

	t.Run("empty forms", func(t *testing.T) {
		assert.Nil(t, SplitResponsible(""))
		assert.Nil(t, SplitResponsible("  ,  "))
		assert.Equal(t, "", JoinResponsible(nil))
	})
}

func TestStatusSet(t *testing.T) {
	statuses := DefaultStatuses()

	assert.True(t, statuses.Valid("todo"))
	assert.False(t, statuses.Valid("archived"))
	assert.True(t, statuses.Terminal("done"))
	assert.False(t, statuses.Terminal("todo"))
	assert.Equal(t, "todo", statuses.First())
	assert.Less(t, statuses.DisplayOrder("todo"), statuses.DisplayOrder("in_progress"))
	assert.Greater(t, statuses.DisplayOrder("archived"), statuses.DisplayOrder("done"), "unknown statuses sort last")
}

func TestTaskValidate(t *testing.T) {
	statuses := DefaultStatuses()
	valid := Task{Name: "x", Project: "p", Status: "todo"}
	assert.NoError(t, valid.Validate(statuses))

	var verr *ValidationError
	for _, broken := range []Task{
		{Name: "", Project: "p", Status: "todo"},
		{Name: "x", Project: "", Status: "todo"},
		{Name: "x", Project: "p", Status: "bogus"},
	} {
		assert.ErrorAs(t, broken.Validate(statuses), &verr)
	}
}

func TestTaskClone(t *testing.T) {
	orig := Task{RowID: "1", Responsible: []string{"alice"}}
	clone := orig.Clone()
	clone.Responsible[0] = "bob"
	assert.Equal(t, []string{"alice"}, orig.Responsible)
}

func TestRole(t *testing.T) {
	assert.True(t, RoleOwner.Elevated())
	assert.True(t, RoleAdmin.Elevated())
	assert.False(t, RoleUser.Elevated())
}

func TestProjectNames(t *testing.T) {
	tasks := []Task{
		{Project: "zeta"},
		{Project: "alpha"},
		{Project: "zeta"},
		{Project: ""},
	}
	assert.Equal(t, []string{"alpha", "zeta"}, ProjectNames(tasks))
}
