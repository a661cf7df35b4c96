package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModuleInstanceOwnedBy(t *testing.T) {
	owner := "user_0a1b2c3d"

	private := &ModuleInstance{UserID: &owner}
	assert.True(t, private.OwnedBy(owner))
	assert.False(t, private.OwnedBy("user_ffffffff"))

	public := &ModuleInstance{IsPublic: true, UserID: &owner}
	assert.True(t, public.OwnedBy("user_ffffffff"))

	agentLevel := &ModuleInstance{}
	assert.True(t, agentLevel.OwnedBy("anyone"))
}

func TestModuleInstanceDependsOn(t *testing.T) {
	inst := &ModuleInstance{Dependencies: []string{"job_00000001", "job_00000002"}}
	assert.True(t, inst.DependsOn("job_00000002"))
	assert.False(t, inst.DependsOn("job_00000003"))
	assert.False(t, (&ModuleInstance{}).DependsOn("job_00000001"))
}

func TestInstanceStatusIsTerminal(t *testing.T) {
	assert.True(t, InstanceStatusCompleted.IsTerminal())
	assert.True(t, InstanceStatusFailed.IsTerminal())
	assert.True(t, InstanceStatusCancelled.IsTerminal())
	assert.False(t, InstanceStatusActive.IsTerminal())
	assert.False(t, InstanceStatusBlocked.IsTerminal())
	assert.False(t, InstanceStatusInProgress.IsTerminal())
	assert.False(t, InstanceStatusArchived.IsTerminal())
}
