package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNarrativeActors(t *testing.T) {
	n := &Narrative{}

	assert.True(t, n.AddActor("user_0a1b2c3d", ActorTypeUser))
	assert.True(t, n.AddActor("agent_0a1b2c3d", ActorTypeAgent))
	assert.True(t, n.AddActor("colleague@example.com", ActorTypeParticipant))

	// Idempotent.
	assert.False(t, n.AddActor("user_0a1b2c3d", ActorTypeUser))
	assert.Len(t, n.Info.Actors, 3)

	assert.True(t, n.HasActor("user_0a1b2c3d", ActorTypeUser))
	assert.False(t, n.HasActor("user_0a1b2c3d", ActorTypeParticipant))

	assert.Equal(t, []string{"user_0a1b2c3d"}, n.ActorIDs(ActorTypeUser))
	assert.Equal(t, []string{"colleague@example.com"}, n.ActorIDs(ActorTypeParticipant))
}

func TestNarrativeCanModifyJobs(t *testing.T) {
	n := &Narrative{}
	n.AddActor("user_0a1b2c3d", ActorTypeUser)
	n.AddActor("colleague@example.com", ActorTypeParticipant)

	assert.True(t, n.CanModifyJobs("user_0a1b2c3d"))
	// Participants route messages in but hold no authority.
	assert.False(t, n.CanModifyJobs("colleague@example.com"))
	assert.False(t, n.CanModifyJobs("stranger"))
}
