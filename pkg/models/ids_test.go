package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	id := NewID(PrefixJob)
	assert.True(t, strings.HasPrefix(id, "job_"))
	assert.True(t, IsWellFormedID(id))

	// Fresh UUID bytes every call.
	assert.NotEqual(t, id, NewID(PrefixJob))
}

func TestIsWellFormedID(t *testing.T) {
	tests := []struct {
		id       string
		expected bool
	}{
		{"job_0a1b2c3d", true},
		{"nar_deadbeef", true},
		{"daily-report", false},
		{"job_0a1b2c", false},      // too short
		{"job_0a1b2c3d4e", false},  // too long
		{"job_ZZZZZZZZ", false},    // not hex
		{"Job_0a1b2c3d", false},    // uppercase prefix
		{"_0a1b2c3d", false},       // empty prefix
		{"job-0a1b2c3d", false},    // wrong separator
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsWellFormedID(tt.id))
		})
	}
}

func TestInstancePrefix(t *testing.T) {
	assert.Equal(t, PrefixChat, InstancePrefix(ModuleClassChat))
	assert.Equal(t, PrefixJob, InstancePrefix(ModuleClassJob))
	assert.Equal(t, PrefixSocial, InstancePrefix(ModuleClassSocialNetwork))
	assert.Equal(t, "inst", InstancePrefix(ModuleClass("unknown")))
}
