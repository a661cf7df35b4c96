// Package models defines the persisted entities and closed enum sets shared
// across the platform core.
package models

// ModuleClass identifies a module implementation.
type ModuleClass string

// Module classes.
const (
	ModuleClassChat          ModuleClass = "ChatModule"
	ModuleClassJob           ModuleClass = "JobModule"
	ModuleClassAwareness     ModuleClass = "AwarenessModule"
	ModuleClassSocialNetwork ModuleClass = "SocialNetworkModule"
	ModuleClassBasicInfo     ModuleClass = "BasicInfoModule"
	ModuleClassRAG           ModuleClass = "GeminiRAGModule"
	ModuleClassSkill         ModuleClass = "SkillModule"
)

// IsTaskModule reports whether instances of this class are scheduled work
// (participate in dependency edges) rather than ambient capabilities.
func (c ModuleClass) IsTaskModule() bool {
	return c == ModuleClassJob || c == ModuleClassChat
}

// IsValid reports whether c is a known module class.
func (c ModuleClass) IsValid() bool {
	switch c {
	case ModuleClassChat, ModuleClassJob, ModuleClassAwareness,
		ModuleClassSocialNetwork, ModuleClassBasicInfo, ModuleClassRAG, ModuleClassSkill:
		return true
	}
	return false
}

// InstanceStatus is the lifecycle state of a module instance.
type InstanceStatus string

// Instance statuses.
const (
	InstanceStatusActive     InstanceStatus = "active"
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusBlocked    InstanceStatus = "blocked"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusFailed     InstanceStatus = "failed"
	InstanceStatusCancelled  InstanceStatus = "cancelled"
	InstanceStatusArchived   InstanceStatus = "archived"
)

// IsTerminal reports whether the status releases downstream dependents.
// A failed dependency still unblocks dependents; the dependent's payload
// decides what to do with the failed upstream output.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFailed || s == InstanceStatusCancelled
}

// IsValid reports whether s is a known instance status.
func (s InstanceStatus) IsValid() bool {
	switch s {
	case InstanceStatusActive, InstanceStatusInProgress, InstanceStatusBlocked,
		InstanceStatusCompleted, InstanceStatusFailed, InstanceStatusCancelled,
		InstanceStatusArchived:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a background job.
type JobStatus string

// Job statuses.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the job will never run again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// IsClaimable reports whether a worker may atomically claim the job.
func (s JobStatus) IsClaimable() bool {
	return s == JobStatusPending || s == JobStatusActive
}

// JobType distinguishes the scheduling semantics of a job.
type JobType string

// Job types.
const (
	JobTypeOneOff    JobType = "one_off"
	JobTypeScheduled JobType = "scheduled"
	JobTypeOngoing   JobType = "ongoing"
)

// WorkingSource is the trigger channel of an agent turn.
type WorkingSource string

// Working sources.
const (
	WorkingSourceChat WorkingSource = "chat"
	WorkingSourceJob  WorkingSource = "job"
	WorkingSourceA2A  WorkingSource = "a2a"
)

// ExecutionPath is the decider-chosen execution strategy for a turn.
type ExecutionPath string

// Execution paths.
const (
	ExecutionPathAgentLoop     ExecutionPath = "agent_loop"
	ExecutionPathDirectTrigger ExecutionPath = "direct_trigger"
)

// LinkType qualifies an instance↔narrative link.
type LinkType string

// Link types.
const (
	LinkTypeActive     LinkType = "active"
	LinkTypeHistorical LinkType = "historical"
)

// ActorType is the role of a narrative actor.
type ActorType string

// Actor types.
const (
	ActorTypeUser        ActorType = "user"
	ActorTypeAgent       ActorType = "agent"
	ActorTypeParticipant ActorType = "participant"
)

// MessageType classifies inbox and agent messages.
type MessageType string

// Message types.
const (
	MessageTypeAgentMessage MessageType = "agent_message"
	MessageTypeJobResult    MessageType = "job_result"
	MessageTypeSystem       MessageType = "system"
)

// SourceType identifies the producer of a message.
type SourceType string

// Source types.
const (
	SourceTypeAgent SourceType = "agent"
	SourceTypeJob   SourceType = "job"
)

// NotificationMethod selects the delivery channel for job results.
type NotificationMethod string

// Notification methods. Inbox delivery always happens; slack is additive.
const (
	NotificationMethodInbox NotificationMethod = "inbox"
	NotificationMethodSlack NotificationMethod = "slack"
)

// ConnectionStatus is the probe state of a remote MCP endpoint.
type ConnectionStatus string

// Connection statuses.
const (
	ConnectionStatusUnknown   ConnectionStatus = "unknown"
	ConnectionStatusConnected ConnectionStatus = "connected"
	ConnectionStatusFailed    ConnectionStatus = "failed"
)
