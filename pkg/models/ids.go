package models

import (
	"encoding/hex"
	"regexp"

	"github.com/google/uuid"
)

// ID prefixes. Every platform-allocated identifier is "{prefix}_{8 hex chars}".
const (
	PrefixAgent     = "agent"
	PrefixNarrative = "nar"
	PrefixEvent     = "event"
	PrefixJob       = "job"
	PrefixChat      = "chat"
	PrefixAwareness = "aware"
	PrefixSocial    = "social"
	PrefixBasic     = "basic"
	PrefixRAG       = "rag"
	PrefixSkill     = "skill"
	PrefixMCP       = "mcp"
	PrefixMessage   = "msg"
	PrefixEntity    = "ent"
)

var idPattern = regexp.MustCompile(`^[a-z]+_[0-9a-f]{8}$`)

// NewID allocates a prefixed identifier from fresh UUID bytes.
func NewID(prefix string) string {
	u := uuid.New()
	return prefix + "_" + hex.EncodeToString(u[:4])
}

// IsWellFormedID reports whether s matches the platform ID shape.
// Planner output may carry free-form task keys in ID positions; those must
// be re-allocated rather than persisted.
func IsWellFormedID(s string) bool {
	return idPattern.MatchString(s)
}

// InstancePrefix returns the ID prefix for a module class.
func InstancePrefix(class ModuleClass) string {
	switch class {
	case ModuleClassChat:
		return PrefixChat
	case ModuleClassJob:
		return PrefixJob
	case ModuleClassAwareness:
		return PrefixAwareness
	case ModuleClassSocialNetwork:
		return PrefixSocial
	case ModuleClassBasicInfo:
		return PrefixBasic
	case ModuleClassRAG:
		return PrefixRAG
	case ModuleClassSkill:
		return PrefixSkill
	default:
		return "inst"
	}
}
