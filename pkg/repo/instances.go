package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/models"
)

// InstanceRepo manages module instances and their lifecycle bookkeeping.
type InstanceRepo struct {
	store *database.Store
}

// NewInstanceRepo creates an InstanceRepo.
func NewInstanceRepo(store *database.Store) *InstanceRepo {
	return &InstanceRepo{store: store}
}

// validateInstance enforces the structural invariants of an instance row.
func validateInstance(inst *models.ModuleInstance) error {
	if !inst.ModuleClass.IsValid() {
		return NewValidationError("module_class", fmt.Sprintf("unknown module class %q", inst.ModuleClass))
	}
	if inst.AgentID == "" {
		return NewValidationError("agent_id", "required")
	}
	if inst.IsPublic && inst.UserID != nil {
		return NewValidationError("user_id", "public instances must not carry a user_id")
	}
	if !inst.IsPublic && inst.UserID == nil {
		return NewValidationError("user_id", "private instances require a user_id")
	}
	if inst.Status == models.InstanceStatusBlocked && len(inst.Dependencies) == 0 {
		return NewValidationError("status", "blocked instances require dependencies")
	}
	if !inst.Status.IsValid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", inst.Status))
	}
	return nil
}

// Create persists a new instance. The caller allocates the id so that
// sibling rows (jobs, links) can reference it inside one transaction.
func (r *InstanceRepo) Create(ctx context.Context, inst *models.ModuleInstance) error {
	return r.CreateTx(ctx, r.store, inst)
}

// CreateTx is Create against an explicit store scope.
func (r *InstanceRepo) CreateTx(ctx context.Context, tx *database.Store, inst *models.ModuleInstance) error {
	if inst.InstanceID == "" {
		inst.InstanceID = models.NewID(models.InstancePrefix(inst.ModuleClass))
	}
	if inst.Status == "" {
		inst.Status = models.InstanceStatusActive
	}
	if inst.LastPolledStatus == "" {
		inst.LastPolledStatus = inst.Status
	}
	if err := validateInstance(inst); err != nil {
		return err
	}
	data := map[string]any{
		"instance_id":        inst.InstanceID,
		"module_class":       string(inst.ModuleClass),
		"agent_id":           inst.AgentID,
		"is_public":          inst.IsPublic,
		"status":             string(inst.Status),
		"description":        inst.Description,
		"dependencies":       mustJSON(orEmptyList(inst.Dependencies)),
		"config":             mustJSON(orEmptyMap(inst.Config)),
		"state":              mustJSON(orEmptyMap(inst.State)),
		"keywords":           mustJSON(orEmptyList(inst.Keywords)),
		"topic_hint":         inst.TopicHint,
		"last_polled_status": string(inst.LastPolledStatus),
		"callback_processed": true,
	}
	if inst.UserID != nil {
		data["user_id"] = *inst.UserID
	}
	if len(inst.RoutingEmbedding) > 0 {
		data["routing_embedding"] = database.EncodeVector(inst.RoutingEmbedding)
	}
	return tx.Insert(ctx, "module_instances", data)
}

// Get loads one instance.
func (r *InstanceRepo) Get(ctx context.Context, instanceID string) (*models.ModuleInstance, error) {
	row, err := r.store.GetOne(ctx, "module_instances", map[string]any{"instance_id": instanceID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("instance %s: %w", instanceID, ErrNotFound)
	}
	return instanceFromRow(row), nil
}

// GetMany loads instances by id in the given order. Missing ids yield nil
// entries.
func (r *InstanceRepo) GetMany(ctx context.Context, instanceIDs []string) ([]*models.ModuleInstance, error) {
	rows, err := r.store.GetByIDs(ctx, "module_instances", "instance_id", instanceIDs)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ModuleInstance, len(rows))
	for i, row := range rows {
		if row != nil {
			out[i] = instanceFromRow(row)
		}
	}
	return out, nil
}

// ListForAgent returns instances filtered by the optional class and statuses.
func (r *InstanceRepo) ListForAgent(ctx context.Context, agentID string, class models.ModuleClass, statuses []models.InstanceStatus) ([]*models.ModuleInstance, error) {
	filters := map[string]any{"agent_id": agentID}
	if class != "" {
		filters["module_class"] = string(class)
	}
	if len(statuses) > 0 {
		vals := make([]string, len(statuses))
		for i, s := range statuses {
			vals[i] = string(s)
		}
		filters["status"] = vals
	}
	rows, err := r.store.Get(ctx, "module_instances", filters, &database.QueryOpts{OrderBy: "created_at"})
	if err != nil {
		return nil, err
	}
	out := make([]*models.ModuleInstance, 0, len(rows))
	for _, row := range rows {
		out = append(out, instanceFromRow(row))
	}
	return out, nil
}

// PublicForAgent returns the agent-level singleton instances.
func (r *InstanceRepo) PublicForAgent(ctx context.Context, agentID string) ([]*models.ModuleInstance, error) {
	rows, err := r.store.Get(ctx, "module_instances",
		map[string]any{"agent_id": agentID, "is_public": true},
		&database.QueryOpts{OrderBy: "created_at"})
	if err != nil {
		return nil, err
	}
	out := make([]*models.ModuleInstance, 0, len(rows))
	for _, row := range rows {
		out = append(out, instanceFromRow(row))
	}
	return out, nil
}

// SetStatus transitions the instance and keeps poller bookkeeping coherent:
// any status write clears callback_processed so the poller picks the change
// up, and terminal transitions stamp completed_at.
func (r *InstanceRepo) SetStatus(ctx context.Context, instanceID string, status models.InstanceStatus) error {
	return r.SetStatusTx(ctx, r.store, instanceID, status)
}

// SetStatusTx is SetStatus against an explicit store scope.
func (r *InstanceRepo) SetStatusTx(ctx context.Context, tx *database.Store, instanceID string, status models.InstanceStatus) error {
	if !status.IsValid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	data := map[string]any{
		"status":             string(status),
		"callback_processed": false,
	}
	if status.IsTerminal() {
		data["completed_at"] = time.Now().UTC()
	}
	n, err := tx.Update(ctx, "module_instances", map[string]any{"instance_id": instanceID}, data)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("instance %s: %w", instanceID, ErrNotFound)
	}
	return nil
}

// Unblock flips a blocked instance to active. No-op when the instance has
// moved on already.
func (r *InstanceRepo) Unblock(ctx context.Context, instanceID string) (bool, error) {
	n, err := r.store.Update(ctx, "module_instances",
		map[string]any{"instance_id": instanceID, "status": string(models.InstanceStatusBlocked)},
		map[string]any{"status": string(models.InstanceStatusActive), "callback_processed": false})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PollCandidates returns instances whose status changed to a poller-relevant
// terminal value while a run was in flight and whose completion callback has
// not yet fired.
func (r *InstanceRepo) PollCandidates(ctx context.Context, limit int) ([]*models.ModuleInstance, error) {
	rows, err := r.store.Get(ctx, "module_instances",
		map[string]any{
			"status":             []string{string(models.InstanceStatusCompleted), string(models.InstanceStatusFailed)},
			"last_polled_status": string(models.InstanceStatusInProgress),
			"callback_processed": false,
		},
		&database.QueryOpts{OrderBy: "updated_at", Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]*models.ModuleInstance, 0, len(rows))
	for _, row := range rows {
		out = append(out, instanceFromRow(row))
	}
	return out, nil
}

// MarkPolled records that the poller observed the current status without
// firing a callback.
func (r *InstanceRepo) MarkPolled(ctx context.Context, instanceID string, observed models.InstanceStatus) error {
	_, err := r.store.Update(ctx, "module_instances",
		map[string]any{"instance_id": instanceID},
		map[string]any{"last_polled_status": string(observed)})
	return err
}

// MarkCallbackProcessed closes the poller loop for the instance. The claim
// is conditional on callback_processed still being false, which makes the
// completion callback fire at most once per status change.
func (r *InstanceRepo) MarkCallbackProcessed(ctx context.Context, instanceID string, observed models.InstanceStatus) (bool, error) {
	n, err := r.store.Update(ctx, "module_instances",
		map[string]any{"instance_id": instanceID, "callback_processed": false},
		map[string]any{
			"last_polled_status": string(observed),
			"callback_processed": true,
		})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Touch stamps last_used_at.
func (r *InstanceRepo) Touch(ctx context.Context, instanceID string) error {
	_, err := r.store.Update(ctx, "module_instances",
		map[string]any{"instance_id": instanceID},
		map[string]any{"last_used_at": time.Now().UTC()})
	return err
}

// SaveState replaces the instance's state document.
func (r *InstanceRepo) SaveState(ctx context.Context, instanceID string, state map[string]any) error {
	_, err := r.store.Update(ctx, "module_instances",
		map[string]any{"instance_id": instanceID},
		map[string]any{"state": mustJSON(orEmptyMap(state))})
	return err
}

// MergeState folds the given keys into the instance's state document,
// last writer wins per key.
func (r *InstanceRepo) MergeState(ctx context.Context, instanceID string, delta map[string]any) error {
	inst, err := r.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	state := inst.State
	if state == nil {
		state = map[string]any{}
	}
	for k, v := range delta {
		state[k] = v
	}
	return r.SaveState(ctx, instanceID, state)
}

// SetRouting updates the routing metadata used by instance selection.
func (r *InstanceRepo) SetRouting(ctx context.Context, instanceID string, keywords []string, topicHint string, embedding []float32) error {
	data := map[string]any{
		"keywords":   mustJSON(orEmptyList(keywords)),
		"topic_hint": topicHint,
	}
	if len(embedding) > 0 {
		data["routing_embedding"] = database.EncodeVector(embedding)
	}
	_, err := r.store.Update(ctx, "module_instances", map[string]any{"instance_id": instanceID}, data)
	return err
}

// Dependents returns active-or-blocked instances of the agent that declare a
// dependency on the given instance. Dependency lists live inside JSON, so
// the edge check happens after load.
func (r *InstanceRepo) Dependents(ctx context.Context, agentID, instanceID string) ([]*models.ModuleInstance, error) {
	rows, err := r.store.Get(ctx, "module_instances",
		map[string]any{
			"agent_id": agentID,
			"status":   []string{string(models.InstanceStatusActive), string(models.InstanceStatusBlocked)},
		}, nil)
	if err != nil {
		return nil, err
	}
	var out []*models.ModuleInstance
	for _, row := range rows {
		inst := instanceFromRow(row)
		if inst.DependsOn(instanceID) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func instanceFromRow(row database.Row) *models.ModuleInstance {
	inst := &models.ModuleInstance{
		InstanceID:        rowString(row, "instance_id"),
		ModuleClass:       models.ModuleClass(rowString(row, "module_class")),
		AgentID:           rowString(row, "agent_id"),
		UserID:            rowStringPtr(row, "user_id"),
		IsPublic:          rowBool(row, "is_public"),
		Status:            models.InstanceStatus(rowString(row, "status")),
		Description:       rowString(row, "description"),
		Dependencies:      rowStringList(row, "dependencies"),
		Config:            rowMap(row, "config"),
		State:             rowMap(row, "state"),
		Keywords:          rowStringList(row, "keywords"),
		TopicHint:         rowString(row, "topic_hint"),
		RoutingEmbedding:  rowVector(row, "routing_embedding"),
		LastPolledStatus:  models.InstanceStatus(rowString(row, "last_polled_status")),
		CallbackProcessed: rowBool(row, "callback_processed"),
		CreatedAt:         rowTime(row, "created_at"),
		UpdatedAt:         rowTime(row, "updated_at"),
		LastUsedAt:        rowTimePtr(row, "last_used_at"),
		CompletedAt:       rowTimePtr(row, "completed_at"),
	}
	return inst
}

func orEmptyList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
