package repo

import (
	"context"
	"fmt"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/models"
)

// InboxRepo manages user inbox messages and agent-to-agent messages.
type InboxRepo struct {
	store *database.Store
}

// NewInboxRepo creates an InboxRepo.
func NewInboxRepo(store *database.Store) *InboxRepo {
	return &InboxRepo{store: store}
}

// Deliver appends a message to the user's inbox.
func (r *InboxRepo) Deliver(ctx context.Context, msg *models.InboxMessage) error {
	if msg.UserID == "" {
		return NewValidationError("user_id", "required")
	}
	if msg.MessageID == "" {
		msg.MessageID = models.NewID(models.PrefixMessage)
	}
	if msg.MessageType == "" {
		msg.MessageType = models.MessageTypeAgentMessage
	}
	if msg.SourceType == "" {
		msg.SourceType = models.SourceTypeAgent
	}
	return r.store.Insert(ctx, "inbox_table", map[string]any{
		"message_id":   msg.MessageID,
		"user_id":      msg.UserID,
		"title":        msg.Title,
		"content":      msg.Content,
		"message_type": string(msg.MessageType),
		"source_type":  string(msg.SourceType),
		"source_id":    msg.SourceID,
		"event_id":     msg.EventID,
		"is_read":      false,
	})
}

// List returns the user's messages, newest first, optionally unread only.
func (r *InboxRepo) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*models.InboxMessage, error) {
	filters := map[string]any{"user_id": userID}
	if unreadOnly {
		filters["is_read"] = false
	}
	rows, err := r.store.Get(ctx, "inbox_table", filters,
		&database.QueryOpts{OrderBy: "created_at", Desc: true, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	out := make([]*models.InboxMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, inboxFromRow(row))
	}
	return out, nil
}

// UnreadCount returns the number of unread messages.
func (r *InboxRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	rows, err := r.store.Query(ctx,
		"SELECT COUNT(*) AS n FROM inbox_table WHERE user_id = $1 AND is_read = FALSE", userID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rowInt(rows[0], "n"), nil
}

// MarkRead flips is_read true for the given messages of the user. The flip
// is one-way; marking an already-read message is a no-op.
func (r *InboxRepo) MarkRead(ctx context.Context, userID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	return r.store.Update(ctx, "inbox_table",
		map[string]any{"user_id": userID, "message_id": messageIDs},
		map[string]any{"is_read": true})
}

// MarkAllRead flips every unread message of the user.
func (r *InboxRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return r.store.Update(ctx, "inbox_table",
		map[string]any{"user_id": userID, "is_read": false},
		map[string]any{"is_read": true})
}

// DeliverAgentMessage appends a message addressed to an agent. if_response
// starts false; the target agent's turn flips it once consumed.
func (r *InboxRepo) DeliverAgentMessage(ctx context.Context, msg *models.AgentMessage) error {
	if msg.AgentID == "" {
		return NewValidationError("agent_id", "required")
	}
	if msg.MessageID == "" {
		msg.MessageID = models.NewID(models.PrefixMessage)
	}
	if msg.MessageType == "" {
		msg.MessageType = models.MessageTypeAgentMessage
	}
	if msg.SourceType == "" {
		msg.SourceType = models.SourceTypeAgent
	}
	return r.store.Insert(ctx, "agent_messages", map[string]any{
		"message_id":   msg.MessageID,
		"agent_id":     msg.AgentID,
		"title":        msg.Title,
		"content":      msg.Content,
		"message_type": string(msg.MessageType),
		"source_type":  string(msg.SourceType),
		"source_id":    msg.SourceID,
		"event_id":     msg.EventID,
		"if_response":  false,
	})
}

// PendingAgentMessages returns the agent's unconsumed messages, oldest first.
func (r *InboxRepo) PendingAgentMessages(ctx context.Context, agentID string, limit int) ([]*models.AgentMessage, error) {
	rows, err := r.store.Get(ctx, "agent_messages",
		map[string]any{"agent_id": agentID, "if_response": false},
		&database.QueryOpts{OrderBy: "created_at", Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]*models.AgentMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, agentMessageFromRow(row))
	}
	return out, nil
}

// MarkAgentMessagesResponded flips if_response for the given messages.
func (r *InboxRepo) MarkAgentMessagesResponded(ctx context.Context, agentID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.store.Update(ctx, "agent_messages",
		map[string]any{"agent_id": agentID, "message_id": messageIDs},
		map[string]any{"if_response": true})
	return err
}

// GetMessage loads one inbox message scoped to its owner.
func (r *InboxRepo) GetMessage(ctx context.Context, userID, messageID string) (*models.InboxMessage, error) {
	row, err := r.store.GetOne(ctx, "inbox_table",
		map[string]any{"user_id": userID, "message_id": messageID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return inboxFromRow(row), nil
}

func inboxFromRow(row database.Row) *models.InboxMessage {
	return &models.InboxMessage{
		MessageID:   rowString(row, "message_id"),
		UserID:      rowString(row, "user_id"),
		Title:       rowString(row, "title"),
		Content:     rowString(row, "content"),
		MessageType: models.MessageType(rowString(row, "message_type")),
		SourceType:  models.SourceType(rowString(row, "source_type")),
		SourceID:    rowString(row, "source_id"),
		EventID:     rowString(row, "event_id"),
		IsRead:      rowBool(row, "is_read"),
		CreatedAt:   rowTime(row, "created_at"),
	}
}

func agentMessageFromRow(row database.Row) *models.AgentMessage {
	return &models.AgentMessage{
		MessageID:   rowString(row, "message_id"),
		AgentID:     rowString(row, "agent_id"),
		Title:       rowString(row, "title"),
		Content:     rowString(row, "content"),
		MessageType: models.MessageType(rowString(row, "message_type")),
		SourceType:  models.SourceType(rowString(row, "source_type")),
		SourceID:    rowString(row, "source_id"),
		EventID:     rowString(row, "event_id"),
		IfResponse:  rowBool(row, "if_response"),
		CreatedAt:   rowTime(row, "created_at"),
	}
}
