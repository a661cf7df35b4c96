package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/models"
)

// UserRepo manages user accounts.
type UserRepo struct {
	store *database.Store
}

// NewUserRepo creates a UserRepo.
func NewUserRepo(store *database.Store) *UserRepo {
	return &UserRepo{store: store}
}

// Create registers a user with a caller-supplied id. Returns
// ErrAlreadyExists on duplicate ids.
func (r *UserRepo) Create(ctx context.Context, userID, userType, displayName, timezone string) (*models.User, error) {
	if userID == "" {
		return nil, NewValidationError("user_id", "required")
	}
	if !models.ValidTimezone(timezone) {
		return nil, NewValidationError("timezone", fmt.Sprintf("unknown IANA timezone %q", timezone))
	}
	existing, err := r.store.GetOne(ctx, "users", map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrAlreadyExists)
	}
	if userType == "" {
		userType = "standard"
	}
	if timezone == "" {
		timezone = "UTC"
	}
	user := &models.User{
		UserID:      userID,
		Type:        userType,
		DisplayName: displayName,
		Timezone:    timezone,
		Status:      "active",
	}
	err = r.store.Insert(ctx, "users", map[string]any{
		"user_id":      user.UserID,
		"type":         user.Type,
		"display_name": user.DisplayName,
		"timezone":     user.Timezone,
		"status":       user.Status,
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Get loads one user.
func (r *UserRepo) Get(ctx context.Context, userID string) (*models.User, error) {
	row, err := r.store.GetOne(ctx, "users", map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return userFromRow(row), nil
}

// GetOrDefault loads the user, falling back to a UTC stand-in when the row
// is missing. Time formatting must never fail a job run over a deleted user.
func (r *UserRepo) GetOrDefault(ctx context.Context, userID string) *models.User {
	user, err := r.Get(ctx, userID)
	if err != nil {
		return &models.User{UserID: userID, Timezone: "UTC", Status: "active"}
	}
	return user
}

// Update modifies display_name/timezone/status.
func (r *UserRepo) Update(ctx context.Context, userID string, data map[string]any) error {
	allowed := map[string]any{}
	for _, field := range []string{"display_name", "timezone", "status"} {
		if v, ok := data[field]; ok {
			allowed[field] = v
		}
	}
	if tz, ok := allowed["timezone"].(string); ok && !models.ValidTimezone(tz) {
		return NewValidationError("timezone", fmt.Sprintf("unknown IANA timezone %q", tz))
	}
	if len(allowed) == 0 {
		return NewValidationError("data", "no updatable fields")
	}
	n, err := r.store.Update(ctx, "users", map[string]any{"user_id": userID}, allowed)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

// TouchLogin stamps last_login_at.
func (r *UserRepo) TouchLogin(ctx context.Context, userID string) error {
	_, err := r.store.Update(ctx, "users",
		map[string]any{"user_id": userID},
		map[string]any{"last_login_at": time.Now().UTC()})
	return err
}

func userFromRow(row database.Row) *models.User {
	return &models.User{
		UserID:      rowString(row, "user_id"),
		Type:        rowString(row, "type"),
		DisplayName: rowString(row, "display_name"),
		Timezone:    rowString(row, "timezone"),
		Status:      rowString(row, "status"),
		LastLoginAt: rowTimePtr(row, "last_login_at"),
		CreatedAt:   rowTime(row, "created_at"),
		UpdatedAt:   rowTime(row, "updated_at"),
	}
}
