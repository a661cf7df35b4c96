package models

import (
	"time"
)

// User is a platform account. Timezone is authoritative for all user-facing
// time formatting.
type User struct {
	UserID      string     `json:"user_id"`
	Type        string     `json:"type"`
	DisplayName string     `json:"display_name"`
	Timezone    string     `json:"timezone"`
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Location resolves the user's IANA timezone, defaulting to UTC when the
// field is empty or unparseable. Invalid values are rejected at write time;
// this is the read-side safety net.
func (u *User) Location() *time.Location {
	if u == nil || u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatTime renders t in the user's timezone for display.
func (u *User) FormatTime(t time.Time) string {
	return t.In(u.Location()).Format("2006-01-02 15:04")
}

// ValidTimezone reports whether tz is an acceptable IANA timezone string.
// Empty means "UTC" and is accepted.
func ValidTimezone(tz string) bool {
	if tz == "" {
		return true
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}
