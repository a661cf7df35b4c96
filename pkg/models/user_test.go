package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserLocation(t *testing.T) {
	assert.Equal(t, time.UTC, (*User)(nil).Location())
	assert.Equal(t, time.UTC, (&User{}).Location())
	assert.Equal(t, time.UTC, (&User{Timezone: "Mars/Olympus"}).Location())

	loc := (&User{Timezone: "America/New_York"}).Location()
	assert.Equal(t, "America/New_York", loc.String())
}

func TestUserFormatTime(t *testing.T) {
	ts := time.Date(2026, 1, 15, 18, 30, 0, 0, time.UTC)

	u := &User{Timezone: "Asia/Shanghai"}
	assert.Equal(t, "2026-01-16 02:30", u.FormatTime(ts))

	assert.Equal(t, "2026-01-15 18:30", (&User{}).FormatTime(ts))
}

func TestValidTimezone(t *testing.T) {
	assert.True(t, ValidTimezone(""))
	assert.True(t, ValidTimezone("UTC"))
	assert.True(t, ValidTimezone("Europe/Berlin"))
	assert.False(t, ValidTimezone("Narnia/Lantern"))
}
