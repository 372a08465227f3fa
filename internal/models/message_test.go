package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	// Forward progress along the delivery chain.
	assert.True(t, CanTransition(StatusPending, StatusSent))
	assert.True(t, CanTransition(StatusSent, StatusDelivered))
	assert.True(t, CanTransition(StatusSent, StatusRead), "delivered may be skipped")
	assert.True(t, CanTransition(StatusDelivered, StatusRead))

	// Never backwards, never sideways to the same status.
	assert.False(t, CanTransition(StatusDelivered, StatusSent))
	assert.False(t, CanTransition(StatusRead, StatusDelivered))
	assert.False(t, CanTransition(StatusSent, StatusSent))

	// failed only from pending; deleted from any live status.
	assert.True(t, CanTransition(StatusPending, StatusFailed))
	assert.False(t, CanTransition(StatusSent, StatusFailed))
	assert.True(t, CanTransition(StatusSent, StatusDeleted))
	assert.True(t, CanTransition(StatusPending, StatusDeleted))

	// Terminal states accept nothing further.
	assert.False(t, CanTransition(StatusRead, StatusDeleted))
	assert.False(t, CanTransition(StatusDeleted, StatusRead))
	assert.False(t, CanTransition(StatusDeleted, StatusDeleted))
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(StatusRead))
	assert.True(t, IsTerminalStatus(StatusDeleted))
	assert.True(t, IsTerminalStatus(StatusFailed))
	assert.False(t, IsTerminalStatus(StatusPending))
	assert.False(t, IsTerminalStatus(StatusSent))
	assert.False(t, IsTerminalStatus(StatusDelivered))
}
