package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppointmentStatusScan(t *testing.T) {
	for _, s := range AppointmentStatuses {
		var got AppointmentStatus
		require.NoError(t, got.Scan([]byte(string(s))))
		assert.Equal(t, s, got)
	}

	var got AppointmentStatus
	assert.Error(t, got.Scan("confirmed"))
	assert.Error(t, got.Scan(42))
}

func TestAppointmentStatusTerminal(t *testing.T) {
	assert.False(t, AppointmentStatusScheduled.Terminal())
	assert.True(t, AppointmentStatusCompleted.Terminal())
	assert.True(t, AppointmentStatusCancelled.Terminal())
	assert.False(t, AppointmentStatus("pending").Valid())
}
