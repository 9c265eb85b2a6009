// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubbedClock returns a SystemClock reading from *now.
func stubbedClock(now *time.Time) *SystemClock {
	c := NewSystemClock(DefaultClockConfig())
	c.now = func() time.Time { return *now }
	return c
}

func TestSystemClock_Bounds(t *testing.T) {
	tests := []struct {
		name    string
		config  ClockConfig
		now     time.Time
		wantErr string
	}{
		{"before minimum", DefaultClockConfig(), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "before minimum valid time"},
		{"no default upper bound", DefaultClockConfig(), time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC), ""},
		{
			"after configured maximum",
			ClockConfig{MaxValidTime: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), MaxBackwardJump: time.Hour},
			time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC),
			"after maximum valid time",
		},
		{"within bounds", DefaultClockConfig(), time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := tt.now
			c := NewSystemClock(tt.config)
			c.now = func() time.Time { return now }
			_, err := c.Now()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSystemClock_BackwardJumpRefused(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c := stubbedClock(&now)

	_, err := c.Now()
	require.NoError(t, err)

	now = now.Add(-2 * time.Hour)
	_, err = c.Now()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backward jump")

	c.ResetJumpDetection()
	_, err = c.Now()
	assert.NoError(t, err)
}

func TestSystemClock_IdlePeriodsAreAccepted(t *testing.T) {
	now := time.Date(2026, 6, 5, 18, 0, 0, 0, time.UTC)
	c := stubbedClock(&now)

	friday, err := c.Now()
	require.NoError(t, err)

	// A weekend without appends.
	now = now.Add(60 * time.Hour)
	monday, err := c.Now()
	require.NoError(t, err)
	assert.Equal(t, friday.Add(60*time.Hour), monday)

	now = now.Add(time.Minute)
	next, err := c.Now()
	require.NoError(t, err)
	assert.Equal(t, monday.Add(time.Minute), next)

	// The new reading is the baseline for backward checks.
	now = now.Add(-30 * time.Minute)
	slewed, err := c.Now()
	require.NoError(t, err)
	assert.Equal(t, next.Add(time.Microsecond), slewed)
}

func TestSystemClock_StrictlyIncreasing(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 123456789, time.UTC)
	c := stubbedClock(&now)

	first, err := c.Now()
	require.NoError(t, err)
	assert.Equal(t, 123456000, first.Nanosecond())

	second, err := c.Now()
	require.NoError(t, err)
	assert.Equal(t, first.Add(time.Microsecond), second)

	// A small backward slew is absorbed.
	now = now.Add(-time.Minute)
	third, err := c.Now()
	require.NoError(t, err)
	assert.True(t, third.After(second))
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start, time.Millisecond)

	a, _ := c.Now()
	b, _ := c.Now()
	assert.Equal(t, start, a)
	assert.Equal(t, start.Add(time.Millisecond), b)

	c.Set(start.Add(time.Hour))
	d, _ := c.Now()
	assert.Equal(t, start.Add(time.Hour), d)
}
