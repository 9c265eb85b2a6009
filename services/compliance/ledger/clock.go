// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// Clock
// =============================================================================

// Clock supplies ledger timestamps.
//
// # Description
//
// Implementations return UTC instants truncated to microseconds that never
// go backwards between calls, so ledger rows are ordered within one process
// and two appends never share a timestamp.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Clock interface {
	Now() (time.Time, error)
}

// ClockConfig bounds the acceptable system time.
//
// # Fields
//
//   - MinValidTime: Earliest acceptable time (default: 2025-01-01)
//   - MaxValidTime: Latest acceptable time; zero means no upper bound (default: zero)
//   - MaxBackwardJump: Largest backward step tolerated between reads (default: 1 hour)
//
// There is no forward jump limit. The ledger reads the clock only when it
// appends, so any idle period between appends shows up as a forward step.
type ClockConfig struct {
	MinValidTime    time.Time
	MaxValidTime    time.Time
	MaxBackwardJump time.Duration
}

// DefaultClockConfig returns the production bounds.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		MinValidTime:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxBackwardJump: 1 * time.Hour,
	}
}

// SystemClock reads the wall clock and applies sanity checks.
//
// # Description
//
// Each read is validated against the configured bounds and compared with
// the previous read. A backward step larger than MaxBackwardJump is
// refused; smaller backward steps (NTP slew) are absorbed by returning one
// microsecond after the previous timestamp. Forward steps of any size are
// accepted and become the new baseline.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type SystemClock struct {
	config ClockConfig
	now    func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewSystemClock creates a clock with the given bounds.
func NewSystemClock(config ClockConfig) *SystemClock {
	return &SystemClock{config: config, now: time.Now}
}

// Now returns the current sane UTC time at microsecond precision.
//
// # Outputs
//
//   - time.Time: strictly later than any previously returned value.
//   - error: non-nil when the clock is outside bounds or jumped backwards
//     by more than MaxBackwardJump.
func (c *SystemClock) Now() (time.Time, error) {
	now := c.now().UTC().Truncate(time.Microsecond)

	if now.Before(c.config.MinValidTime) {
		return time.Time{}, fmt.Errorf("clock sanity: time %s is before minimum valid time %s",
			now.Format(time.RFC3339), c.config.MinValidTime.Format(time.RFC3339))
	}
	if !c.config.MaxValidTime.IsZero() && now.After(c.config.MaxValidTime) {
		return time.Time{}, fmt.Errorf("clock sanity: time %s is after maximum valid time %s",
			now.Format(time.RFC3339), c.config.MaxValidTime.Format(time.RFC3339))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.last.IsZero() {
		diff := now.Sub(c.last)
		if diff < -c.config.MaxBackwardJump {
			return time.Time{}, fmt.Errorf("clock sanity: backward jump of %s exceeds %s",
				-diff, c.config.MaxBackwardJump)
		}
		if !now.After(c.last) {
			now = c.last.Add(time.Microsecond)
		}
	}

	c.last = now
	return now, nil
}

// ResetJumpDetection forgets the previous reading. Call after a known
// legitimate backward time change.
func (c *SystemClock) ResetJumpDetection() {
	c.mu.Lock()
	c.last = time.Time{}
	c.mu.Unlock()
}

// =============================================================================
// Manual Clock (for testing)
// =============================================================================

// ManualClock returns a controlled time, advancing by a fixed step after
// every read.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
	err  error
}

// NewManualClock starts at start and advances by step per read.
func NewManualClock(start time.Time, step time.Duration) *ManualClock {
	return &ManualClock{now: start.UTC().Truncate(time.Microsecond), step: step}
}

// Now returns the current manual time, then advances it.
func (m *ManualClock) Now() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return time.Time{}, m.err
	}
	t := m.now
	m.now = m.now.Add(m.step)
	return t, nil
}

// Set moves the clock to t.
func (m *ManualClock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC().Truncate(time.Microsecond)
	m.mu.Unlock()
}

// Fail makes every subsequent read return err. Pass nil to recover.
func (m *ManualClock) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

var (
	_ Clock = (*SystemClock)(nil)
	_ Clock = (*ManualClock)(nil)
)
