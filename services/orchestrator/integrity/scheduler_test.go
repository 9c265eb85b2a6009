// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package integrity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianCSV/pkg/logging"
	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertRecorder struct {
	mu    sync.Mutex
	kinds []string
}

func (a *alertRecorder) ObserveAlert(kind string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, kind)
}

func (a *alertRecorder) snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.kinds...)
}

func seedLedger(t *testing.T) *ledger.AuditLedger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit_trail.csv")
	l, err := ledger.New(path,
		ledger.WithClock(ledger.NewManualClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), time.Millisecond)),
		ledger.WithLogger(logging.Discard()),
	)
	require.NoError(t, err)

	events := []ledger.Event{
		{AgentName: "RiskAgent", Action: ledger.ActionTestingStrategy, DecisionLogic: "Risk=Low -> Strategy=Unscripted Testing"},
		{
			AgentName:     "SignOff",
			Action:        ledger.ActionDocumentSignOff,
			DecisionLogic: "Signed URS-1 as Approver",
			Reasoning: &ledger.ReasoningChain{
				Inputs:  map[string]any{"document": "URS-1"},
				Steps:   []string{"identity confirmed"},
				Outputs: map[string]any{"signed": true},
			},
		},
	}
	for _, ev := range events {
		_, err := l.Append(ev)
		require.NoError(t, err)
	}
	return l
}

func TestSweep_Clean(t *testing.T) {
	l := seedLedger(t)

	result, err := Sweep(context.Background(), l)
	require.NoError(t, err)
	assert.True(t, result.Clean())
	assert.Equal(t, 2, result.Ledger.Records)
	assert.Equal(t, 1, result.ArchivesChecked)
	assert.Empty(t, result.ArchivesInvalid)
}

func TestSweep_MissingLedgerAndArchives(t *testing.T) {
	dir := t.TempDir()
	l, err := ledger.New(filepath.Join(dir, "audit_trail.csv"), ledger.WithLogger(logging.Discard()))
	require.NoError(t, err)

	result, err := Sweep(context.Background(), l)
	require.NoError(t, err)
	assert.True(t, result.Clean())
	assert.Zero(t, result.ArchivesChecked)
}

func TestSweep_DetectsTamperedRowAndArchive(t *testing.T) {
	l := seedLedger(t)

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	edited := strings.Replace(string(data), "Strategy=Unscripted Testing", "Strategy=Hybrid Testing", 1)
	require.NotEqual(t, string(data), edited)
	require.NoError(t, os.WriteFile(l.Path(), []byte(edited), 0600))

	entries, err := os.ReadDir(l.ArchiveDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	archive := filepath.Join(l.ArchiveDir(), entries[0].Name())
	body, err := os.ReadFile(archive)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(archive, []byte(strings.Replace(string(body), "URS-1", "URS-2", 1)), 0600))

	rec := &alertRecorder{}
	s := NewScheduler(l, rec, logging.Discard(), SchedulerConfig{})
	result, err := s.RunNow(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Clean())
	assert.Len(t, result.Ledger.Tampered, 1)
	assert.Equal(t, []string{entries[0].Name()}, result.ArchivesInvalid)
	assert.Equal(t, []string{AlertLedgerInvalid, AlertArchiveInvalid}, rec.snapshot())
}

func TestSweep_CancelledContext(t *testing.T) {
	l := seedLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Sweep(ctx, l)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScheduler_StartStop(t *testing.T) {
	l := seedLedger(t)
	s := NewScheduler(l, nil, logging.Discard(), SchedulerConfig{Interval: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	s.Stop()
	s.Stop()

	// Restart after stop is allowed.
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestScheduler_SweepsOnStart(t *testing.T) {
	l := seedLedger(t)
	require.NoError(t, os.WriteFile(l.Path(), []byte("not,a,ledger\n"), 0600))

	rec := &alertRecorder{}
	s := NewScheduler(l, rec, logging.Discard(), SchedulerConfig{Interval: time.Hour})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, AlertLedgerInvalid, rec.snapshot()[0])
}

func TestDefaultSchedulerConfig(t *testing.T) {
	assert.Equal(t, 15*time.Minute, DefaultSchedulerConfig().Interval)
	s := NewScheduler(seedLedger(t), nil, nil, SchedulerConfig{Interval: -1})
	assert.Equal(t, 15*time.Minute, s.config.Interval)
}
