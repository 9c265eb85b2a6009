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
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)

func newTestLedger(t *testing.T, opts ...Option) (*AuditLedger, *ManualClock) {
	t.Helper()
	clock := NewManualClock(testStart, time.Second)
	path := filepath.Join(t.TempDir(), "output", "audit_trail.csv")
	l, err := New(path, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return l, clock
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

// =============================================================================
// Append
// =============================================================================

func TestAppend_WritesHeaderOnceAndRows(t *testing.T) {
	l, _ := newTestLedger(t)

	h1, err := l.Append(Event{AgentName: "RiskStrategist", Action: ActionRiskAssessmentCompleted, DecisionLogic: "RPN=18 -> High"})
	require.NoError(t, err)
	h2, err := l.Append(Event{AgentName: "VerificationAgent", Action: "CUSTOM_ACTION", ActorID: "alice", DecisionLogic: "x"})
	require.NoError(t, err)

	rows := readRows(t, l.Path())
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])

	assert.Equal(t, []string{
		"2026-03-14T09:26:53.589793Z", SystemActor, "RiskStrategist",
		ActionRiskAssessmentCompleted, "RPN=18 -> High", h1, "Patient Safety",
	}, rows[1])
	assert.Equal(t, "alice", rows[2][1])
	assert.Equal(t, DefaultImpact, rows[2][6])
	assert.Equal(t, h2, rows[2][5])
	assert.Equal(t, "2026-03-14T09:26:54.589793Z", rows[2][0])
}

func TestAppend_HashMatchesFieldDigest(t *testing.T) {
	l, _ := newTestLedger(t)

	hash, err := l.Append(Event{AgentName: "A", Action: "ACT", DecisionLogic: "logic", ComplianceImpact: "Custom Impact"})
	require.NoError(t, err)

	want := ReasoningHash("2026-03-14T09:26:53.589793Z", SystemActor, "A", "ACT", "logic", "Custom Impact")
	assert.Equal(t, want, hash)
	assert.Len(t, hash, 64)
}

func TestAppend_IdenticalEventsAtDifferentTimesHashDifferently(t *testing.T) {
	l, _ := newTestLedger(t)
	ev := Event{AgentName: "A", Action: "ACT", DecisionLogic: "same"}

	h1, err := l.Append(ev)
	require.NoError(t, err)
	h2, err := l.Append(ev)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestAppend_FilePermissions(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Append(Event{AgentName: "A", Action: "ACT"})
	require.NoError(t, err)

	info, err := os.Stat(l.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.Equal(t, info.Size(), l.Size())
}

func TestAppend_ExistingLedgerKeepsContent(t *testing.T) {
	l, clock := newTestLedger(t)
	_, err := l.Append(Event{AgentName: "A", Action: "FIRST"})
	require.NoError(t, err)
	before, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	reopened, err := New(l.Path(), WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, int64(len(before)), reopened.Size())
	_, err = reopened.Append(Event{AgentName: "A", Action: "SECOND"})
	require.NoError(t, err)

	after, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(after), string(before)))
	assert.Equal(t, 1, strings.Count(string(after), "Timestamp,User_ID"))
}

func TestAppend_QuotesFieldsWithSeparators(t *testing.T) {
	l, _ := newTestLedger(t)
	logic := `REJECTED URS-1: Failed checks: a, b. a: "quoted" | b: detail`
	hash, err := l.Append(Event{AgentName: "A", Action: ActionComplianceException, DecisionLogic: logic})
	require.NoError(t, err)

	recs, err := Records(l.Path(), Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, logic, recs[0].DecisionLogic)
	assert.Equal(t, hash, recs[0].ComputeHash())
}

func TestAppend_MalformedReasoningWritesNothing(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Append(Event{
		AgentName: "A",
		Action:    "ACT",
		Reasoning: &ReasoningChain{Inputs: map[string]any{"a": 1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrMalformedReasoning)

	var fault *faults.MalformedReasoningFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, []string{"steps", "outputs"}, fault.MissingFields)

	_, statErr := os.Stat(l.Path())
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "ledger must not be created")
	_, statErr = os.Stat(l.ArchiveDir())
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "archive dir must not be created")
}

func TestAppend_InvalidEventWritesNothing(t *testing.T) {
	tests := []struct {
		name      string
		ev        Event
		badFields []string
	}{
		{"path traversal", Event{AgentName: "A", Action: "/../../outside/PWNED"}, []string{"action"}},
		{"nested path", Event{AgentName: "A", Action: "X/nonexistent/Y"}, []string{"action"}},
		{"dot", Event{AgentName: "A", Action: "URS.VERIFIED"}, []string{"action"}},
		{"lower case", Event{AgentName: "A", Action: "urs_verified"}, []string{"action"}},
		{"too long", Event{AgentName: "A", Action: strings.Repeat("A", 65)}, []string{"action"}},
		{"empty action", Event{AgentName: "A"}, []string{"action"}},
		{"empty agent", Event{Action: ActionURSVerified}, []string{"agent_name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(t)
			tt.ev.Reasoning = testChain()

			_, err := l.Append(tt.ev)
			require.Error(t, err)
			assert.ErrorIs(t, err, faults.ErrInvalidEvent)

			var fault *faults.InvalidEventFault
			require.True(t, errors.As(err, &fault))
			assert.Equal(t, tt.badFields, fault.Fields)

			_, statErr := os.Stat(l.Path())
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "ledger must not be created")
			_, statErr = os.Stat(l.ArchiveDir())
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "archive dir must not be created")
			_, statErr = os.Stat(filepath.Join(filepath.Dir(filepath.Dir(l.ArchiveDir())), "outside"))
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "nothing written outside the archive dir")
		})
	}
}

func TestIsActionCode(t *testing.T) {
	assert.True(t, IsActionCode(ActionRegVersionChangeDetected))
	assert.True(t, IsActionCode("STEP_2"))
	assert.False(t, IsActionCode(""))
	assert.False(t, IsActionCode("A B"))
	assert.False(t, IsActionCode(`A\B`))
}

func TestAppend_ArchiveFailureRecordsException(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "logic_archives")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0600))
	l, _ := newTestLedger(t, WithArchiveDir(blocker))

	hash, err := l.Append(Event{
		AgentName:     "VerificationAgent",
		Action:        ActionURSVerified,
		DecisionLogic: "APPROVED URS-1",
		Reasoning:     testChain(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrLedgerWrite)
	require.Len(t, hash, 64)

	var fault *faults.LedgerWriteFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "archive", fault.Op)
	assert.Equal(t, hash, fault.ReasoningHash)

	rows := readRows(t, l.Path())
	require.Len(t, rows, 3)
	assert.Equal(t, ActionURSVerified, rows[1][3])
	assert.Equal(t, hash, rows[1][5])

	exception := rows[2]
	assert.Equal(t, SystemActor, exception[1])
	assert.Equal(t, LedgerAgent, exception[2])
	assert.Equal(t, ActionComplianceException, exception[3])
	assert.Contains(t, exception[4], "MISSING ARCHIVE .URS_VERIFIED_")
	assert.Contains(t, exception[4], hash[:8])

	report, err := VerifyLedger(l.Path())
	require.NoError(t, err)
	assert.True(t, report.Valid())
	assert.Equal(t, 2, report.Records)
}

func TestAppend_ClockFailureIsLedgerWriteFault(t *testing.T) {
	l, clock := newTestLedger(t)
	clock.Fail(errors.New("clock sanity: backward jump"))

	_, err := l.Append(Event{AgentName: "A", Action: "ACT"})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrLedgerWrite)
	assert.Equal(t, faults.CodeLedgerWrite, faults.CodeOf(err))
}

func TestAppend_UnwritableLedgerIsLedgerWriteFault(t *testing.T) {
	dir := t.TempDir()
	// A directory where the ledger file should be makes open fail.
	path := filepath.Join(dir, "audit_trail.csv")
	require.NoError(t, os.Mkdir(path, 0700))

	l, err := New(path, WithClock(NewManualClock(testStart, time.Second)))
	require.NoError(t, err)

	_, err = l.Append(Event{AgentName: "A", Action: "ACT"})
	var fault *faults.LedgerWriteFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "open", fault.Op)
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveAppend(action, impact string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, fmt.Sprintf("%s/%s/%v", action, impact, err != nil))
}

func TestAppend_NotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	l, _ := newTestLedger(t, WithObserver(obs))

	_, err := l.Append(Event{AgentName: "A", Action: ActionURSVerified})
	require.NoError(t, err)
	_, err = l.Append(Event{AgentName: "A", Action: "X", Reasoning: &ReasoningChain{}})
	require.Error(t, err)

	assert.Equal(t, []string{
		"URS_VERIFIED/Regulatory Compliance/false",
		"X/Operational/true",
	}, obs.calls)
}

func TestAppend_ConcurrentWritersProduceWellFormedLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit_trail.csv")
	l, err := New(path, WithClock(NewSystemClock(ClockConfig{
		MinValidTime:    time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxBackwardJump: time.Hour,
	})))
	require.NoError(t, err)

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	hashes := make(chan string, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				h, err := l.Append(Event{
					AgentName:     fmt.Sprintf("agent-%d", w),
					Action:        "CONCURRENT",
					DecisionLogic: "same logic, every time",
				})
				if assert.NoError(t, err) {
					hashes <- h
				}
			}
		}(w)
	}
	wg.Wait()
	close(hashes)

	seen := make(map[string]bool)
	for h := range hashes {
		assert.False(t, seen[h], "duplicate hash %s", h)
		seen[h] = true
	}

	report, err := VerifyLedger(path)
	require.NoError(t, err)
	assert.True(t, report.Valid())
	assert.Equal(t, writers*perWriter, report.Records)

	rows := readRows(t, path)
	for i := 2; i < len(rows); i++ {
		assert.Greater(t, rows[i][0], rows[i-1][0], "timestamps must strictly increase")
	}
}

// =============================================================================
// Archives
// =============================================================================

func testChain() *ReasoningChain {
	return &ReasoningChain{
		Inputs:  map[string]any{"severity": "HIGH", "threshold": 0.45, "html": "<b>&</b>"},
		Steps:   []string{"Mapped criticality", "Patient-safety override fired"},
		Outputs: map[string]any{"risk_level": "High", "rpn": 12},
	}
}

func TestAppend_WritesVerifiableArchive(t *testing.T) {
	l, _ := newTestLedger(t)

	hash, err := l.Append(Event{
		AgentName:     "RiskStrategist",
		Action:        ActionRiskAssessmentCompleted,
		DecisionLogic: "override",
		Reasoning:     testChain(),
	})
	require.NoError(t, err)

	path, err := FindArchive(l.ArchiveDir(), hash)
	require.NoError(t, err)
	assert.Equal(t, ".RISK_ASSESSMENT_COMPLETED_20260314T092653.589793Z_"+hash[:8]+".json", filepath.Base(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	report, err := VerifyArchive(path)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, hash, report.AuditTrailHash)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, `"$schema_version": "1.0.0"`)
	assert.Contains(t, body, `"archive_type": "logic_archive"`)
	assert.Contains(t, body, `"decision_logic_summary": "override"`)
	assert.Contains(t, body, `"algorithm": "sha256"`)
	assert.Contains(t, body, `"<b>&</b>"`)
}

func TestVerifyArchive_DetectsEdit(t *testing.T) {
	l, _ := newTestLedger(t)
	hash, err := l.Append(Event{AgentName: "A", Action: "ACT", Reasoning: testChain()})
	require.NoError(t, err)

	path, err := FindArchive(l.ArchiveDir(), hash)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	edited := strings.Replace(string(data), `"risk_level": "High"`, `"risk_level": "Low"`, 1)
	require.NotEqual(t, string(data), edited)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0600))

	report, err := VerifyArchive(path)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.NotEqual(t, report.StoredHash, report.ComputedHash)
}

func TestFindArchive_Missing(t *testing.T) {
	dir := t.TempDir()
	_, err := FindArchive(dir, strings.Repeat("a", 64))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = FindArchive(dir, "abc")
	assert.Error(t, err)
}

func TestArchiveFileName(t *testing.T) {
	assert.Equal(t,
		".URS_VERIFIED_20260101T120000.000001Z_deadbeef.json",
		ArchiveFileName("URS_VERIFIED", "2026-01-01T12:00:00.000001Z", "deadbeefcafe"))
}

func TestReasoningChain_Validate(t *testing.T) {
	tests := []struct {
		name    string
		chain   *ReasoningChain
		missing []string
	}{
		{"populated", testChain(), nil},
		{"present but empty", &ReasoningChain{Inputs: map[string]any{}, Steps: []string{}, Outputs: map[string]any{}}, nil},
		{"nil steps", &ReasoningChain{Inputs: map[string]any{}, Outputs: map[string]any{}}, []string{"steps"}},
		{"nil maps", &ReasoningChain{Steps: []string{"s"}}, []string{"inputs", "outputs"}},
		{"nil chain", nil, []string{"inputs", "steps", "outputs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chain.Validate()
			if tt.missing == nil {
				assert.NoError(t, err)
				return
			}
			var fault *faults.MalformedReasoningFault
			require.True(t, errors.As(err, &fault))
			assert.Equal(t, tt.missing, fault.MissingFields)
		})
	}
}

func TestAppend_AcceptsEmptyReasoningParts(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Append(Event{
		AgentName: "A",
		Action:    "ACT",
		Reasoning: &ReasoningChain{Inputs: map[string]any{}, Steps: []string{}, Outputs: map[string]any{}},
	})
	require.NoError(t, err)
	assert.Len(t, readRows(t, l.Path()), 2)
}

func TestReasoningHash_SeparatorIsNotEscaped(t *testing.T) {
	ts := "2026-01-01T00:00:00.000000Z"
	assert.Equal(t,
		ReasoningHash(ts, SystemActor, "A", "ACT", "a|b", "c"),
		ReasoningHash(ts, SystemActor, "A", "ACT", "a", "b|c"))
	assert.NotEqual(t,
		ReasoningHash(ts, SystemActor, "A", "ACT", "ab", "c"),
		ReasoningHash(ts, SystemActor, "A", "ACT", "a", "bc"))
}
