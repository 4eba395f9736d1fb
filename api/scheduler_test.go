package api_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andykuo1/progress-auditor-sub001/api"
	"github.com/andykuo1/progress-auditor-sub001/store/sqlite"
)

type countingAuditor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingAuditor) AuditRun(ctx context.Context) (*sqlite.RunRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &sqlite.RunRecord{ID: "run", State: "clean"}, nil
}

func (c *countingAuditor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestAuditScheduler_RunsOnStartAndTick(t *testing.T) {
	// GIVEN: A scheduler with a short interval
	auditor := &countingAuditor{}
	s := api.NewAuditScheduler(auditor, 10*time.Millisecond, nil)

	// WHEN: It runs for a while
	s.Start()
	require.Eventually(t, func() bool { return auditor.count() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	// THEN: No audit runs after Stop
	stopped := auditor.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, auditor.count())

	runs, failures := s.Stats()
	assert.Equal(t, stopped, runs)
	assert.Zero(t, failures)
}

func TestAuditScheduler_CountsFailures(t *testing.T) {
	auditor := &countingAuditor{err: errors.New("roster missing")}
	s := api.NewAuditScheduler(auditor, time.Hour, nil)

	s.Start()
	require.Eventually(t, func() bool { return auditor.count() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()

	runs, failures := s.Stats()
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, failures)
}

func TestAuditScheduler_ZeroIntervalDisabled(t *testing.T) {
	auditor := &countingAuditor{}
	s := api.NewAuditScheduler(auditor, 0, nil)

	assert.False(t, s.Enabled)
	s.Start()
	s.Stop()
	assert.Zero(t, auditor.count())
}
