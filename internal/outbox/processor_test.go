package outbox

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorReplaysOnTick(t *testing.T) {
	q, _ := setupQueue(t, Policy{})
	enqueueAll(t, q, OpCreate, OpUpdate)

	exec := &scripted{failing: map[string]bool{}}
	p := NewProcessor(q, exec, 10*time.Millisecond, discard)
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"create:A", "update:A"}, exec.Calls())
}

// sweeping counts the passes it is told about.
type sweeping struct {
	*scripted
	passes atomic.Int32
}

func (s *sweeping) AfterPass(Result) { s.passes.Add(1) }

func TestProcessorRunsPassHook(t *testing.T) {
	q, _ := setupQueue(t, Policy{})
	exec := &sweeping{scripted: &scripted{failing: map[string]bool{}}}
	p := NewProcessor(q, exec, 10*time.Millisecond, discard)
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return exec.passes.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestProcessorStartStopIdempotent(t *testing.T) {
	q, _ := setupQueue(t, Policy{})
	p := NewProcessor(q, &scripted{failing: map[string]bool{}}, time.Hour, discard)

	p.Stop()
	p.Start(context.Background())
	p.Start(context.Background())
	assert.True(t, p.Running())

	p.Stop()
	p.Stop()
	assert.False(t, p.Running())

	p.Start(context.Background())
	assert.True(t, p.Running())
	p.Stop()
}

func TestProcessorStopsWithContext(t *testing.T) {
	q, _ := setupQueue(t, Policy{})
	p := NewProcessor(q, &scripted{failing: map[string]bool{}}, time.Hour, discard)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.Stop()
	assert.False(t, p.Running())
}
