package status

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-pipeline/backend/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(ttl time.Duration) (*MemoryStore, *fakeClock) {
	clk := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	return NewMemoryStore(ttl, WithClock(clk.Now)), clk
}

func TestMemoryStore_PutGetRemove(t *testing.T) {
	s, _ := newTestStore(time.Minute)

	_, ok := s.Get("J1")
	assert.False(t, ok)

	s.Put("J1", models.PipelineStatus{Status: models.StatusPending})
	got, ok := s.Get("J1")
	require.True(t, ok)
	assert.Equal(t, "J1", got.JobID)
	assert.Equal(t, models.StatusPending, got.Status)

	s.Remove("J1")
	_, ok = s.Get("J1")
	assert.False(t, ok)
}

func TestMemoryStore_ExpiresAfterTTL(t *testing.T) {
	s, clk := newTestStore(time.Minute)
	s.Put("J1", models.PipelineStatus{Status: models.StatusProcessing})

	clk.Advance(59 * time.Second)
	_, ok := s.Get("J1")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = s.Get("J1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_UpdateResetsTTL(t *testing.T) {
	s, clk := newTestStore(time.Minute)
	s.Put("J1", models.PipelineStatus{Status: models.StatusProcessing})

	clk.Advance(50 * time.Second)
	require.NoError(t, s.Update("J1", func(st *models.PipelineStatus) { st.Progress = 40 }))

	clk.Advance(50 * time.Second)
	got, ok := s.Get("J1")
	require.True(t, ok)
	assert.Equal(t, 40, got.Progress)
}

func TestMemoryStore_ProgressNeverDecreases(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	s.Put("J1", models.PipelineStatus{Status: models.StatusProcessing, Progress: 70})

	require.NoError(t, s.Update("J1", func(st *models.PipelineStatus) { st.Progress = 10 }))

	got, _ := s.Get("J1")
	assert.Equal(t, 70, got.Progress)
}

func TestMemoryStore_TerminalIsImmutable(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	s.Put("J1", models.PipelineStatus{Status: models.StatusProcessing, Progress: 50})
	require.NoError(t, s.Update("J1", func(st *models.PipelineStatus) {
		st.Status = models.StatusSuccess
		st.Progress = 100
		st.Result = json.RawMessage(`{"docs":3}`)
	}))

	err := s.Update("J1", func(st *models.PipelineStatus) { st.Progress = 10 })
	assert.ErrorIs(t, err, ErrTerminal)

	first, _ := s.Get("J1")
	second, _ := s.Get("J1")
	assert.Equal(t, first, second)
	assert.JSONEq(t, `{"docs":3}`, string(second.Result))
}

func TestMemoryStore_PutReplacesTerminal(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	s.Put("J1", models.PipelineStatus{Status: models.StatusFailed, Error: "timeout"})

	s.Put("J1", models.PipelineStatus{Status: models.StatusProcessing})

	got, _ := s.Get("J1")
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Empty(t, got.Error)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	err := s.Update("nope", func(*models.PipelineStatus) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Sweep(t *testing.T) {
	s, clk := newTestStore(time.Minute)
	s.Put("old", models.PipelineStatus{})
	clk.Advance(30 * time.Second)
	s.Put("new", models.PipelineStatus{})
	clk.Advance(45 * time.Second)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get("new")
	assert.True(t, ok)
}

func TestMemoryStore_RunStopsOnCancel(t *testing.T) {
	s := NewMemoryStore(time.Millisecond)
	s.Put("J1", models.PipelineStatus{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMemoryStore_ConcurrentWritersAndReaders(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	var wg sync.WaitGroup

	for j := 0; j < 8; j++ {
		id := fmt.Sprintf("J%d", j)
		s.Put(id, models.PipelineStatus{Status: models.StatusProcessing})

		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := 1; p <= 100; p++ {
				progress := p
				_ = s.Update(id, func(st *models.PipelineStatus) { st.Progress = progress })
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for i := 0; i < 200; i++ {
				st, ok := s.Get(id)
				if !ok {
					continue
				}
				if st.Progress < last {
					t.Errorf("%s: progress went from %d to %d", id, last, st.Progress)
					return
				}
				last = st.Progress
			}
		}()
	}
	wg.Wait()

	for j := 0; j < 8; j++ {
		st, ok := s.Get(fmt.Sprintf("J%d", j))
		require.True(t, ok)
		assert.Equal(t, 100, st.Progress)
	}
}
