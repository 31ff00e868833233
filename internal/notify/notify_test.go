package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/logger"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []string
	etas   []*time.Time
	err    error
	panic  bool
}

func (r *recordingDispatcher) Send(_ context.Context, event string, _ map[string]any, eta *time.Time) error {
	if r.panic {
		panic("boom")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.etas = append(r.etas, eta)
	return r.err
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not finish")
	}
}

func TestFireDelivers(t *testing.T) {
	d := &recordingDispatcher{}
	done := make(chan struct{})
	Fire(d, logger.NewNop(), EventExamSubmitted, map[string]any{"grade": 75.0}, done)
	waitDone(t, done)
	assert.Equal(t, []string{EventExamSubmitted}, d.events)
}

func TestFireAtPassesETA(t *testing.T) {
	d := &recordingDispatcher{}
	eta := time.Date(2026, 5, 1, 9, 50, 0, 0, time.UTC)
	done := make(chan struct{})
	FireAt(d, logger.NewNop(), EventExamReminder, map[string]any{"minutes_before": 10}, &eta, done)
	waitDone(t, done)
	require.Len(t, d.etas, 1)
	assert.Equal(t, &eta, d.etas[0])
}

func TestFireSwallowsErrorsAndPanics(t *testing.T) {
	done := make(chan struct{})
	Fire(&recordingDispatcher{err: errors.New("smtp down")}, logger.NewNop(), EventExamSubmitted, nil, done)
	waitDone(t, done)

	done = make(chan struct{})
	Fire(&recordingDispatcher{panic: true}, logger.NewNop(), EventExamSubmitted, nil, done)
	waitDone(t, done)
}

func TestFireNilDispatcher(t *testing.T) {
	done := make(chan struct{})
	Fire(nil, logger.NewNop(), EventExamSubmitted, nil, done)
	waitDone(t, done)
}

func TestEncode(t *testing.T) {
	eta := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	raw, err := encode("exam.reminder", map[string]any{"student_id": "s1"}, &eta, eta.Add(-time.Hour))
	require.NoError(t, err)
	var m Message
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "exam.reminder", m.Event)
	assert.Equal(t, "s1", m.Payload["student_id"])
	require.NotNil(t, m.ETA)
	assert.True(t, eta.Equal(*m.ETA))
}

func TestRedisDispatcherReportsConnectionErrors(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	d := NewRedisDispatcher(rdb, "")
	assert.Equal(t, "exam:notifications:scheduled", d.ScheduledKey())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, d.Send(ctx, EventExamSubmitted, nil, nil))
}

func TestLogDispatcher(t *testing.T) {
	d := LogDispatcher{Log: logger.NewNop()}
	eta := time.Now().Add(time.Hour)
	assert.NoError(t, d.Send(context.Background(), "exam.reminder", nil, &eta))
	assert.NoError(t, d.Send(context.Background(), EventExamSubmitted, nil, nil))
}
