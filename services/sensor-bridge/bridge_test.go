package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermowatch/internal/brokerlink"
	"thermowatch/internal/model"
)

type fakeRecorder struct {
	mu     sync.Mutex
	values []float64
	limit  *float64
	err    error
}

func (f *fakeRecorder) Record(_ context.Context, value float64) (model.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Reading{}, f.err
	}
	f.values = append(f.values, value)
	return model.Reading{ID: int64(len(f.values)), Value: value, ThresholdValue: f.limit, RecordedAt: time.Now().UTC()}, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBridgeRecordsAndPublishes(t *testing.T) {
	limit := 30.0
	rec := &fakeRecorder{limit: &limit}
	pub := &fakePublisher{}
	b := NewBridge(rec, pub, "events/readings", 8, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	obs := b.Observer()
	obs.OnValue(model.LiveReading{Value: 25})
	obs.OnValue(model.LiveReading{Value: 31})

	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, []string{"events/readings", "events/readings"}, pub.topics)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &first))
	require.NoError(t, json.Unmarshal(pub.payloads[1], &second))
	assert.Equal(t, 25.0, first["value"])
	assert.Equal(t, false, first["exceeded"])
	assert.Equal(t, 31.0, second["value"])
	assert.Equal(t, 30.0, second["threshold_value"])
	assert.Equal(t, true, second["exceeded"])
}

func TestBridgeDropsWhenQueueFull(t *testing.T) {
	b := NewBridge(&fakeRecorder{}, nil, "", 2, discardLogger())

	// Worker neběží, fronta se naplní.
	assert.True(t, b.Enqueue(1))
	assert.True(t, b.Enqueue(2))
	assert.False(t, b.Enqueue(3))
}

func TestBridgeSkipsPublishOnStorageError(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("db down")}
	pub := &fakePublisher{}
	b := NewBridge(rec, pub, "events/readings", 1, discardLogger())

	b.handle(context.Background(), 22)
	assert.Zero(t, pub.count())
}

func TestBridgeRunStopsOnCancel(t *testing.T) {
	b := NewBridge(&fakeRecorder{}, nil, "", 1, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBridgeObserverLeavesStateLoggingToLink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	b := NewBridge(&fakeRecorder{}, &fakePublisher{}, "sensors/readings", 4, logger)
	obs := b.Observer()

	obs.OnStateChange(brokerlink.Connecting, brokerlink.Connected)
	assert.Empty(t, buf.String())

	obs.OnValue(model.LiveReading{Value: 21})
	assert.Len(t, b.queue, 1)

	obs.OnError(&brokerlink.Error{Kind: brokerlink.DecodeError, Err: errors.New("bad payload")})
	assert.Contains(t, buf.String(), "Chyba broker linku")
	assert.Contains(t, buf.String(), "kind=")
}
