package livecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermowatch/internal/brokerlink"
	"thermowatch/internal/model"
)

func TestCacheTracksStateAndValue(t *testing.T) {
	c := New()
	assert.Equal(t, brokerlink.Disconnected, c.Snapshot().State)
	assert.Nil(t, c.Snapshot().Reading)

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c.OnStateChange(brokerlink.Disconnected, brokerlink.Connecting)
	c.OnStateChange(brokerlink.Connecting, brokerlink.Connected)
	c.OnValue(model.LiveReading{Value: 22.5, ObservedAt: at})
	c.OnValue(model.LiveReading{Value: 23.0, ObservedAt: at.Add(time.Second)})

	snap := c.Snapshot()
	assert.Equal(t, brokerlink.Connected, snap.State)
	require.NotNil(t, snap.Reading)
	assert.Equal(t, 23.0, snap.Reading.Value)
}

func TestCacheDecodeErrorLeavesValue(t *testing.T) {
	c := New()
	c.OnStateChange(brokerlink.Connecting, brokerlink.Connected)
	c.OnValue(model.LiveReading{Value: 19.0})
	c.OnError(&brokerlink.Error{Kind: brokerlink.DecodeError, Err: errors.New("bad payload")})

	snap := c.Snapshot()
	assert.Equal(t, brokerlink.Connected, snap.State)
	assert.Equal(t, 19.0, snap.Reading.Value)
	assert.Equal(t, brokerlink.DecodeError, snap.LastError.Kind)
}

func TestCacheUpdatesCoalesce(t *testing.T) {
	c := New()
	// Nikdo nečte: zápisy nesmí blokovat.
	for i := 0; i < 100; i++ {
		c.OnValue(model.LiveReading{Value: float64(i)})
	}

	select {
	case snap := <-c.Updates():
		assert.Equal(t, 99.0, snap.Reading.Value)
	default:
		t.Fatal("expected a pending update")
	}

	select {
	case <-c.Updates():
		t.Fatal("only the newest snapshot should be queued")
	default:
	}
}

// Cache napojená na skutečný Link přes fake transport.
type stubSession struct{}

func (stubSession) Close() {}

type stubDialer struct {
	handlers chan brokerlink.Handlers
}

func (d *stubDialer) Dial(_ context.Context, h brokerlink.Handlers) (brokerlink.Session, error) {
	d.handlers <- h
	return stubSession{}, nil
}

func TestCacheObservesLink(t *testing.T) {
	d := &stubDialer{handlers: make(chan brokerlink.Handlers, 1)}
	link := brokerlink.New(d)
	c := New()
	link.AddObserver(c)
	link.Start(context.Background())
	defer link.Stop()

	h := <-d.handlers
	require.Eventually(t, func() bool { return c.Snapshot().State == brokerlink.Connected }, time.Second, time.Millisecond)

	h.OnMessage([]byte(`{"temperature": 27.5}`))
	require.Eventually(t, func() bool {
		r := c.Snapshot().Reading
		return r != nil && r.Value == 27.5
	}, time.Second, time.Millisecond)

	h.OnMessage([]byte(`garbage`))
	require.Eventually(t, func() bool { return c.Snapshot().LastError != nil }, time.Second, time.Millisecond)
	assert.Equal(t, 27.5, c.Snapshot().Reading.Value)
	assert.Equal(t, brokerlink.Connected, c.Snapshot().State)
}
