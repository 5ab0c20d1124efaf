package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"thermowatch/internal/brokerlink"
	"thermowatch/internal/livecache"
	"thermowatch/internal/model"
)

// ThresholdSource vrací aktuální limit ze serveru (apiclient.Client).
type ThresholdSource interface {
	CurrentThreshold(ctx context.Context) (*model.Threshold, error)
}

// Status je odpověď GET /live.
type Status struct {
	livecache.Snapshot
	LastError *string  `json:"last_error"`
	Threshold *float64 `json:"threshold"`
	Exceeded  bool     `json:"exceeded"`
}

// Monitor kombinuje živou hodnotu z brokera s limitem staženým z API.
// Limit se na klientu nikdy nepočítá, jen se periodicky obnovuje.
type Monitor struct {
	cache    *livecache.Cache
	source   ThresholdSource
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	threshold *float64
	exceeded  bool
}

func NewMonitor(cache *livecache.Cache, source ThresholdSource, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{cache: cache, source: source, interval: interval, logger: logger}
}

// Run čte změny z cache a periodicky obnovuje limit, dokud není ctx zrušen.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		case snap := <-m.cache.Updates():
			m.observe(snap)
		}
	}
}

func (m *Monitor) refresh(ctx context.Context) {
	t, err := m.source.CurrentThreshold(ctx)
	if err != nil {
		// Necháváme poslední známý limit.
		m.logger.Warn("Nepodařilo se načíst limit z API", "error", err)
		return
	}

	m.mu.Lock()
	changed := !sameValue(m.threshold, t)
	if t == nil {
		m.threshold = nil
	} else {
		v := t.Value
		m.threshold = &v
	}
	m.mu.Unlock()

	if changed {
		m.logger.Info("Limit aktualizován", "threshold", m.Status().Threshold)
	}
	m.evaluate(m.cache.Snapshot())
}

func (m *Monitor) observe(snap livecache.Snapshot) {
	if snap.Reading != nil {
		m.logger.Debug("Živá hodnota", "state", snap.State, "value", snap.Reading.Value)
	}
	if snap.State == brokerlink.Failed && snap.LastError != nil {
		m.logger.Warn("Spojení s brokerem selhalo", "error", snap.LastError.Error())
	}
	m.evaluate(snap)
}

// evaluate varuje jen při přechodu přes limit, ne u každé zprávy.
func (m *Monitor) evaluate(snap livecache.Snapshot) {
	m.mu.Lock()
	exceeded := snap.Reading != nil && m.threshold != nil && snap.Reading.Value > *m.threshold
	wasExceeded := m.exceeded
	m.exceeded = exceeded
	var limit float64
	if m.threshold != nil {
		limit = *m.threshold
	}
	m.mu.Unlock()

	switch {
	case exceeded && !wasExceeded:
		m.logger.Warn("Teplota překročila limit", "value", snap.Reading.Value, "threshold", limit)
	case !exceeded && wasExceeded:
		m.logger.Info("Teplota je zpět pod limitem")
	}
}

// Status vrací aktuální stav pro HTTP i testy.
func (m *Monitor) Status() Status {
	snap := m.cache.Snapshot()

	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{Snapshot: snap, Exceeded: m.exceeded}
	if m.threshold != nil {
		v := *m.threshold
		st.Threshold = &v
	}
	if snap.LastError != nil {
		msg := snap.LastError.Error()
		st.LastError = &msg
	}
	return st
}

func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Status())
	})
}

func sameValue(cur *float64, t *model.Threshold) bool {
	if cur == nil || t == nil {
		return cur == nil && t == nil
	}
	return *cur == t.Value
}
