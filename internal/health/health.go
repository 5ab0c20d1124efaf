package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Pinger je závislost, jejíž dostupnost hlásíme (DB, Valkey, broker).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adaptér pro obyčejnou funkci.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ProcessStats je snímek spotřeby vlastního procesu.
// RSS = skutečně obsazená fyzická RAM (bez swapu).
type ProcessStats struct {
	RSSMB      float64 `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

// Report je odpověď /health.
type Report struct {
	Status  string            `json:"status"` // "ok" nebo "degraded"
	Checks  map[string]string `json:"checks"`
	Uptime  string            `json:"uptime"`
	Process *ProcessStats     `json:"process,omitempty"`
}

// Checker skládá health report pro Docker/K8s healthcheck.
type Checker struct {
	mu      sync.Mutex
	names   []string
	checks  map[string]Pinger
	started time.Time
	timeout time.Duration
	proc    *process.Process
}

func NewChecker() *Checker {
	// Když gopsutil proces nenajde (exotická platforma), report bude bez statistik.
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Checker{
		checks:  make(map[string]Pinger),
		started: time.Now(),
		timeout: 2 * time.Second,
		proc:    proc,
	}
}

// Add přidá kontrolu závislosti.
func (c *Checker) Add(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.checks[name]; !exists {
		c.names = append(c.names, name)
		sort.Strings(c.names)
	}
	c.checks[name] = p
}

// Check spustí všechny kontroly s krátkým timeoutem.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.Lock()
	names := append([]string(nil), c.names...)
	checks := make(map[string]Pinger, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.Unlock()

	report := Report{
		Status: "ok",
		Checks: make(map[string]string, len(names)),
		Uptime: time.Since(c.started).Round(time.Second).String(),
	}

	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := checks[name].Ping(pctx)
		cancel()
		if err != nil {
			report.Status = "degraded"
			report.Checks[name] = err.Error()
			continue
		}
		report.Checks[name] = "ok"
	}

	report.Process = c.processStats()
	return report
}

func (c *Checker) processStats() *ProcessStats {
	if c.proc == nil {
		return nil
	}
	stats := &ProcessStats{Goroutines: runtime.NumGoroutine()}
	if mem, err := c.proc.MemoryInfo(); err == nil {
		stats.RSSMB = float64(mem.RSS) / 1024.0 / 1024.0
	}
	if cpu, err := c.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats
}

// Handler vrací 200 pro "ok" a 503 pro "degraded".
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
}
