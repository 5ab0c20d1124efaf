package livecache

import (
	"sync"

	"thermowatch/internal/brokerlink"
	"thermowatch/internal/model"
)

// Snapshot je neměnná kopie stavu cache pro prezentační vrstvu.
type Snapshot struct {
	State     brokerlink.State   `json:"state"`
	Reading   *model.LiveReading `json:"reading"` // nil = zatím nic nepřišlo
	LastError *brokerlink.Error  `json:"-"`
}

// Cache drží poslední dekódovanou hodnotu a stav spojení.
// Implementuje brokerlink.Observer, takže ji stačí zaregistrovat na Link.
// Historii neuchovává, ta se tahá ze serveru na vyžádání.
type Cache struct {
	mu   sync.RWMutex
	snap Snapshot

	// updates má kapacitu 1: pomalý konzument vidí vždy jen nejnovější stav
	// a link nikdy nečeká.
	updates chan Snapshot
}

func New() *Cache {
	return &Cache{
		snap:    Snapshot{State: brokerlink.Disconnected},
		updates: make(chan Snapshot, 1),
	}
}

// Snapshot vrací aktuální stav.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Updates vrací kanál se změnami (coalesced, nejnovější vyhrává).
func (c *Cache) Updates() <-chan Snapshot {
	return c.updates
}

func (c *Cache) OnStateChange(_, to brokerlink.State) {
	c.update(func(s *Snapshot) { s.State = to })
}

func (c *Cache) OnValue(reading model.LiveReading) {
	c.update(func(s *Snapshot) {
		r := reading
		s.Reading = &r
	})
}

func (c *Cache) OnError(err *brokerlink.Error) {
	c.update(func(s *Snapshot) { s.LastError = err })
}

func (c *Cache) update(fn func(*Snapshot)) {
	c.mu.Lock()
	fn(&c.snap)
	snap := c.snap
	c.mu.Unlock()

	// Neblokující zápis: pokud ve frontě leží starší snapshot, nahradíme ho.
	for {
		select {
		case c.updates <- snap:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}
