package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory holds source answers for the life of the process. Values are copied
// in and out, so a decoded response can never alias a cached one.
type Memory struct {
	items *gocache.Cache
}

// NewMemory creates a memory layer whose entries live for ttl; expired
// entries are swept every ttl/2 (at least once a minute)
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	sweep := ttl / 2
	if sweep < time.Minute {
		sweep = time.Minute
	}
	return &Memory{items: gocache.New(ttl, sweep)}
}

func (m *Memory) Get(key string) ([]byte, bool) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v.([]byte)...), true
}

// Set stores value; ttl 0 means the layer's own ttl
func (m *Memory) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.items.Delete(key)
	return nil
}

func (m *Memory) Clear() error {
	m.items.Flush()
	return nil
}

// Len reports the live entries
func (m *Memory) Len() int {
	return m.items.ItemCount()
}
