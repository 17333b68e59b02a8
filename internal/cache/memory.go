package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"mentor-schedule-service/internal/models"
)

type entry struct {
	slots   models.AvailableSlots
	expires time.Time
}

// Memory is the single-instance SlotCache used when Redis is disabled.
type Memory struct {
	ttl     time.Duration
	nowFunc func() time.Time

	mu       sync.Mutex
	versions map[string]int64
	entries  map[string]entry
}

var _ SlotCache = (*Memory)(nil)

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Memory{
		ttl:      ttl,
		nowFunc:  time.Now,
		versions: make(map[string]int64),
		entries:  make(map[string]entry),
	}
}

func (c *Memory) Version(_ context.Context, mentorID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[mentorID], nil
}

func (c *Memory) Get(_ context.Context, key Key) (models.AvailableSlots, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return models.AvailableSlots{}, false, nil
	}
	if !c.nowFunc().Before(e.expires) {
		delete(c.entries, key.String())
		return models.AvailableSlots{}, false, nil
	}

	return clone(e.slots), true, nil
}

func clone(s models.AvailableSlots) models.AvailableSlots {
	s.Slots = slices.Clone(s.Slots)
	return s
}

func (c *Memory) Set(_ context.Context, key Key, slots models.AvailableSlots) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key.String()] = entry{slots: clone(slots), expires: now.Add(c.ttl)}

	return nil
}

func (c *Memory) Invalidate(_ context.Context, mentorID string) error {
	c.mu.Lock()
	c.versions[mentorID]++
	c.mu.Unlock()
	return nil
}
