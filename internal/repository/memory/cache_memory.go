package memory

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/VasantLong/cgms2025/internal/model"
)

type cacheItem struct {
	val       []byte
	expiresAt time.Time
}

// Cache implements ports.Cache in memory.
type Cache struct {
	mu    sync.Mutex
	items map[string]cacheItem
	now   func() time.Time
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]cacheItem), now: time.Now}
}

func (c *Cache) live(key string) (cacheItem, bool) {
	it, ok := c.items[key]
	if !ok {
		return cacheItem{}, false
	}
	if !it.expiresAt.IsZero() && !c.now().Before(it.expiresAt) {
		delete(c.items, key)
		return cacheItem{}, false
	}
	return it, true
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), it.val...), true, nil
}

func (c *Cache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := cacheItem{val: append([]byte(nil), val...)}
	if ttl > 0 {
		it.expiresAt = c.now().Add(ttl)
	}
	c.items[key] = it
	return nil
}

func (c *Cache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func (c *Cache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.live(key)
	var n int64
	if ok {
		n, _ = strconv.ParseInt(string(it.val), 10, 64)
	} else if ttl > 0 {
		it.expiresAt = c.now().Add(ttl)
	}
	n++
	it.val = []byte(strconv.FormatInt(n, 10))
	c.items[key] = it
	return n, nil
}

// Len returns the number of live keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.items {
		if _, ok := c.live(k); ok {
			n++
		}
	}
	return n
}

// Publisher records published events and fans them out to subscribers.
type Publisher struct {
	mu     sync.Mutex
	events []model.ClassEvent
	subs   map[int]map[chan []byte]struct{}
	Err    error
}

// Publish implements ports.EventPublisher.
func (p *Publisher) Publish(_ context.Context, evt model.ClassEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, evt)

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	for ch := range p.subs[evt.ClassSN] {
		select {
		case ch <- payload:
		default: // slow subscriber, drop
		}
	}
	return nil
}

// Subscribe implements ports.EventSubscriber.
func (p *Publisher) Subscribe(ctx context.Context, classSN int) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)
	p.mu.Lock()
	if p.subs == nil {
		p.subs = make(map[int]map[chan []byte]struct{})
	}
	if p.subs[classSN] == nil {
		p.subs[classSN] = make(map[chan []byte]struct{})
	}
	p.subs[classSN][ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs[classSN], ch)
			p.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ch, stop, nil
}

// Subscribers returns the number of open subscriptions to classSN.
func (p *Publisher) Subscribers(classSN int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[classSN])
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []model.ClassEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.ClassEvent(nil), p.events...)
}
