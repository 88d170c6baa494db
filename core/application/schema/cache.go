package schema

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/hyperterse/fanout/core/domain"
)

const (
	// Schemas are small; a few MiB covers hundreds of wide databases.
	defaultRistrettoMaxCost     = 16 << 20
	defaultRistrettoNumCounters = 10_000
	defaultRistrettoBufferItems = 64
)

// schemaCache keeps described schemas per connection name. Each name has a
// generation that invalidation bumps, so a describe that started before an
// invalidation cannot store a stale result.
type schemaCache struct {
	store *ristretto.Cache

	mu          sync.Mutex
	generations map[string]uint64
}

func newSchemaCache() (*schemaCache, error) {
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultRistrettoNumCounters,
		MaxCost:     defaultRistrettoMaxCost,
		BufferItems: defaultRistrettoBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &schemaCache{store: store, generations: make(map[string]uint64)}, nil
}

func (c *schemaCache) generation(name string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[name]
}

func (c *schemaCache) Get(name string) (domain.TableList, bool) {
	value, ok := c.store.Get(name)
	if !ok {
		return nil, false
	}
	tables, ok := value.(domain.TableList)
	if !ok {
		return nil, false
	}
	return cloneTables(tables), true
}

// Set stores tables unless name was invalidated after gen was read.
func (c *schemaCache) Set(name string, gen uint64, tables domain.TableList, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[name] != gen {
		return
	}

	if c.store.SetWithTTL(name, cloneTables(tables), estimateTablesCost(tables), ttl) {
		// Ristretto sets are asynchronous. Wait makes the value visible to the
		// next comparison.
		c.store.Wait()
	}
}

func (c *schemaCache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[name]++
	c.store.Del(name)
}

func (c *schemaCache) Close() {
	c.store.Close()
}

func cloneTables(tables domain.TableList) domain.TableList {
	if tables == nil {
		return nil
	}
	out := make(domain.TableList, len(tables))
	for i, t := range tables {
		out[i] = domain.Table{Name: t.Name, Columns: append([]domain.Column(nil), t.Columns...)}
	}
	return out
}

func estimateTablesCost(tables domain.TableList) int64 {
	var total int64 = 1
	for _, t := range tables {
		total += int64(len(t.Name)) + 16
		for _, col := range t.Columns {
			total += int64(len(col.Name)+len(col.Type)) + 8
		}
	}
	return total
}
