// Package cache - LRU-кэш отчетов поверх любого service.FaultStore.
// Кэшируется только GetFaultByID; мутации инвалидируют запись до и после записи.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fault-dashboard/internal/models"
	"fault-dashboard/internal/service"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_fault_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш отчетов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_fault_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша отчетов.",
	})
)

// CachedStore оборачивает FaultStore и кэширует отчеты по ID.
// Остальные методы делегируются без изменений.
type CachedStore struct {
	service.FaultStore
	cache *expirable.LRU[string, models.FaultReport]

	// generation увеличивается каждой мутацией. Читатель кладет отчет в кэш,
	// только если за время его чтения из хранилища не было ни одной мутации.
	mu         sync.Mutex
	generation uint64
}

// New создает кэш с указанным максимальным размером и TTL записи.
func New(store service.FaultStore, maxSize int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		FaultStore: store,
		cache:      expirable.NewLRU[string, models.FaultReport](maxSize, nil, ttl),
	}
}

// GetFaultByID возвращает копию отчета из кэша или читает его из хранилища.
func (c *CachedStore) GetFaultByID(ctx context.Context, id string) (*models.FaultReport, error) {
	if f, ok := c.cache.Get(id); ok {
		cacheHitsTotal.Inc()
		return &f, nil
	}
	cacheMissesTotal.Inc()

	gen := c.currentGeneration()
	f, err := c.FaultStore.GetFaultByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generation == gen {
		c.cache.Add(id, *f)
	}
	c.mu.Unlock()
	return f, nil
}

func (c *CachedStore) UpdateFault(ctx context.Context, id string, patch models.FaultPatch) (*models.FaultReport, error) {
	c.invalidate(id)
	defer c.invalidate(id)
	return c.FaultStore.UpdateFault(ctx, id, patch)
}

func (c *CachedStore) DeleteFault(ctx context.Context, id string) (bool, error) {
	c.invalidate(id)
	defer c.invalidate(id)
	return c.FaultStore.DeleteFault(ctx, id)
}

func (c *CachedStore) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *CachedStore) invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.Remove(id)
}

// Len возвращает количество записей в кэше.
func (c *CachedStore) Len() int {
	return c.cache.Len()
}

// Close очищает кэш и закрывает хранилище.
func (c *CachedStore) Close() error {
	c.cache.Purge()
	return c.FaultStore.Close()
}
