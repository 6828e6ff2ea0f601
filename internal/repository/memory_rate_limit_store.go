package repository

import (
	"context"
	"sync"
	"time"

	"github.com/folio/contact-relay/internal/models"
	"github.com/folio/contact-relay/pkg/metrics"
	"github.com/patrickmn/go-cache"
)

const memoryStoreName = "memory"

// MemoryRateLimitStore keeps records in process memory. Used offline and in
// single-instance deployments; records do not survive a restart.
type MemoryRateLimitStore struct {
	mu     sync.Mutex
	cache  *cache.Cache
	window time.Duration
}

// NewMemoryRateLimitStore creates a store whose entries expire one window after
// the last insert for an IP
func NewMemoryRateLimitStore(window, cleanupInterval time.Duration) *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		cache:  cache.New(window, cleanupInterval),
		window: window,
	}
}

func (s *MemoryRateLimitStore) Name() string {
	return memoryStoreName
}

func (s *MemoryRateLimitStore) records(ip string) []models.RateLimitRecord {
	v, ok := s.cache.Get(ip)
	if !ok {
		return nil
	}
	return v.([]models.RateLimitRecord)
}

func (s *MemoryRateLimitStore) Purge(_ context.Context, before time.Time) (int64, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for ip, item := range s.cache.Items() {
		records := item.Object.([]models.RateLimitRecord)
		kept := make([]models.RateLimitRecord, 0, len(records))
		for _, rec := range records {
			if rec.CreatedAt.Before(before) {
				deleted++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == len(records) {
			continue
		}
		ttl := time.Until(time.Unix(0, item.Expiration))
		if len(kept) == 0 || ttl <= 0 {
			s.cache.Delete(ip)
			continue
		}
		s.cache.Set(ip, kept, ttl)
	}

	metrics.ObserveStore(memoryStoreName, "purge", start, nil)
	return deleted, nil
}

func (s *MemoryRateLimitStore) Usage(_ context.Context, ip string, since time.Time) (models.RateLimitUsage, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var usage models.RateLimitUsage
	for _, rec := range s.records(ip) {
		at := rec.CreatedAt
		if !at.After(since) {
			continue
		}
		usage.Count++
		if usage.Oldest.IsZero() || at.Before(usage.Oldest) {
			usage.Oldest = at
		}
	}

	metrics.ObserveStore(memoryStoreName, "usage", start, nil)
	return usage, nil
}

func (s *MemoryRateLimitStore) Insert(_ context.Context, rec models.RateLimitRecord) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.records(rec.IPAddress)
	for _, r := range existing {
		if r.ID == rec.ID {
			metrics.ObserveStore(memoryStoreName, "insert", start, nil)
			return nil
		}
	}
	records := make([]models.RateLimitRecord, len(existing), len(existing)+1)
	copy(records, existing)
	s.cache.Set(rec.IPAddress, append(records, rec), s.window)

	metrics.ObserveStore(memoryStoreName, "insert", start, nil)
	return nil
}

func (s *MemoryRateLimitStore) Delete(_ context.Context, rec models.RateLimitRecord) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	defer metrics.ObserveStore(memoryStoreName, "delete", start, nil)

	item, ok := s.cache.Items()[rec.IPAddress]
	if !ok {
		return nil
	}
	existing := item.Object.([]models.RateLimitRecord)
	kept := make([]models.RateLimitRecord, 0, len(existing))
	for _, r := range existing {
		if r.ID != rec.ID {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		s.cache.Delete(rec.IPAddress)
		return nil
	}
	if ttl := time.Until(time.Unix(0, item.Expiration)); ttl > 0 {
		s.cache.Set(rec.IPAddress, kept, ttl)
	}
	return nil
}

func (s *MemoryRateLimitStore) Ping(context.Context) error {
	return nil
}

// Len reports how many IPs currently hold records
func (s *MemoryRateLimitStore) Len() int {
	return s.cache.ItemCount()
}
