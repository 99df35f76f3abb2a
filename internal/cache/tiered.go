package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-kg-server/internal/domain"
)

// TieredCache checks a fast near tier before a shared far tier and backfills
// the near tier on far hits. Far-tier failures degrade to a miss.
type TieredCache struct {
	near domain.GraphCache
	far  domain.GraphCache
	log  *logrus.Logger
}

// NewTieredCache combines near (usually MemoryCache) and far (usually RedisCache).
func NewTieredCache(near, far domain.GraphCache, logger *logrus.Logger) *TieredCache {
	return &TieredCache{near: near, far: far, log: logger}
}

func (t *TieredCache) Get(ctx context.Context, patientID string) (*domain.KnowledgeGraph, error) {
	if graph, err := t.near.Get(ctx, patientID); err == nil {
		t.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"cache_tier": "memory",
		}).Debug("Graph cache hit")
		return graph, nil
	}

	graph, err := t.far.Get(ctx, patientID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			t.log.WithFields(logrus.Fields{
				"patient_id": patientID,
				"error":      err,
			}).Warn("Far cache tier unavailable")
		}
		return nil, domain.ErrNotFound
	}

	t.log.WithFields(logrus.Fields{
		"patient_id": patientID,
		"cache_tier": "redis",
	}).Debug("Graph cache hit")

	if err := t.near.Set(ctx, patientID, graph, 0); err != nil {
		t.log.WithError(err).Warn("Failed to backfill memory cache")
	}
	return graph, nil
}

// Set writes both tiers. Only a near-tier failure is returned.
func (t *TieredCache) Set(ctx context.Context, patientID string, graph *domain.KnowledgeGraph, ttl time.Duration) error {
	if err := t.far.Set(ctx, patientID, graph, ttl); err != nil {
		t.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Warn("Failed to write far cache tier")
	}
	return t.near.Set(ctx, patientID, graph, ttl)
}

// Delete removes the graph from both tiers.
func (t *TieredCache) Delete(ctx context.Context, patientID string) error {
	nearErr := t.near.Delete(ctx, patientID)
	farErr := t.far.Delete(ctx, patientID)
	return errors.Join(nearErr, farErr)
}
