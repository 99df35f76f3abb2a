package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/clinical-kg-server/internal/domain"
	"github.com/clinical-kg-server/internal/graph"
)

// GraphBuilder assembles a knowledge graph for one patient.
type GraphBuilder interface {
	Build(ctx context.Context, patientID string) (*graph.Result, error)
}

// GraphSummary is the statistics-only view of a patient graph.
type GraphSummary struct {
	PatientID  string                         `json:"patient_id"`
	Statistics domain.GraphStatistics         `json:"statistics"`
	Clusters   map[domain.EntityType][]string `json:"clusters"`
	Message    string                         `json:"message,omitempty"`
}

// KnowledgeGraphService serves patient graphs through an optional cache.
// Concurrent requests for the same patient share one build.
type KnowledgeGraphService struct {
	builder  GraphBuilder
	cache    domain.GraphCache
	cacheTTL time.Duration
	logger   *logrus.Logger
	group    singleflight.Group
}

// NewKnowledgeGraphService creates the service. graphCache may be nil.
func NewKnowledgeGraphService(builder GraphBuilder, graphCache domain.GraphCache, cacheTTL time.Duration, logger *logrus.Logger) *KnowledgeGraphService {
	return &KnowledgeGraphService{
		builder:  builder,
		cache:    graphCache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// GetGraph returns the patient's knowledge graph. refresh skips the cache
// read but still stores the rebuilt graph.
func (s *KnowledgeGraphService) GetGraph(ctx context.Context, patientID string, refresh bool) (*domain.KnowledgeGraph, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, domain.ErrInvalidPatientID
	}

	if !refresh {
		if g, ok := s.cached(ctx, patientID); ok {
			return g, nil
		}
	}

	// The shared build outlives any single caller; each caller stops
	// waiting on its own context.
	ch := s.group.DoChan(patientID, func() (interface{}, error) {
		buildCtx := context.WithoutCancel(ctx)
		result, err := s.builder.Build(buildCtx, patientID)
		if err != nil {
			return nil, err
		}
		s.store(buildCtx, patientID, result.Graph)
		return result.Graph, nil
	})

	select {
	case <-ctx.Done():
		return nil, domain.NewDataAccessError("", patientID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			s.logger.WithFields(logrus.Fields{
				"patient_id": patientID,
				"error":      res.Err,
			}).Error("Failed to build knowledge graph")
			return nil, res.Err
		}
		if res.Shared {
			s.logger.WithField("patient_id", patientID).Debug("Joined in-flight graph build")
		}
		return res.Val.(*domain.KnowledgeGraph), nil
	}
}

// GetSummary returns only the statistics and clusters of the patient's graph.
func (s *KnowledgeGraphService) GetSummary(ctx context.Context, patientID string, refresh bool) (*GraphSummary, error) {
	g, err := s.GetGraph(ctx, patientID, refresh)
	if err != nil {
		return nil, err
	}
	return &GraphSummary{
		PatientID:  g.PatientID,
		Statistics: g.Statistics,
		Clusters:   g.Clusters,
		Message:    g.Message,
	}, nil
}

// Invalidate drops the patient's cached graph.
func (s *KnowledgeGraphService) Invalidate(ctx context.Context, patientID string) error {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return domain.ErrInvalidPatientID
	}
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, patientID); err != nil {
		return fmt.Errorf("invalidating graph cache: %w", err)
	}
	s.logger.WithField("patient_id", patientID).Info("Invalidated cached knowledge graph")
	return nil
}

func (s *KnowledgeGraphService) cached(ctx context.Context, patientID string) (*domain.KnowledgeGraph, bool) {
	if s.cache == nil {
		return nil, false
	}
	g, err := s.cache.Get(ctx, patientID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WithFields(logrus.Fields{
				"patient_id": patientID,
				"error":      err,
			}).Warn("Graph cache read failed")
		}
		return nil, false
	}
	return g, true
}

// store caches non-empty graphs so new documents show up without waiting
// for an empty entry to expire.
func (s *KnowledgeGraphService) store(ctx context.Context, patientID string, g *domain.KnowledgeGraph) {
	if s.cache == nil || g.IsEmpty() {
		return
	}
	if err := s.cache.Set(ctx, patientID, g, s.cacheTTL); err != nil {
		s.logger.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Warn("Graph cache write failed")
	}
}
