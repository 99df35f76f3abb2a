package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/clinical-kg-server/internal/domain"
)

// loaderQueries is the number of store calls one graph build issues at once.
// The half-open breaker must admit all of them or recovery never completes.
const loaderQueries = 5

// ResilientFactStore guards a ClinicalFactStore with a circuit breaker so a
// failing database sheds load instead of queueing every graph build behind it.
type ResilientFactStore struct {
	next   domain.ClinicalFactStore
	cb     *gobreaker.CircuitBreaker
	logger *logrus.Logger
}

// NewResilientFactStore wraps next with a breaker built from cfg. Zero values
// fall back to conservative defaults.
func NewResilientFactStore(next domain.ClinicalFactStore, cfg domain.CircuitBreakerConfig, logger *logrus.Logger) *ResilientFactStore {
	if cfg.MaxRequests < loaderQueries {
		cfg.MaxRequests = loaderQueries
	}
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "ClinicalFactStore",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
		// A caller giving up is not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	}

	return &ResilientFactStore{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// State reports the breaker state, mainly for health output.
func (r *ResilientFactStore) State() string {
	return r.cb.State().String()
}

func (r *ResilientFactStore) ListConditions(ctx context.Context, patientID string) ([]domain.Condition, error) {
	return guarded(r, func() ([]domain.Condition, error) { return r.next.ListConditions(ctx, patientID) })
}

func (r *ResilientFactStore) ListMedications(ctx context.Context, patientID string) ([]domain.Medication, error) {
	return guarded(r, func() ([]domain.Medication, error) { return r.next.ListMedications(ctx, patientID) })
}

func (r *ResilientFactStore) ListLabResults(ctx context.Context, patientID string) ([]domain.LabResult, error) {
	return guarded(r, func() ([]domain.LabResult, error) { return r.next.ListLabResults(ctx, patientID) })
}

func (r *ResilientFactStore) ListProcedures(ctx context.Context, patientID string) ([]domain.Procedure, error) {
	return guarded(r, func() ([]domain.Procedure, error) { return r.next.ListProcedures(ctx, patientID) })
}

func (r *ResilientFactStore) ListAllergies(ctx context.Context, patientID string) ([]domain.Allergy, error) {
	return guarded(r, func() ([]domain.Allergy, error) { return r.next.ListAllergies(ctx, patientID) })
}

func guarded[T any](r *ResilientFactStore, fn func() ([]T, error)) ([]T, error) {
	result, err := r.cb.Execute(func() (interface{}, error) {
		rows, err := fn()
		return rows, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", domain.ErrCircuitOpen, err)
		}
		return nil, err
	}
	rows, _ := result.([]T)
	return rows, nil
}
