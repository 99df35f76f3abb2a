package graph

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-kg-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func date(s string) *domain.Date {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func flag(b bool) *bool { return &b }

func base(id, doc string) domain.FactBase {
	return domain.FactBase{ID: id, PatientID: "patient-1", DocumentID: doc}
}

func condition(id, doc, name, severity, diagnosed string) domain.Condition {
	c := domain.Condition{FactBase: base(id, doc), Name: name, Severity: severity}
	if diagnosed != "" {
		c.DiagnosedDate = date(diagnosed)
	}
	return c
}

func medication(id, doc, name, indication, started string) domain.Medication {
	m := domain.Medication{FactBase: base(id, doc), Name: name, Indication: indication, IsActive: true}
	if started != "" {
		m.StartDate = date(started)
	}
	return m
}

func lab(id, doc, name, value string, abnormal bool, tested string) domain.LabResult {
	l := domain.LabResult{FactBase: base(id, doc), TestName: name, Value: value, IsAbnormal: flag(abnormal)}
	if tested != "" {
		l.TestDate = date(tested)
	}
	return l
}

func procedure(id, doc, name, indication, performed string) domain.Procedure {
	p := domain.Procedure{FactBase: base(id, doc), Name: name, Indication: indication}
	if performed != "" {
		p.PerformedDate = date(performed)
	}
	return p
}

func allergy(id, doc, allergen, reaction, severity string) domain.Allergy {
	return domain.Allergy{FactBase: base(id, doc), Allergen: allergen, Reaction: reaction, Severity: severity, IsActive: true}
}

func findEdge(edges []domain.GraphEdge, source, target string, rel domain.RelationshipType) (domain.GraphEdge, bool) {
	for _, e := range edges {
		if e.Source == source && e.Target == target && e.Type == rel {
			return e, true
		}
	}
	return domain.GraphEdge{}, false
}

func edgesOfType(edges []domain.GraphEdge, rel domain.RelationshipType) []domain.GraphEdge {
	var out []domain.GraphEdge
	for _, e := range edges {
		if e.Type == rel {
			out = append(out, e)
		}
	}
	return out
}

// staticStore serves a fixed fact set and records how many queries were in
// flight at the same time.
type staticStore struct {
	facts domain.PatientFacts
	delay time.Duration

	mu       sync.Mutex
	inFlight int
	peak     int
}

func (s *staticStore) enter(ctx context.Context) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.delay == 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *staticStore) ListConditions(ctx context.Context, _ string) ([]domain.Condition, error) {
	return s.facts.Conditions, s.enter(ctx)
}

func (s *staticStore) ListMedications(ctx context.Context, _ string) ([]domain.Medication, error) {
	return s.facts.Medications, s.enter(ctx)
}

func (s *staticStore) ListLabResults(ctx context.Context, _ string) ([]domain.LabResult, error) {
	return s.facts.LabResults, s.enter(ctx)
}

func (s *staticStore) ListProcedures(ctx context.Context, _ string) ([]domain.Procedure, error) {
	return s.facts.Procedures, s.enter(ctx)
}

func (s *staticStore) ListAllergies(ctx context.Context, _ string) ([]domain.Allergy, error) {
	return s.facts.Allergies, s.enter(ctx)
}

func (s *staticStore) peakConcurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}
