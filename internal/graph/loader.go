package graph

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/clinical-kg-server/internal/domain"
)

// Loader fetches every clinical fact of a patient from a ClinicalFactStore.
type Loader struct {
	store  domain.ClinicalFactStore
	logger *logrus.Logger
}

// NewLoader creates a new loader over store.
func NewLoader(store domain.ClinicalFactStore, logger *logrus.Logger) *Loader {
	return &Loader{store: store, logger: logger}
}

// Load runs the five per-type queries concurrently. The first failure
// cancels the remaining queries and is returned as a DataAccessError; no
// partial fact set is ever returned.
func (l *Loader) Load(ctx context.Context, patientID string) (*domain.PatientFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewDataAccessError("", patientID, err)
	}

	var facts domain.PatientFacts
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := l.store.ListConditions(gctx, patientID)
		if err != nil {
			return domain.NewDataAccessError(domain.EntityCondition, patientID, err)
		}
		facts.Conditions = rows
		return nil
	})
	g.Go(func() error {
		rows, err := l.store.ListMedications(gctx, patientID)
		if err != nil {
			return domain.NewDataAccessError(domain.EntityMedication, patientID, err)
		}
		facts.Medications = rows
		return nil
	})
	g.Go(func() error {
		rows, err := l.store.ListLabResults(gctx, patientID)
		if err != nil {
			return domain.NewDataAccessError(domain.EntityLabResult, patientID, err)
		}
		facts.LabResults = rows
		return nil
	})
	g.Go(func() error {
		rows, err := l.store.ListProcedures(gctx, patientID)
		if err != nil {
			return domain.NewDataAccessError(domain.EntityProcedure, patientID, err)
		}
		facts.Procedures = rows
		return nil
	})
	g.Go(func() error {
		rows, err := l.store.ListAllergies(gctx, patientID)
		if err != nil {
			return domain.NewDataAccessError(domain.EntityAllergy, patientID, err)
		}
		facts.Allergies = rows
		return nil
	})

	if err := g.Wait(); err != nil {
		l.logger.WithError(err).WithField("patient_id", patientID).Error("Failed to load clinical facts")
		return nil, err
	}

	// A caller that gave up while the queries were in flight gets nothing.
	if err := ctx.Err(); err != nil {
		return nil, domain.NewDataAccessError("", patientID, err)
	}

	l.logger.WithFields(logrus.Fields{
		"patient_id":  patientID,
		"conditions":  len(facts.Conditions),
		"medications": len(facts.Medications),
		"lab_results": len(facts.LabResults),
		"procedures":  len(facts.Procedures),
		"allergies":   len(facts.Allergies),
	}).Debug("Loaded clinical facts")

	return &facts, nil
}
