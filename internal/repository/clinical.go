package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/clinical-kg-server/internal/domain"
)

// ClinicalRepository reads and writes clinical facts in PostgreSQL
type ClinicalRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewClinicalRepository creates a new clinical fact repository
func NewClinicalRepository(db *pgxpool.Pool, logger *logrus.Logger) *ClinicalRepository {
	return &ClinicalRepository{
		db:  db,
		log: logger,
	}
}

const (
	selectConditions = `
		SELECT id, patient_id, document_id, name, COALESCE(status, ''), COALESCE(severity, ''),
			   diagnosed_date, COALESCE(body_site, ''), COALESCE(icd10_code, ''), COALESCE(snomed_code, '')
		FROM clinical_conditions
		WHERE patient_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`

	selectMedications = `
		SELECT id, patient_id, document_id, name, COALESCE(dosage, ''), COALESCE(frequency, ''),
			   COALESCE(route, ''), COALESCE(indication, ''), is_active, start_date, end_date,
			   COALESCE(prescriber, ''), COALESCE(rxnorm_code, '')
		FROM clinical_medications
		WHERE patient_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`

	selectLabResults = `
		SELECT id, patient_id, document_id, test_name, COALESCE(value, ''), COALESCE(unit, ''),
			   COALESCE(reference_range, ''), is_abnormal, COALESCE(abnormal_flag, ''), test_date,
			   COALESCE(loinc_code, '')
		FROM clinical_lab_results
		WHERE patient_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`

	selectProcedures = `
		SELECT id, patient_id, document_id, procedure_name, performed_date, COALESCE(indication, ''),
			   COALESCE(outcome, ''), COALESCE(provider, ''), COALESCE(facility, ''), COALESCE(cpt_code, '')
		FROM clinical_procedures
		WHERE patient_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`

	selectAllergies = `
		SELECT id, patient_id, document_id, allergen, COALESCE(reaction, ''), COALESCE(severity, ''),
			   COALESCE(allergy_type, ''), is_active, verified_date
		FROM clinical_allergies
		WHERE patient_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`
)

// ListConditions returns the patient's non-deleted conditions
func (r *ClinicalRepository) ListConditions(ctx context.Context, patientID string) ([]domain.Condition, error) {
	return queryFacts(ctx, r, patientID, "conditions", selectConditions, func(row pgx.Rows) (domain.Condition, error) {
		var c domain.Condition
		var diagnosed *time.Time
		err := row.Scan(&c.ID, &c.PatientID, &c.DocumentID, &c.Name, &c.Status, &c.Severity,
			&diagnosed, &c.BodySite, &c.ICD10Code, &c.SNOMEDCode)
		c.DiagnosedDate = toDate(diagnosed)
		return c, err
	})
}

// ListMedications returns the patient's non-deleted medications
func (r *ClinicalRepository) ListMedications(ctx context.Context, patientID string) ([]domain.Medication, error) {
	return queryFacts(ctx, r, patientID, "medications", selectMedications, func(row pgx.Rows) (domain.Medication, error) {
		var m domain.Medication
		var start, end *time.Time
		err := row.Scan(&m.ID, &m.PatientID, &m.DocumentID, &m.Name, &m.Dosage, &m.Frequency,
			&m.Route, &m.Indication, &m.IsActive, &start, &end, &m.Prescriber, &m.RxNormCode)
		m.StartDate = toDate(start)
		m.EndDate = toDate(end)
		return m, err
	})
}

// ListLabResults returns the patient's non-deleted lab results
func (r *ClinicalRepository) ListLabResults(ctx context.Context, patientID string) ([]domain.LabResult, error) {
	return queryFacts(ctx, r, patientID, "lab_results", selectLabResults, func(row pgx.Rows) (domain.LabResult, error) {
		var l domain.LabResult
		var tested *time.Time
		err := row.Scan(&l.ID, &l.PatientID, &l.DocumentID, &l.TestName, &l.Value, &l.Unit,
			&l.ReferenceRange, &l.IsAbnormal, &l.AbnormalFlag, &tested, &l.LOINCCode)
		l.TestDate = toDate(tested)
		return l, err
	})
}

// ListProcedures returns the patient's non-deleted procedures
func (r *ClinicalRepository) ListProcedures(ctx context.Context, patientID string) ([]domain.Procedure, error) {
	return queryFacts(ctx, r, patientID, "procedures", selectProcedures, func(row pgx.Rows) (domain.Procedure, error) {
		var p domain.Procedure
		var performed *time.Time
		err := row.Scan(&p.ID, &p.PatientID, &p.DocumentID, &p.Name, &performed, &p.Indication,
			&p.Outcome, &p.Provider, &p.Facility, &p.CPTCode)
		p.PerformedDate = toDate(performed)
		return p, err
	})
}

// ListAllergies returns the patient's non-deleted allergies
func (r *ClinicalRepository) ListAllergies(ctx context.Context, patientID string) ([]domain.Allergy, error) {
	return queryFacts(ctx, r, patientID, "allergies", selectAllergies, func(row pgx.Rows) (domain.Allergy, error) {
		var a domain.Allergy
		var verified *time.Time
		err := row.Scan(&a.ID, &a.PatientID, &a.DocumentID, &a.Allergen, &a.Reaction, &a.Severity,
			&a.AllergyType, &a.IsActive, &verified)
		a.VerifiedDate = toDate(verified)
		return a, err
	})
}

func queryFacts[T any](ctx context.Context, r *ClinicalRepository, patientID, kind, query string, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := r.db.Query(ctx, query, patientID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"fact_type":  kind,
			"error":      err,
		}).Error("Failed to query clinical facts")
		return nil, fmt.Errorf("querying %s: %w", kind, err)
	}
	defer rows.Close()

	facts := []T{}
	for rows.Next() {
		fact, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", kind, err)
		}
		facts = append(facts, fact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", kind, err)
	}

	return facts, nil
}

// ImportFacts inserts a fact bundle for one patient in a single transaction.
// Facts without an id get a generated one. It returns the number of rows
// written.
func (r *ClinicalRepository) ImportFacts(ctx context.Context, patientID string, facts *domain.PatientFacts) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, c := range facts.Conditions {
		batch.Queue(`INSERT INTO clinical_conditions (id, patient_id, document_id, name, status, severity, diagnosed_date, body_site, icd10_code, snomed_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			factID(c.ID), patientID, c.DocumentID, c.Name, nullString(c.Status), nullString(c.Severity),
			fromDate(c.DiagnosedDate), nullString(c.BodySite), nullString(c.ICD10Code), nullString(c.SNOMEDCode))
	}
	for _, m := range facts.Medications {
		batch.Queue(`INSERT INTO clinical_medications (id, patient_id, document_id, name, dosage, frequency, route, indication, is_active, start_date, end_date, prescriber, rxnorm_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			factID(m.ID), patientID, m.DocumentID, m.Name, nullString(m.Dosage), nullString(m.Frequency),
			nullString(m.Route), nullString(m.Indication), m.IsActive, fromDate(m.StartDate), fromDate(m.EndDate),
			nullString(m.Prescriber), nullString(m.RxNormCode))
	}
	for _, l := range facts.LabResults {
		batch.Queue(`INSERT INTO clinical_lab_results (id, patient_id, document_id, test_name, value, unit, reference_range, is_abnormal, abnormal_flag, test_date, loinc_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			factID(l.ID), patientID, l.DocumentID, l.TestName, nullString(l.Value), nullString(l.Unit),
			nullString(l.ReferenceRange), l.IsAbnormal, nullString(l.AbnormalFlag), fromDate(l.TestDate), nullString(l.LOINCCode))
	}
	for _, p := range facts.Procedures {
		batch.Queue(`INSERT INTO clinical_procedures (id, patient_id, document_id, procedure_name, performed_date, indication, outcome, provider, facility, cpt_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			factID(p.ID), patientID, p.DocumentID, p.Name, fromDate(p.PerformedDate), nullString(p.Indication),
			nullString(p.Outcome), nullString(p.Provider), nullString(p.Facility), nullString(p.CPTCode))
	}
	for _, a := range facts.Allergies {
		batch.Queue(`INSERT INTO clinical_allergies (id, patient_id, document_id, allergen, reaction, severity, allergy_type, is_active, verified_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			factID(a.ID), patientID, a.DocumentID, a.Allergen, nullString(a.Reaction), nullString(a.Severity),
			nullString(a.AllergyType), a.IsActive, fromDate(a.VerifiedDate))
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to import clinical facts")
		return 0, fmt.Errorf("inserting clinical facts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"patient_id": patientID,
		"fact_count": batch.Len(),
	}).Info("Clinical facts imported successfully")

	return batch.Len(), nil
}

// SoftDeleteDocument marks every fact extracted from a document as deleted
// and returns the number of affected rows.
func (r *ClinicalRepository) SoftDeleteDocument(ctx context.Context, patientID, documentID string) (int64, error) {
	var total int64
	for _, table := range factTables {
		result, err := r.db.Exec(ctx,
			"UPDATE "+table+" SET deleted_at = NOW() WHERE patient_id = $1 AND document_id = $2 AND deleted_at IS NULL",
			patientID, documentID)
		if err != nil {
			return total, fmt.Errorf("soft deleting %s: %w", table, err)
		}
		total += result.RowsAffected()
	}
	if total == 0 {
		return 0, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	return total, nil
}

var factTables = []string{
	"clinical_conditions",
	"clinical_medications",
	"clinical_lab_results",
	"clinical_procedures",
	"clinical_allergies",
}

func toDate(t *time.Time) *domain.Date {
	if t == nil {
		return nil
	}
	d := domain.DateOf(*t)
	return &d
}

func fromDate(d *domain.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func factID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}
