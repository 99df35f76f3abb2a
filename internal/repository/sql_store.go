package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/clinical-kg-server/internal/domain"
)

// Dialect selects placeholder style and row ordering for SQLFactStore.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLFactStore is a database/sql implementation of domain.ClinicalFactStore.
// It backs lite mode with SQLite and can also read the migrated PostgreSQL
// schema through lib/pq.
type SQLFactStore struct {
	db      *sql.DB
	dialect Dialect
	log     *logrus.Logger
}

// NewSQLFactStore wraps an open database. The schema must already exist.
func NewSQLFactStore(db *sql.DB, dialect Dialect, logger *logrus.Logger) *SQLFactStore {
	return &SQLFactStore{db: db, dialect: dialect, log: logger}
}

// OpenSQLiteFactStore opens (or creates) a SQLite database file and
// bootstraps the fact tables. Use ":memory:" for a throwaway store.
func OpenSQLiteFactStore(dbPath string, logger *logrus.Logger) (*SQLFactStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite fact store ready")
	return NewSQLFactStore(db, DialectSQLite, logger), nil
}

// OpenPostgresFactStore connects through lib/pq to a database migrated with
// the files under migrations/.
func OpenPostgresFactStore(dsn string, maxOpenConns int, logger *logrus.Logger) (*SQLFactStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres database: %w", err)
	}

	return NewSQLFactStore(db, DialectPostgres, logger), nil
}

// Close closes the underlying database.
func (s *SQLFactStore) Close() error {
	return s.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS clinical_conditions (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		document_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		status TEXT,
		severity TEXT,
		diagnosed_date TEXT,
		body_site TEXT,
		icd10_code TEXT,
		snomed_code TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS clinical_medications (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		document_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		dosage TEXT,
		frequency TEXT,
		route TEXT,
		indication TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		start_date TEXT,
		end_date TEXT,
		prescriber TEXT,
		rxnorm_code TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS clinical_lab_results (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		document_id TEXT NOT NULL DEFAULT '',
		test_name TEXT NOT NULL DEFAULT '',
		value TEXT,
		unit TEXT,
		reference_range TEXT,
		is_abnormal INTEGER,
		abnormal_flag TEXT,
		test_date TEXT,
		loinc_code TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS clinical_procedures (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		document_id TEXT NOT NULL DEFAULT '',
		procedure_name TEXT NOT NULL DEFAULT '',
		performed_date TEXT,
		indication TEXT,
		outcome TEXT,
		provider TEXT,
		facility TEXT,
		cpt_code TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS clinical_allergies (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		document_id TEXT NOT NULL DEFAULT '',
		allergen TEXT NOT NULL DEFAULT '',
		reaction TEXT,
		severity TEXT,
		allergy_type TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		verified_date TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_clinical_conditions_patient ON clinical_conditions(patient_id);
	CREATE INDEX IF NOT EXISTS idx_clinical_medications_patient ON clinical_medications(patient_id);
	CREATE INDEX IF NOT EXISTS idx_clinical_lab_results_patient ON clinical_lab_results(patient_id);
	CREATE INDEX IF NOT EXISTS idx_clinical_procedures_patient ON clinical_procedures(patient_id);
	CREATE INDEX IF NOT EXISTS idx_clinical_allergies_patient ON clinical_allergies(patient_id);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// rebind rewrites ? placeholders into the dialect's form.
func (s *SQLFactStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLFactStore) orderBy() string {
	if s.dialect == DialectSQLite {
		return " ORDER BY rowid"
	}
	return " ORDER BY created_at, id"
}

func (s *SQLFactStore) listQuery(columns, table string) string {
	return s.rebind("SELECT "+columns+" FROM "+table+" WHERE patient_id = ? AND deleted_at IS NULL") + s.orderBy()
}

// ListConditions returns the patient's non-deleted conditions
func (s *SQLFactStore) ListConditions(ctx context.Context, patientID string) ([]domain.Condition, error) {
	query := s.listQuery("id, patient_id, document_id, name, status, severity, diagnosed_date, body_site, icd10_code, snomed_code", "clinical_conditions")
	return sqlQueryFacts(ctx, s, patientID, "conditions", query, func(row scanner) (domain.Condition, error) {
		var c domain.Condition
		var status, severity, diagnosed, bodySite, icd10, snomed sql.NullString
		if err := row.Scan(&c.ID, &c.PatientID, &c.DocumentID, &c.Name, &status, &severity, &diagnosed, &bodySite, &icd10, &snomed); err != nil {
			return c, err
		}
		c.Status, c.Severity = status.String, severity.String
		c.BodySite, c.ICD10Code, c.SNOMEDCode = bodySite.String, icd10.String, snomed.String
		c.DiagnosedDate = parseNullDate(diagnosed)
		return c, nil
	})
}

// ListMedications returns the patient's non-deleted medications
func (s *SQLFactStore) ListMedications(ctx context.Context, patientID string) ([]domain.Medication, error) {
	query := s.listQuery("id, patient_id, document_id, name, dosage, frequency, route, indication, is_active, start_date, end_date, prescriber, rxnorm_code", "clinical_medications")
	return sqlQueryFacts(ctx, s, patientID, "medications", query, func(row scanner) (domain.Medication, error) {
		var m domain.Medication
		var dosage, frequency, route, indication, start, end, prescriber, rxnorm sql.NullString
		if err := row.Scan(&m.ID, &m.PatientID, &m.DocumentID, &m.Name, &dosage, &frequency, &route, &indication, &m.IsActive, &start, &end, &prescriber, &rxnorm); err != nil {
			return m, err
		}
		m.Dosage, m.Frequency, m.Route = dosage.String, frequency.String, route.String
		m.Indication, m.Prescriber, m.RxNormCode = indication.String, prescriber.String, rxnorm.String
		m.StartDate, m.EndDate = parseNullDate(start), parseNullDate(end)
		return m, nil
	})
}

// ListLabResults returns the patient's non-deleted lab results
func (s *SQLFactStore) ListLabResults(ctx context.Context, patientID string) ([]domain.LabResult, error) {
	query := s.listQuery("id, patient_id, document_id, test_name, value, unit, reference_range, is_abnormal, abnormal_flag, test_date, loinc_code", "clinical_lab_results")
	return sqlQueryFacts(ctx, s, patientID, "lab_results", query, func(row scanner) (domain.LabResult, error) {
		var l domain.LabResult
		var value, unit, refRange, flag, tested, loinc sql.NullString
		var abnormal sql.NullBool
		if err := row.Scan(&l.ID, &l.PatientID, &l.DocumentID, &l.TestName, &value, &unit, &refRange, &abnormal, &flag, &tested, &loinc); err != nil {
			return l, err
		}
		l.Value, l.Unit, l.ReferenceRange = value.String, unit.String, refRange.String
		l.AbnormalFlag, l.LOINCCode = flag.String, loinc.String
		if abnormal.Valid {
			v := abnormal.Bool
			l.IsAbnormal = &v
		}
		l.TestDate = parseNullDate(tested)
		return l, nil
	})
}

// ListProcedures returns the patient's non-deleted procedures
func (s *SQLFactStore) ListProcedures(ctx context.Context, patientID string) ([]domain.Procedure, error) {
	query := s.listQuery("id, patient_id, document_id, procedure_name, performed_date, indication, outcome, provider, facility, cpt_code", "clinical_procedures")
	return sqlQueryFacts(ctx, s, patientID, "procedures", query, func(row scanner) (domain.Procedure, error) {
		var p domain.Procedure
		var performed, indication, outcome, provider, facility, cpt sql.NullString
		if err := row.Scan(&p.ID, &p.PatientID, &p.DocumentID, &p.Name, &performed, &indication, &outcome, &provider, &facility, &cpt); err != nil {
			return p, err
		}
		p.Indication, p.Outcome, p.Provider = indication.String, outcome.String, provider.String
		p.Facility, p.CPTCode = facility.String, cpt.String
		p.PerformedDate = parseNullDate(performed)
		return p, nil
	})
}

// ListAllergies returns the patient's non-deleted allergies
func (s *SQLFactStore) ListAllergies(ctx context.Context, patientID string) ([]domain.Allergy, error) {
	query := s.listQuery("id, patient_id, document_id, allergen, reaction, severity, allergy_type, is_active, verified_date", "clinical_allergies")
	return sqlQueryFacts(ctx, s, patientID, "allergies", query, func(row scanner) (domain.Allergy, error) {
		var a domain.Allergy
		var reaction, severity, allergyType, verified sql.NullString
		if err := row.Scan(&a.ID, &a.PatientID, &a.DocumentID, &a.Allergen, &reaction, &severity, &allergyType, &a.IsActive, &verified); err != nil {
			return a, err
		}
		a.Reaction, a.Severity, a.AllergyType = reaction.String, severity.String, allergyType.String
		a.VerifiedDate = parseNullDate(verified)
		return a, nil
	})
}

func sqlQueryFacts[T any](ctx context.Context, s *SQLFactStore, patientID, kind, query string, scan func(scanner) (T, error)) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, query, patientID)
	if err != nil {
		s.log.WithFields(logrus.Fields{
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
func (s *SQLFactStore) ImportFacts(ctx context.Context, patientID string, facts *domain.PatientFacts) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	written := 0
	exec := func(query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, s.rebind(query), args...); err != nil {
			return err
		}
		written++
		return nil
	}

	for _, c := range facts.Conditions {
		if err := exec(`INSERT INTO clinical_conditions (id, patient_id, document_id, name, status, severity, diagnosed_date, body_site, icd10_code, snomed_code)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			factID(c.ID), patientID, c.DocumentID, c.Name, nullString(c.Status), nullString(c.Severity),
			dateString(c.DiagnosedDate), nullString(c.BodySite), nullString(c.ICD10Code), nullString(c.SNOMEDCode)); err != nil {
			return 0, fmt.Errorf("inserting condition: %w", err)
		}
	}
	for _, m := range facts.Medications {
		if err := exec(`INSERT INTO clinical_medications (id, patient_id, document_id, name, dosage, frequency, route, indication, is_active, start_date, end_date, prescriber, rxnorm_code)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			factID(m.ID), patientID, m.DocumentID, m.Name, nullString(m.Dosage), nullString(m.Frequency),
			nullString(m.Route), nullString(m.Indication), m.IsActive, dateString(m.StartDate), dateString(m.EndDate),
			nullString(m.Prescriber), nullString(m.RxNormCode)); err != nil {
			return 0, fmt.Errorf("inserting medication: %w", err)
		}
	}
	for _, l := range facts.LabResults {
		if err := exec(`INSERT INTO clinical_lab_results (id, patient_id, document_id, test_name, value, unit, reference_range, is_abnormal, abnormal_flag, test_date, loinc_code)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			factID(l.ID), patientID, l.DocumentID, l.TestName, nullString(l.Value), nullString(l.Unit),
			nullString(l.ReferenceRange), l.IsAbnormal, nullString(l.AbnormalFlag), dateString(l.TestDate), nullString(l.LOINCCode)); err != nil {
			return 0, fmt.Errorf("inserting lab result: %w", err)
		}
	}
	for _, p := range facts.Procedures {
		if err := exec(`INSERT INTO clinical_procedures (id, patient_id, document_id, procedure_name, performed_date, indication, outcome, provider, facility, cpt_code)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			factID(p.ID), patientID, p.DocumentID, p.Name, dateString(p.PerformedDate), nullString(p.Indication),
			nullString(p.Outcome), nullString(p.Provider), nullString(p.Facility), nullString(p.CPTCode)); err != nil {
			return 0, fmt.Errorf("inserting procedure: %w", err)
		}
	}
	for _, a := range facts.Allergies {
		if err := exec(`INSERT INTO clinical_allergies (id, patient_id, document_id, allergen, reaction, severity, allergy_type, is_active, verified_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			factID(a.ID), patientID, a.DocumentID, a.Allergen, nullString(a.Reaction), nullString(a.Severity),
			nullString(a.AllergyType), a.IsActive, dateString(a.VerifiedDate)); err != nil {
			return 0, fmt.Errorf("inserting allergy: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"patient_id": patientID,
		"fact_count": written,
	}).Info("Clinical facts imported successfully")

	return written, nil
}

// SoftDeleteDocument marks every fact extracted from a document as deleted
// and returns the number of affected rows.
func (s *SQLFactStore) SoftDeleteDocument(ctx context.Context, patientID, documentID string) (int64, error) {
	var total int64
	for _, table := range factTables {
		result, err := s.db.ExecContext(ctx,
			s.rebind("UPDATE "+table+" SET deleted_at = CURRENT_TIMESTAMP WHERE patient_id = ? AND document_id = ? AND deleted_at IS NULL"),
			patientID, documentID)
		if err != nil {
			return total, fmt.Errorf("soft deleting %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("counting deleted %s: %w", table, err)
		}
		total += n
	}
	if total == 0 {
		return 0, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	return total, nil
}

// parseNullDate accepts whatever textual form the driver produced. An
// unparseable value is treated as absent.
func parseNullDate(v sql.NullString) *domain.Date {
	if !v.Valid || v.String == "" {
		return nil
	}
	d, err := domain.ParseDate(v.String)
	if err != nil {
		return nil
	}
	return &d
}

func dateString(d *domain.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
