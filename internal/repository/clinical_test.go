package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/clinical-kg-server/internal/database"
	"github.com/clinical-kg-server/internal/domain"
)

// generateTestPassword creates a random password for test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := database.Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    testPassword,
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: time.Minute * 30,
		SSLMode:     "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.Migrate(ctx, config.URL(), "../../migrations", logger); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}

	return db, cleanup
}

func samplePatientFacts() *domain.PatientFacts {
	abnormal := true
	return &domain.PatientFacts{
		Conditions: []domain.Condition{{
			FactBase:      domain.FactBase{ID: "c1", DocumentID: "doc-1"},
			Name:          "Type 2 Diabetes",
			Severity:      "moderate",
			DiagnosedDate: domain.DatePtr(domain.NewDate(2024, time.January, 1)),
		}},
		Medications: []domain.Medication{{
			FactBase:   domain.FactBase{DocumentID: "doc-1"},
			Name:       "Metformin",
			Indication: "type 2 diabetes",
			IsActive:   true,
			StartDate:  domain.DatePtr(domain.NewDate(2024, time.January, 5)),
		}},
		LabResults: []domain.LabResult{{
			FactBase:   domain.FactBase{ID: "l1", DocumentID: "doc-2"},
			TestName:   "HbA1c",
			Value:      "8.2",
			Unit:       "%",
			IsAbnormal: &abnormal,
			TestDate:   domain.DatePtr(domain.NewDate(2024, time.February, 1)),
		}},
		Procedures: []domain.Procedure{{
			FactBase: domain.FactBase{ID: "p1", DocumentID: "doc-2"},
			Name:     "Retinal exam",
		}},
		Allergies: []domain.Allergy{{
			FactBase: domain.FactBase{ID: "a1", DocumentID: "doc-3"},
			Allergen: "Penicillin",
			Reaction: "hives",
			IsActive: true,
		}},
	}
}

func TestClinicalRepository_ImportAndList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewClinicalRepository(db.Pool, logger)
	ctx := context.Background()

	written, err := repo.ImportFacts(ctx, "patient-1", samplePatientFacts())
	require.NoError(t, err)
	assert.Equal(t, 5, written)

	conditions, err := repo.ListConditions(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, conditions, 1)
	assert.Equal(t, "c1", conditions[0].ID)
	assert.Equal(t, "patient-1", conditions[0].PatientID)
	assert.Equal(t, "moderate", conditions[0].Severity)
	require.NotNil(t, conditions[0].DiagnosedDate)
	assert.Equal(t, "2024-01-01", conditions[0].DiagnosedDate.String())
	assert.Empty(t, conditions[0].BodySite)

	meds, err := repo.ListMedications(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, meds, 1)
	assert.NotEmpty(t, meds[0].ID, "generated id")
	assert.Equal(t, "type 2 diabetes", meds[0].Indication)
	assert.Nil(t, meds[0].EndDate)

	labs, err := repo.ListLabResults(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, labs, 1)
	require.NotNil(t, labs[0].IsAbnormal)
	assert.True(t, *labs[0].IsAbnormal)

	procs, err := repo.ListProcedures(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Nil(t, procs[0].PerformedDate)

	allergies, err := repo.ListAllergies(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, allergies, 1)
	assert.Equal(t, "hives", allergies[0].Reaction)

	other, err := repo.ListConditions(ctx, "patient-2")
	require.NoError(t, err)
	assert.Empty(t, other)
	assert.NotNil(t, other)
}

func TestClinicalRepository_SoftDeleteDocument(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewClinicalRepository(db.Pool, logger)
	ctx := context.Background()

	_, err := repo.ImportFacts(ctx, "patient-1", samplePatientFacts())
	require.NoError(t, err)

	affected, err := repo.SoftDeleteDocument(ctx, "patient-1", "doc-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	labs, err := repo.ListLabResults(ctx, "patient-1")
	require.NoError(t, err)
	assert.Empty(t, labs)

	conditions, err := repo.ListConditions(ctx, "patient-1")
	require.NoError(t, err)
	assert.Len(t, conditions, 1)

	_, err = repo.SoftDeleteDocument(ctx, "patient-1", "doc-2")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
