package domain

import (
	"context"
	"time"
)

// ClinicalFactStore reads the non-deleted clinical facts of one patient.
// Implementations must be safe for concurrent use: the loader issues all
// five queries in parallel.
type ClinicalFactStore interface {
	ListConditions(ctx context.Context, patientID string) ([]Condition, error)
	ListMedications(ctx context.Context, patientID string) ([]Medication, error)
	ListLabResults(ctx context.Context, patientID string) ([]LabResult, error)
	ListProcedures(ctx context.Context, patientID string) ([]Procedure, error)
	ListAllergies(ctx context.Context, patientID string) ([]Allergy, error)
}

// GraphCache stores built graphs keyed by patient id. Get returns
// ErrNotFound on a miss.
type GraphCache interface {
	Get(ctx context.Context, patientID string) (*KnowledgeGraph, error)
	Set(ctx context.Context, patientID string, graph *KnowledgeGraph, ttl time.Duration) error
	Delete(ctx context.Context, patientID string) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetGraphConfig() *GraphConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
