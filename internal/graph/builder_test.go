package graph

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clinical-kg-server/internal/domain"
	"github.com/clinical-kg-server/internal/ontology"
)

type mockFactStore struct {
	mock.Mock
}

func (m *mockFactStore) ListConditions(ctx context.Context, patientID string) ([]domain.Condition, error) {
	args := m.Called(ctx, patientID)
	rows, _ := args.Get(0).([]domain.Condition)
	return rows, args.Error(1)
}

func (m *mockFactStore) ListMedications(ctx context.Context, patientID string) ([]domain.Medication, error) {
	args := m.Called(ctx, patientID)
	rows, _ := args.Get(0).([]domain.Medication)
	return rows, args.Error(1)
}

func (m *mockFactStore) ListLabResults(ctx context.Context, patientID string) ([]domain.LabResult, error) {
	args := m.Called(ctx, patientID)
	rows, _ := args.Get(0).([]domain.LabResult)
	return rows, args.Error(1)
}

func (m *mockFactStore) ListProcedures(ctx context.Context, patientID string) ([]domain.Procedure, error) {
	args := m.Called(ctx, patientID)
	rows, _ := args.Get(0).([]domain.Procedure)
	return rows, args.Error(1)
}

func (m *mockFactStore) ListAllergies(ctx context.Context, patientID string) ([]domain.Allergy, error) {
	args := m.Called(ctx, patientID)
	rows, _ := args.Get(0).([]domain.Allergy)
	return rows, args.Error(1)
}

func newTestBuilder(store domain.ClinicalFactStore) *Builder {
	return NewBuilder(store, ontology.Default(), DefaultOptions(), testLogger())
}

func TestBuildEmptyPatient(t *testing.T) {
	b := newTestBuilder(&staticStore{})

	result, err := b.Build(context.Background(), "patient-empty")
	require.NoError(t, err)

	g := result.Graph
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)
	assert.Equal(t, 0, g.Statistics.TotalNodes)
	assert.Equal(t, 0, g.Statistics.TotalEdges)
	assert.Equal(t, 0.0, g.Statistics.AvgConfidence)
	assert.Empty(t, g.Clusters)
	assert.NotEmpty(t, g.Message)
	assert.Equal(t, domain.EmptyGraphMessage, g.Message)

	data, err := json.Marshal(g)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, []any{}, payload["nodes"])
	assert.Equal(t, []any{}, payload["edges"])
	assert.Equal(t, map[string]any{}, payload["clusters"])
	assert.Equal(t, domain.EmptyGraphMessage, payload["message"])
	stats := payload["statistics"].(map[string]any)
	assert.Equal(t, float64(0), stats["total_nodes"])
	assert.Equal(t, float64(0), stats["avg_confidence"])
	assert.Contains(t, stats, "high_confidence")
}

func TestBuildStateTrace(t *testing.T) {
	store := &staticStore{facts: domain.PatientFacts{
		Conditions: []domain.Condition{condition("c1", "doc-1", "Diabetes", "", "2024-01-01")},
	}}

	result, err := newTestBuilder(store).Build(context.Background(), "patient-1")
	require.NoError(t, err)

	assert.Equal(t, []BuildState{
		StateLoading, StateCanonicalizing, StateInferring, StateResolving, StateSummarizing, StateDone,
	}, result.States)
	assert.Empty(t, result.Graph.Message)
	assert.Equal(t, "patient-1", result.Graph.PatientID)
}

func TestBuildDataAccessFailure(t *testing.T) {
	cause := errors.New("connection refused")
	store := &mockFactStore{}
	store.On("ListConditions", mock.Anything, "patient-1").Return([]domain.Condition{}, nil).Maybe()
	store.On("ListMedications", mock.Anything, "patient-1").Return(nil, cause)
	store.On("ListLabResults", mock.Anything, "patient-1").Return([]domain.LabResult{}, nil).Maybe()
	store.On("ListProcedures", mock.Anything, "patient-1").Return([]domain.Procedure{}, nil).Maybe()
	store.On("ListAllergies", mock.Anything, "patient-1").Return([]domain.Allergy{}, nil).Maybe()

	result, err := newTestBuilder(store).Build(context.Background(), "patient-1")

	require.Error(t, err)
	assert.True(t, domain.IsDataAccessError(err))
	assert.ErrorIs(t, err, cause)

	var dae *domain.DataAccessError
	require.True(t, errors.As(err, &dae))
	assert.Equal(t, domain.EntityMedication, dae.EntityType)

	assert.Nil(t, result.Graph, "no partial graph")
	assert.Equal(t, []BuildState{StateLoading, StateFailed}, result.States)
	store.AssertExpectations(t)
}

func TestBuildCancellation(t *testing.T) {
	t.Run("cancelled before loading", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := newTestBuilder(&staticStore{}).Build(ctx, "patient-1")

		require.Error(t, err)
		assert.True(t, domain.IsDataAccessError(err))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, result.Graph)
	})

	t.Run("deadline during loading", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		result, err := newTestBuilder(&staticStore{delay: 5 * time.Second}).Build(ctx, "patient-1")

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, StateFailed, result.States[len(result.States)-1])
	})
}

func TestLoaderRunsQueriesConcurrently(t *testing.T) {
	store := &staticStore{delay: 100 * time.Millisecond}

	facts, err := NewLoader(store, testLogger()).Load(context.Background(), "patient-1")

	require.NoError(t, err)
	assert.Zero(t, facts.Count())
	assert.Equal(t, 5, store.peakConcurrency())
}

func TestConcurrentBuildsShareNothing(t *testing.T) {
	stores := map[string]*staticStore{
		"p1": {facts: domain.PatientFacts{Conditions: []domain.Condition{condition("c1", "d1", "Asthma", "", "")}}},
		"p2": {facts: domain.PatientFacts{Medications: []domain.Medication{medication("m1", "d2", "Insulin", "", ""), medication("m2", "d2", "Aspirin", "", "")}}},
	}

	var wg sync.WaitGroup
	results := make(map[string]*Result)
	var mu sync.Mutex
	for id, store := range stores {
		wg.Add(1)
		go func(id string, store *staticStore) {
			defer wg.Done()
			r, err := newTestBuilder(store).Build(context.Background(), id)
			assert.NoError(t, err)
			mu.Lock()
			results[id] = r
			mu.Unlock()
		}(id, store)
	}
	wg.Wait()

	assert.Len(t, results["p1"].Graph.Nodes, 1)
	assert.Len(t, results["p2"].Graph.Nodes, 2)
}

func TestBuildEndToEnd(t *testing.T) {
	store := &staticStore{facts: domain.PatientFacts{
		Conditions: []domain.Condition{
			condition("c1", "doc-1", "Type 2 Diabetes", "moderate", "2024-01-01"),
			condition("c2", "doc-2", "type 2 diabetes", "severe", "2023-11-20"),
			condition("c3", "doc-2", "Hypertension", "", "2023-11-20"),
		},
		Medications: []domain.Medication{
			medication("m1", "doc-1", "Metformin", "type 2 diabetes", "2024-01-05"),
			medication("m2", "doc-2", "Lisinopril", "", "2023-11-25"),
		},
		LabResults: []domain.LabResult{
			lab("l1", "doc-1", "HbA1c", "8.2", true, "2024-01-01"),
			lab("l2", "doc-2", "HbA1c", "7.4", true, "2024-03-01"),
			lab("l3", "doc-3", "HbA1c", "6.9", false, "2024-06-01"),
		},
		Allergies: []domain.Allergy{allergy("a1", "doc-3", "Penicillin", "hives", "moderate")},
	}}

	result, err := newTestBuilder(store).Build(context.Background(), "patient-1")
	require.NoError(t, err)
	g := result.Graph

	assert.Equal(t, []string{
		"condition::type 2 diabetes",
		"condition::hypertension",
		"medication::metformin",
		"medication::lisinopril",
		"lab_result::hba1c",
		"allergy::penicillin",
	}, nodeIDs(g.Nodes))

	diabetes := g.Nodes[0]
	assert.Equal(t, "severe", diabetes.Properties["severity"])
	assert.Equal(t, "2023-11-20", diabetes.EarliestDate.String())

	prescribed, ok := findEdge(g.Edges, "medication::metformin", "condition::type 2 diabetes", domain.RelPrescribedFor)
	require.True(t, ok)
	assert.Equal(t, 0.95, prescribed.Confidence)

	treats, ok := findEdge(g.Edges, "medication::lisinopril", "condition::hypertension", domain.RelTreatsFor)
	require.True(t, ok)
	assert.Equal(t, 0.90, treats.Confidence)

	_, ok = findEdge(g.Edges, "lab_result::hba1c", "lab_result::hba1c", domain.RelSerialMonitoring)
	assert.True(t, ok)
	_, ok = findEdge(g.Edges, "lab_result::hba1c", "condition::type 2 diabetes", domain.RelAbnormalIndicates)
	assert.True(t, ok)

	seen := make(map[domain.EdgeKey]bool)
	for _, e := range g.Edges {
		assert.False(t, seen[e.Key()], "duplicate triple %v", e.Key())
		seen[e.Key()] = true
		assert.GreaterOrEqual(t, e.Confidence, 0.0)
		assert.LessOrEqual(t, e.Confidence, 1.0)
	}

	assert.Equal(t, len(g.Nodes), g.Statistics.TotalNodes)
	assert.Equal(t, len(g.Edges), g.Statistics.TotalEdges)
	assert.Equal(t, []string{"condition::type 2 diabetes", "condition::hypertension"}, g.Clusters[domain.EntityCondition])
	assert.GreaterOrEqual(t, g.Statistics.AvgConfidence, 0.0)
	assert.LessOrEqual(t, g.Statistics.AvgConfidence, 1.0)
}

func TestBuildFromFactsMatchesBuild(t *testing.T) {
	facts := domain.PatientFacts{
		Conditions:  []domain.Condition{condition("c1", "doc-1", "Asthma", "", "")},
		Medications: []domain.Medication{medication("m1", "doc-1", "Albuterol", "", "")},
	}
	b := newTestBuilder(&staticStore{facts: facts})

	loaded, err := b.Build(context.Background(), "p")
	require.NoError(t, err)
	direct := b.BuildFromFacts(context.Background(), "p", &facts)

	assert.Equal(t, loaded.Graph.Nodes, direct.Graph.Nodes)
	assert.Equal(t, loaded.Graph.Edges, direct.Graph.Edges)
	assert.Equal(t, StateCanonicalizing, direct.States[0])
}

func nodeIDs(nodes []domain.GraphNode) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestOptionsFrom(t *testing.T) {
	opts := OptionsFrom(domain.GraphConfig{TemporalWindowDays: 14, HighConfidenceThreshold: 0.9})

	assert.Equal(t, 14, opts.TemporalWindowDays)
	assert.Equal(t, 0, opts.ProcedureWindowDays)
	assert.Equal(t, 0.9, opts.HighConfidenceThreshold)
}
