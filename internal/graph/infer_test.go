package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-kg-server/internal/domain"
	"github.com/clinical-kg-server/internal/ontology"
)

func inferAndResolve(o *ontology.Ontology, facts *domain.PatientFacts) ([]domain.GraphEdge, []domain.GraphEdge) {
	nodes := NewCanonicalizer(o).Canonicalize(facts)
	raw := NewInferencer(o, 30, 180).Infer(nodes)
	return raw, Resolve(raw)
}

func TestTemporalTreatsForWithoutOntologyEntry(t *testing.T) {
	// An ontology that does not know metformin leaves only temporal evidence.
	o := ontology.New(ontology.Tables{})
	facts := &domain.PatientFacts{
		Conditions:  []domain.Condition{condition("c1", "doc-1", "Diabetes", "", "2024-01-01")},
		Medications: []domain.Medication{medication("m1", "doc-2", "Metformin", "", "2024-01-13")},
	}

	_, edges := inferAndResolve(o, facts)

	edge, ok := findEdge(edges, "medication::metformin", "condition::diabetes", domain.RelTreatsFor)
	require.True(t, ok)
	assert.Equal(t, 0.70, edge.Confidence)
	assert.Contains(t, edge.Evidence, "12 days")
	assert.Equal(t, "Temporal: Metformin started 12 days after Diabetes diagnosis", edge.Evidence)
	assert.Equal(t, "treats_for::medication::metformin::condition::diabetes", edge.ID)
}

func TestOntologyEdgeSuppressesTemporalEdge(t *testing.T) {
	facts := &domain.PatientFacts{
		Conditions:  []domain.Condition{condition("c1", "doc-1", "Diabetes", "", "2024-01-01")},
		Medications: []domain.Medication{medication("m1", "doc-2", "Metformin", "", "2024-01-13")},
	}

	raw, edges := inferAndResolve(ontology.Default(), facts)

	assert.Len(t, edgesOfType(raw, domain.RelTreatsFor), 1, "no temporal candidate for an ontology-connected pair")
	edge, ok := findEdge(edges, "medication::metformin", "condition::diabetes", domain.RelTreatsFor)
	require.True(t, ok)
	assert.Equal(t, 0.90, edge.Confidence)
	assert.Equal(t, "Clinical ontology: Metformin is indicated for Diabetes", edge.Evidence)
}

func TestTemporalWindowBounds(t *testing.T) {
	o := ontology.New(ontology.Tables{})
	tests := []struct {
		name    string
		started string
		want    bool
	}{
		{"same day", "2024-01-01", true},
		{"last day of window", "2024-01-31", true},
		{"outside window", "2024-02-01", false},
		{"before diagnosis", "2023-12-31", false},
		{"no start date", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := &domain.PatientFacts{
				Conditions:  []domain.Condition{condition("c1", "doc-1", "Gout", "", "2024-01-01")},
				Medications: []domain.Medication{medication("m1", "doc-2", "Colchicine", "", tt.started)},
			}
			_, edges := inferAndResolve(o, facts)
			_, ok := findEdge(edges, "medication::colchicine", "condition::gout", domain.RelTreatsFor)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestPrescribedForTakesPriorityOverCoOccurrence(t *testing.T) {
	facts := &domain.PatientFacts{
		Conditions:  []domain.Condition{condition("c1", "doc-1", "Hypertension", "", "")},
		Medications: []domain.Medication{medication("m1", "doc-1", "Lisinopril", "Hypertension", "")},
	}

	_, edges := inferAndResolve(ontology.Default(), facts)

	edge, ok := findEdge(edges, "medication::lisinopril", "condition::hypertension", domain.RelPrescribedFor)
	require.True(t, ok)
	assert.Equal(t, 0.95, edge.Confidence)
	assert.Empty(t, edgesOfType(edges, domain.RelCoOccursWith))
	assert.Empty(t, edgesOfType(edges, domain.RelTreatsFor))
}

func TestIndicationOnlyPrescribedFor(t *testing.T) {
	facts := &domain.PatientFacts{
		Conditions:  []domain.Condition{condition("c1", "doc-1", "Migraine", "", "")},
		Medications: []domain.Medication{medication("m1", "doc-2", "Sumatriptan", "acute migraine", "")},
	}

	_, edges := inferAndResolve(ontology.Default(), facts)

	edge, ok := findEdge(edges, "medication::sumatriptan", "condition::migraine", domain.RelPrescribedFor)
	require.True(t, ok)
	assert.Equal(t, 0.92, edge.Confidence)
	assert.Equal(t, "Indication field: 'acute migraine'", edge.Evidence)
}

func TestAbnormalLabSuppressesCoOccurrence(t *testing.T) {
	facts := &domain.PatientFacts{
		Conditions: []domain.Condition{condition("c1", "doc-1", "Diabetes", "", "")},
		LabResults: []domain.LabResult{
			func() domain.LabResult {
				l := lab("l1", "doc-1", "HbA1c", "8.1", true, "2024-02-01")
				l.Unit = "%"
				l.AbnormalFlag = "H"
				return l
			}(),
		},
	}

	_, edges := inferAndResolve(ontology.Default(), facts)

	edge, ok := findEdge(edges, "lab_result::hba1c", "condition::diabetes", domain.RelAbnormalIndicates)
	require.True(t, ok)
	assert.Equal(t, 0.82, edge.Confidence)
	assert.Equal(t, "HbA1c = 8.1 % (H) may indicate Diabetes", edge.Evidence)

	monitors, ok := findEdge(edges, "lab_result::hba1c", "condition::diabetes", domain.RelMonitors)
	require.True(t, ok)
	assert.Equal(t, 0.90, monitors.Confidence)

	assert.Empty(t, edgesOfType(edges, domain.RelCoOccursWith))
}

func TestNormalLabHasNoAbnormalEdge(t *testing.T) {
	facts := &domain.PatientFacts{
		Conditions: []domain.Condition{condition("c1", "doc-1", "Anemia", "", "")},
		LabResults: []domain.LabResult{lab("l1", "doc-1", "Hemoglobin", "13.5", false, "")},
	}

	_, edges := inferAndResolve(ontology.Default(), facts)

	assert.Empty(t, edgesOfType(edges, domain.RelAbnormalIndicates))
	assert.Len(t, edgesOfType(edges, domain.RelMonitors), 1)
}

func TestContraindicationEdges(t *testing.T) {
	facts := &domain.PatientFacts{
		Conditions: []domain.Condition{condition("c1", "doc-1", "Chronic Kidney Disease", "", "")},
		Medications: []domain.Medication{
			medication("m1", "doc-1", "Amoxicillin", "", ""),
			medication("m2", "doc-2", "Metformin", "", ""),
			medication("m3", "doc-2", "Penicillin V", "", ""),
		},
		Allergies: []domain.Allergy{allergy("a1", "doc-3", "Penicillin", "anaphylaxis", "severe")},
	}

	_, edges := inferAndResolve(ontology.Default(), facts)

	table, ok := findEdge(edges, "medication::amoxicillin", "allergy::penicillin", domain.RelContraindicatedWith)
	require.True(t, ok)
	assert.Equal(t, 0.93, table.Confidence)

	direct, ok := findEdge(edges, "medication::penicillin v", "allergy::penicillin", domain.RelContraindicatedWith)
	require.True(t, ok)
	assert.Equal(t, 0.97, direct.Confidence)
	assert.Equal(t, "Patient allergic to Penicillin (reaction: anaphylaxis)", direct.Evidence)

	renal, ok := findEdge(edges, "medication::metformin", "condition::chronic kidney disease", domain.RelContraindicatedWith)
	require.True(t, ok)
	assert.Equal(t, 0.93, renal.Confidence)

	_, ok = findEdge(edges, "medication::amoxicillin", "condition::chronic kidney disease", domain.RelCoOccursWith)
	assert.True(t, ok, "unrelated pair in the same document still co-occurs")
}

func TestProcedureEdges(t *testing.T) {
	facts := &domain.PatientFacts{
		Conditions: []domain.Condition{
			condition("c1", "doc-1", "Coronary Artery Disease", "", "2024-01-01"),
			condition("c2", "doc-1", "Osteoarthritis", "", "2023-01-01"),
		},
		Procedures: []domain.Procedure{
			procedure("p1", "doc-2", "Cardiac Catheterization", "coronary artery disease", "2024-02-15"),
			procedure("p2", "doc-3", "Knee Replacement", "", "2023-06-01"),
		},
	}

	_, edges := inferAndResolve(ontology.Default(), facts)

	indicated, ok := findEdge(edges, "procedure::cardiac catheterization", "condition::coronary artery disease", domain.RelProcedureFor)
	require.True(t, ok)
	assert.Equal(t, 0.85, indicated.Confidence, "indication outranks temporal proximity")

	temporal, ok := findEdge(edges, "procedure::knee replacement", "condition::osteoarthritis", domain.RelProcedureFor)
	require.True(t, ok)
	assert.Equal(t, 0.75, temporal.Confidence)
	assert.Contains(t, temporal.Evidence, "151 days")

	_, ok = findEdge(edges, "procedure::knee replacement", "condition::coronary artery disease", domain.RelProcedureFor)
	assert.False(t, ok, "procedure before diagnosis does not qualify")
}

func TestSerialMonitoring(t *testing.T) {
	tests := []struct {
		name string
		labs []domain.LabResult
		want bool
	}{
		{
			name: "three readings across documents",
			labs: []domain.LabResult{
				lab("l1", "doc-1", "LDL", "160", true, "2024-01-01"),
				lab("l2", "doc-2", "LDL", "140", true, "2024-04-01"),
				lab("l3", "doc-2", "ldl", "120", false, "2024-07-01"),
			},
			want: true,
		},
		{
			name: "two readings",
			labs: []domain.LabResult{
				lab("l1", "doc-1", "LDL", "160", true, "2024-01-01"),
				lab("l2", "doc-2", "LDL", "140", true, "2024-04-01"),
			},
		},
		{
			name: "single document",
			labs: []domain.LabResult{
				lab("l1", "doc-1", "LDL", "160", true, "2024-01-01"),
				lab("l2", "doc-1", "LDL", "140", true, "2024-04-01"),
				lab("l3", "doc-1", "LDL", "120", false, "2024-07-01"),
			},
		},
		{
			name: "undated readings do not count",
			labs: []domain.LabResult{
				lab("l1", "doc-1", "LDL", "160", true, "2024-01-01"),
				lab("l2", "doc-2", "LDL", "140", true, "2024-04-01"),
				lab("l3", "doc-3", "LDL", "120", false, ""),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, edges := inferAndResolve(ontology.Default(), &domain.PatientFacts{LabResults: tt.labs})
			edge, ok := findEdge(edges, "lab_result::ldl", "lab_result::ldl", domain.RelSerialMonitoring)
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, 0.95, edge.Confidence)
				assert.Equal(t, "LDL measured 3 times between 2024-01-01 and 2024-07-01", edge.Evidence)
			}
		})
	}
}

func TestCoOccurrence(t *testing.T) {
	facts := &domain.PatientFacts{
		Conditions:  []domain.Condition{condition("c1", "doc-b", "Headache", "", "")},
		Medications: []domain.Medication{medication("m1", "doc-b", "Vitamin C", "", "")},
		Allergies:   []domain.Allergy{allergy("a1", "doc-a", "Dust", "", ""), allergy("a2", "doc-c", "Pollen", "", "")},
		Procedures: []domain.Procedure{
			procedure("p1", "doc-b", "MRI Brain", "", ""),
			procedure("p2", "doc-a", "MRI Brain", "", ""),
		},
	}

	raw, edges := inferAndResolve(ontology.Default(), facts)

	tests := []struct {
		source, target, doc string
	}{
		{"medication::vitamin c", "condition::headache", "doc-b"},
		{"medication::vitamin c", "procedure::mri brain", "doc-b"},
		{"condition::headache", "procedure::mri brain", "doc-b"},
		{"procedure::mri brain", "allergy::dust", "doc-a"},
	}
	for _, tt := range tests {
		edge, ok := findEdge(edges, tt.source, tt.target, domain.RelCoOccursWith)
		require.True(t, ok, "%s -> %s", tt.source, tt.target)
		assert.Equal(t, 0.50, edge.Confidence)
		assert.Equal(t, "Mentioned together in document "+tt.doc, edge.Evidence)
	}

	assert.Len(t, edgesOfType(edges, domain.RelCoOccursWith), len(tests))
	assert.Equal(t, raw, edges, "co-occurrence never emits duplicate triples")
}

func TestCoOccurrenceSuppressedInEitherDirection(t *testing.T) {
	// The allergy-name rule links medication -> allergy; co-occurrence would
	// orient the pair the same way, and must not duplicate it.
	facts := &domain.PatientFacts{
		Medications: []domain.Medication{medication("m1", "doc-1", "Ibuprofen", "", "")},
		Allergies:   []domain.Allergy{allergy("a1", "doc-1", "Ibuprofen", "", "")},
		Procedures:  []domain.Procedure{procedure("p1", "doc-1", "Colonoscopy", "", "2024-03-01")},
		Conditions:  []domain.Condition{condition("c1", "doc-1", "Polyp", "", "2024-02-01")},
	}

	_, edges := inferAndResolve(ontology.Default(), facts)

	_, ok := findEdge(edges, "medication::ibuprofen", "allergy::ibuprofen", domain.RelCoOccursWith)
	assert.False(t, ok)
	_, ok = findEdge(edges, "condition::polyp", "procedure::colonoscopy", domain.RelCoOccursWith)
	assert.False(t, ok, "procedure -> condition edge blocks the reverse co-occurrence")
	_, ok = findEdge(edges, "procedure::colonoscopy", "condition::polyp", domain.RelProcedureFor)
	assert.True(t, ok)
}

func TestInferStrategiesInIsolation(t *testing.T) {
	o := ontology.Default()
	facts := &domain.PatientFacts{
		Conditions:  []domain.Condition{condition("c1", "doc-1", "Diabetes", "", "2024-01-01"), condition("c2", "doc-1", "Gout", "", "2024-01-01")},
		Medications: []domain.Medication{medication("m1", "doc-1", "Metformin", "", "2024-01-10")},
	}
	nodes := NewCanonicalizer(o).Canonicalize(facts)
	inf := NewInferencer(o, 30, 180)

	ontologyOnly := inf.InferStrategies(nodes, StrategyOntology)
	require.Len(t, ontologyOnly, 1)
	assert.Equal(t, domain.RelTreatsFor, ontologyOnly[0].Type)

	temporalOnly := inf.InferStrategies(nodes, StrategyTemporal)
	assert.Len(t, temporalOnly, 2, "without the ontology pass both pairs qualify temporally")

	coOnly := inf.InferStrategies(nodes, StrategyCoOccurrence)
	assert.Len(t, coOnly, 2)
	for _, e := range coOnly {
		assert.Equal(t, "medication::metformin", e.Source)
	}
}

func TestMissingFieldsNeverFailInference(t *testing.T) {
	facts := &domain.PatientFacts{
		Conditions:  []domain.Condition{{Name: "Diabetes"}},
		Medications: []domain.Medication{{Name: "Metformin"}},
		LabResults:  []domain.LabResult{{TestName: "HbA1c"}},
		Procedures:  []domain.Procedure{{}},
		Allergies:   []domain.Allergy{{}},
	}

	assert.NotPanics(t, func() {
		_, edges := inferAndResolve(ontology.Default(), facts)
		_, ok := findEdge(edges, "medication::metformin", "condition::diabetes", domain.RelTreatsFor)
		assert.True(t, ok)
	})
}
