package graph

import (
	"fmt"
	"math"
	"sort"

	"github.com/clinical-kg-server/internal/domain"
	"github.com/clinical-kg-server/internal/ontology"
)

// Confidence levels assigned by the inference rules.
const (
	ConfidencePrescribedOntology   = 0.95
	ConfidenceAllergenMatch        = 0.97
	ConfidenceContraindication     = 0.93
	ConfidencePrescribedIndication = 0.92
	ConfidenceTreatsOntology       = 0.90
	ConfidenceMonitors             = 0.90
	ConfidenceSerialMonitoring     = 0.95
	ConfidenceProcedureIndication  = 0.85
	ConfidenceAbnormalIndicates    = 0.82
	ConfidenceProcedureTemporal    = 0.75
	ConfidenceTreatsTemporal       = 0.70
	ConfidenceCoOccurrence         = 0.50
)

// minSerialObservations is the number of dated readings of one test needed
// before a serial_monitoring edge is emitted.
const minSerialObservations = 3

// Strategy groups inference rules by the kind of evidence they use.
type Strategy string

const (
	StrategyOntology     Strategy = "ontology"
	StrategyTemporal     Strategy = "temporal"
	StrategyCoOccurrence Strategy = "co_occurrence"
)

type inferenceRule struct {
	Name     string
	Strategy Strategy
	Apply    func(run *inference)
}

// Inferencer derives typed, scored edges between canonical nodes. It emits
// every candidate edge and leaves arbitration to Resolve.
type Inferencer struct {
	ontology            *ontology.Ontology
	temporalWindowDays  int
	procedureWindowDays int
	rules               []inferenceRule
}

// NewInferencer creates an inferencer. Windows are inclusive day counts.
func NewInferencer(o *ontology.Ontology, temporalWindowDays, procedureWindowDays int) *Inferencer {
	inf := &Inferencer{
		ontology:            o,
		temporalWindowDays:  temporalWindowDays,
		procedureWindowDays: procedureWindowDays,
	}
	inf.rules = []inferenceRule{
		{Name: "medication_condition", Strategy: StrategyOntology, Apply: inf.medicationConditionEdges},
		{Name: "lab_monitors", Strategy: StrategyOntology, Apply: inf.labMonitorEdges},
		{Name: "contraindications", Strategy: StrategyOntology, Apply: inf.contraindicationEdges},
		{Name: "abnormal_indicates", Strategy: StrategyOntology, Apply: inf.abnormalIndicatesEdges},
		{Name: "procedure_indication", Strategy: StrategyOntology, Apply: inf.procedureIndicationEdges},
		{Name: "serial_monitoring", Strategy: StrategyOntology, Apply: inf.serialMonitoringEdges},
		{Name: "temporal_treats_for", Strategy: StrategyTemporal, Apply: inf.temporalTreatmentEdges},
		{Name: "temporal_procedure_for", Strategy: StrategyTemporal, Apply: inf.temporalProcedureEdges},
		{Name: "co_occurrence", Strategy: StrategyCoOccurrence, Apply: inf.coOccurrenceEdges},
	}
	return inf
}

// Infer applies every rule in priority order and returns the raw edges.
func (inf *Inferencer) Infer(nodes *NodeSet) []domain.GraphEdge {
	return inf.InferStrategies(nodes, StrategyOntology, StrategyTemporal, StrategyCoOccurrence)
}

// InferStrategies applies only the rules of the listed strategies, in the
// fixed rule order.
func (inf *Inferencer) InferStrategies(nodes *NodeSet, strategies ...Strategy) []domain.GraphEdge {
	enabled := make(map[Strategy]bool, len(strategies))
	for _, s := range strategies {
		enabled[s] = true
	}
	run := &inference{
		nodes:         nodes,
		ontologyPairs: make(map[[2]string]bool),
		connected:     make(map[[2]string]bool),
	}
	for _, rule := range inf.rules {
		if enabled[rule.Strategy] {
			rule.Apply(run)
		}
	}
	return run.edges
}

type inference struct {
	nodes         *NodeSet
	edges         []domain.GraphEdge
	ontologyPairs map[[2]string]bool
	connected     map[[2]string]bool
}

func (run *inference) emit(source, target string, rel domain.RelationshipType, confidence float64, evidence string) {
	run.edges = append(run.edges, domain.GraphEdge{
		ID:         fmt.Sprintf("%s::%s::%s", rel, source, target),
		Source:     source,
		Target:     target,
		Type:       rel,
		Confidence: roundConfidence(confidence),
		Evidence:   evidence,
	})
	if source != target {
		run.connected[undirected(source, target)] = true
	}
}

func (run *inference) label(id string) string {
	n, _ := run.nodes.Get(id)
	return n.Label
}

func (inf *Inferencer) medicationConditionEdges(run *inference) {
	for _, medID := range run.nodes.IDsOfType(domain.EntityMedication) {
		medKey := run.nodes.Key(medID)
		targets, known := inf.ontology.TreatedConditions(medKey)
		indications := medicationIndications(run.nodes.Members(medID))

		for _, condID := range run.nodes.IDsOfType(domain.EntityCondition) {
			condKey := run.nodes.Key(condID)
			if condKey == "" {
				continue
			}
			ontologyMatch := known && ontology.MatchesAny(condKey, targets)
			indication, indicated := matchingIndication(indications, condKey)

			switch {
			case ontologyMatch && indicated:
				run.ontologyPairs[[2]string{medID, condID}] = true
				run.emit(medID, condID, domain.RelPrescribedFor, ConfidencePrescribedOntology,
					fmt.Sprintf("Indication '%s' confirms clinical ontology: %s is indicated for %s", indication, run.label(medID), run.label(condID)))
			case ontologyMatch:
				run.ontologyPairs[[2]string{medID, condID}] = true
				run.emit(medID, condID, domain.RelTreatsFor, ConfidenceTreatsOntology,
					fmt.Sprintf("Clinical ontology: %s is indicated for %s", run.label(medID), run.label(condID)))
			case indicated:
				run.emit(medID, condID, domain.RelPrescribedFor, ConfidencePrescribedIndication,
					fmt.Sprintf("Indication field: '%s'", indication))
			}
		}
	}
}

func (inf *Inferencer) labMonitorEdges(run *inference) {
	for _, labID := range run.nodes.IDsOfType(domain.EntityLabResult) {
		targets, known := inf.ontology.MonitoredConditions(run.nodes.Key(labID))
		if !known {
			continue
		}
		for _, condID := range run.nodes.IDsOfType(domain.EntityCondition) {
			if ontology.MatchesAny(run.nodes.Key(condID), targets) {
				run.emit(labID, condID, domain.RelMonitors, ConfidenceMonitors,
					fmt.Sprintf("%s is a monitoring marker for %s", run.label(labID), run.label(condID)))
			}
		}
	}
}

func (inf *Inferencer) contraindicationEdges(run *inference) {
	for _, medID := range run.nodes.IDsOfType(domain.EntityMedication) {
		medKey := run.nodes.Key(medID)
		if medKey == "" {
			continue
		}
		terms, _ := inf.ontology.Contraindications(medKey)

		for _, allergyID := range run.nodes.IDsOfType(domain.EntityAllergy) {
			allergyKey := run.nodes.Key(allergyID)
			if ontology.MatchesTerm(medKey, allergyKey) || ontology.MatchesTerm(allergyKey, medKey) {
				run.emit(medID, allergyID, domain.RelContraindicatedWith, ConfidenceAllergenMatch,
					fmt.Sprintf("Patient allergic to %s (reaction: %s)", run.label(allergyID), allergyReaction(run.nodes, allergyID)))
				continue
			}
			if ontology.MatchesAny(allergyKey, terms) {
				run.emit(medID, allergyID, domain.RelContraindicatedWith, ConfidenceContraindication,
					fmt.Sprintf("Contraindication: %s should be avoided with %s allergy", run.label(medID), run.label(allergyID)))
			}
		}

		if len(terms) == 0 {
			continue
		}
		for _, condID := range run.nodes.IDsOfType(domain.EntityCondition) {
			if ontology.MatchesAny(run.nodes.Key(condID), terms) {
				run.emit(medID, condID, domain.RelContraindicatedWith, ConfidenceContraindication,
					fmt.Sprintf("Contraindication: %s should be avoided with %s", run.label(medID), run.label(condID)))
			}
		}
	}
}

func (inf *Inferencer) abnormalIndicatesEdges(run *inference) {
	for _, labID := range run.nodes.IDsOfType(domain.EntityLabResult) {
		reading, abnormal := firstAbnormalReading(run.nodes.Members(labID))
		if !abnormal {
			continue
		}
		targets, known := inf.ontology.AbnormalIndications(run.nodes.Key(labID))
		if !known {
			continue
		}
		flag := reading.AbnormalFlag
		if flag == "" {
			flag = "abnormal"
		}
		for _, condID := range run.nodes.IDsOfType(domain.EntityCondition) {
			if ontology.MatchesAny(run.nodes.Key(condID), targets) {
				run.emit(labID, condID, domain.RelAbnormalIndicates, ConfidenceAbnormalIndicates,
					fmt.Sprintf("%s = %s (%s) may indicate %s", run.label(labID), readingValue(reading), flag, run.label(condID)))
			}
		}
	}
}

func (inf *Inferencer) procedureIndicationEdges(run *inference) {
	for _, procID := range run.nodes.IDsOfType(domain.EntityProcedure) {
		indications := procedureIndications(run.nodes.Members(procID))
		if len(indications) == 0 {
			continue
		}
		for _, condID := range run.nodes.IDsOfType(domain.EntityCondition) {
			if indication, ok := matchingIndication(indications, run.nodes.Key(condID)); ok {
				run.emit(procID, condID, domain.RelProcedureFor, ConfidenceProcedureIndication,
					fmt.Sprintf("Procedure indication: '%s'", indication))
			}
		}
	}
}

// serialMonitoringEdges marks tests observed repeatedly across documents
// with a self-loop on the canonical lab node.
func (inf *Inferencer) serialMonitoringEdges(run *inference) {
	for _, labID := range run.nodes.IDsOfType(domain.EntityLabResult) {
		if run.nodes.Key(labID) == "" {
			continue
		}
		var dates []domain.Date
		docs := make(map[string]struct{})
		for _, fact := range run.nodes.Members(labID) {
			if d := fact.OccurredOn(); d != nil {
				dates = append(dates, *d)
				docs[fact.Document()] = struct{}{}
			}
		}
		if len(dates) < minSerialObservations || len(docs) < 2 {
			continue
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j].Time) })
		run.emit(labID, labID, domain.RelSerialMonitoring, ConfidenceSerialMonitoring,
			fmt.Sprintf("%s measured %d times between %s and %s", run.label(labID), len(dates), dates[0], dates[len(dates)-1]))
	}
}

func (inf *Inferencer) temporalTreatmentEdges(run *inference) {
	for _, medID := range run.nodes.IDsOfType(domain.EntityMedication) {
		med, _ := run.nodes.Get(medID)
		if med.EarliestDate == nil {
			continue
		}
		for _, condID := range run.nodes.IDsOfType(domain.EntityCondition) {
			if run.ontologyPairs[[2]string{medID, condID}] {
				continue
			}
			cond, _ := run.nodes.Get(condID)
			if cond.EarliestDate == nil {
				continue
			}
			gap := med.EarliestDate.DaysSince(*cond.EarliestDate)
			if gap < 0 || gap > inf.temporalWindowDays {
				continue
			}
			run.emit(medID, condID, domain.RelTreatsFor, ConfidenceTreatsTemporal,
				fmt.Sprintf("Temporal: %s started %d days after %s diagnosis", med.Label, gap, cond.Label))
		}
	}
}

func (inf *Inferencer) temporalProcedureEdges(run *inference) {
	for _, procID := range run.nodes.IDsOfType(domain.EntityProcedure) {
		proc, _ := run.nodes.Get(procID)
		if proc.EarliestDate == nil {
			continue
		}
		for _, condID := range run.nodes.IDsOfType(domain.EntityCondition) {
			cond, _ := run.nodes.Get(condID)
			if cond.EarliestDate == nil {
				continue
			}
			gap := proc.EarliestDate.DaysSince(*cond.EarliestDate)
			if gap < 0 || gap > inf.procedureWindowDays {
				continue
			}
			run.emit(procID, condID, domain.RelProcedureFor, ConfidenceProcedureTemporal,
				fmt.Sprintf("Temporal: %s performed %d days after %s diagnosis", proc.Label, gap, cond.Label))
		}
	}
}

// coOccurrenceEdges links nodes of different types that share a source
// document, unless an earlier rule already connected them in either
// direction.
func (inf *Inferencer) coOccurrenceEdges(run *inference) {
	ids := run.nodes.IDs()
	for i, a := range ids {
		na, _ := run.nodes.Get(a)
		for _, b := range ids[i+1:] {
			nb, _ := run.nodes.Get(b)
			if na.Type == nb.Type || run.connected[undirected(a, b)] {
				continue
			}
			doc, shared := firstSharedDocument(na, nb)
			if !shared {
				continue
			}
			source, target := orient(na, nb)
			run.emit(source.ID, target.ID, domain.RelCoOccursWith, ConfidenceCoOccurrence,
				fmt.Sprintf("Mentioned together in document %s", doc))
		}
	}
}

var typeOrder = map[domain.EntityType]int{
	domain.EntityMedication: 0,
	domain.EntityCondition:  1,
	domain.EntityLabResult:  2,
	domain.EntityProcedure:  3,
	domain.EntityAllergy:    4,
}

func orient(a, b *domain.GraphNode) (*domain.GraphNode, *domain.GraphNode) {
	oa, ob := typeOrder[a.Type], typeOrder[b.Type]
	if oa < ob || (oa == ob && a.ID <= b.ID) {
		return a, b
	}
	return b, a
}

func firstSharedDocument(a, b *domain.GraphNode) (string, bool) {
	shared := ""
	found := false
	for _, doc := range a.SourceDocuments {
		if b.HasDocument(doc) && (!found || doc < shared) {
			shared, found = doc, true
		}
	}
	return shared, found
}

func undirected(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func medicationIndications(facts []domain.ClinicalFact) []string {
	var out []string
	for _, f := range facts {
		if m, ok := f.(domain.Medication); ok && m.Indication != "" {
			out = append(out, m.Indication)
		}
	}
	return out
}

func procedureIndications(facts []domain.ClinicalFact) []string {
	var out []string
	for _, f := range facts {
		if p, ok := f.(domain.Procedure); ok && p.Indication != "" {
			out = append(out, p.Indication)
		}
	}
	return out
}

// matchingIndication returns the first recorded indication that names the
// condition, comparing canonical keys in both directions.
func matchingIndication(indications []string, condKey string) (string, bool) {
	if condKey == "" {
		return "", false
	}
	for _, raw := range indications {
		key := ontology.Normalize(raw)
		if ontology.MatchesTerm(key, condKey) || ontology.MatchesTerm(condKey, key) {
			return raw, true
		}
	}
	return "", false
}

func firstAbnormalReading(facts []domain.ClinicalFact) (domain.LabResult, bool) {
	for _, f := range facts {
		if lab, ok := f.(domain.LabResult); ok && lab.Abnormal() {
			return lab, true
		}
	}
	return domain.LabResult{}, false
}

func readingValue(lab domain.LabResult) string {
	switch {
	case lab.Value == "":
		return "unknown"
	case lab.Unit == "":
		return lab.Value
	default:
		return lab.Value + " " + lab.Unit
	}
}

func allergyReaction(nodes *NodeSet, id string) string {
	n, _ := nodes.Get(id)
	if r, ok := n.Properties["reaction"].(string); ok && r != "" {
		return r
	}
	return "unknown"
}

func roundConfidence(c float64) float64 {
	return math.Round(c*100) / 100
}
