// Package graph builds deduplicated, relationship-annotated clinical
// knowledge graphs from a patient's clinical facts.
package graph

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinical-kg-server/internal/domain"
	"github.com/clinical-kg-server/internal/ontology"
)

const tracerName = "github.com/clinical-kg-server/internal/graph"

// BuildState is a stage of the graph build state machine.
type BuildState string

const (
	StateLoading        BuildState = "LOADING"
	StateCanonicalizing BuildState = "CANONICALIZING"
	StateInferring      BuildState = "INFERRING"
	StateResolving      BuildState = "RESOLVING"
	StateSummarizing    BuildState = "SUMMARIZING"
	StateDone           BuildState = "DONE"
	StateFailed         BuildState = "FAILED"
)

// Options tunes inference windows and statistics.
type Options struct {
	TemporalWindowDays      int
	ProcedureWindowDays     int
	HighConfidenceThreshold float64
}

// DefaultOptions returns the standard engine settings.
func DefaultOptions() Options {
	return Options{
		TemporalWindowDays:      30,
		ProcedureWindowDays:     180,
		HighConfidenceThreshold: DefaultHighConfidenceThreshold,
	}
}

// OptionsFrom maps the graph configuration section onto builder options.
// Zero values fall back to the defaults in NewBuilder.
func OptionsFrom(cfg domain.GraphConfig) Options {
	return Options{
		TemporalWindowDays:      cfg.TemporalWindowDays,
		ProcedureWindowDays:     cfg.ProcedureWindowDays,
		HighConfidenceThreshold: cfg.HighConfidenceThreshold,
	}
}

// Result is the outcome of one build together with the states it passed
// through.
type Result struct {
	Graph    *domain.KnowledgeGraph
	States   []BuildState
	Duration time.Duration
}

// Builder orchestrates loading, canonicalization, inference, resolution and
// summarization. It holds no per-build state, so one Builder serves
// concurrent builds for different patients.
type Builder struct {
	loader        *Loader
	canonicalizer *Canonicalizer
	inferencer    *Inferencer
	options       Options
	logger        *logrus.Logger
	tracer        trace.Tracer
}

// NewBuilder wires a builder over store using the given ontology.
func NewBuilder(store domain.ClinicalFactStore, o *ontology.Ontology, opts Options, logger *logrus.Logger) *Builder {
	if o == nil {
		o = ontology.Default()
	}
	defaults := DefaultOptions()
	if opts.TemporalWindowDays <= 0 {
		opts.TemporalWindowDays = defaults.TemporalWindowDays
	}
	if opts.ProcedureWindowDays <= 0 {
		opts.ProcedureWindowDays = defaults.ProcedureWindowDays
	}
	if opts.HighConfidenceThreshold <= 0 {
		opts.HighConfidenceThreshold = defaults.HighConfidenceThreshold
	}
	return &Builder{
		loader:        NewLoader(store, logger),
		canonicalizer: NewCanonicalizer(o),
		inferencer:    NewInferencer(o, opts.TemporalWindowDays, opts.ProcedureWindowDays),
		options:       opts,
		logger:        logger,
		tracer:        otel.Tracer(tracerName),
	}
}

// Build loads the patient's facts and assembles the graph. The only error
// it returns is a DataAccessError from the loading stage.
func (b *Builder) Build(ctx context.Context, patientID string) (*Result, error) {
	start := time.Now()
	ctx, span := b.tracer.Start(ctx, "graph.build", trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	states := []BuildState{StateLoading}
	b.logState(patientID, StateLoading)

	loadCtx, loadSpan := b.tracer.Start(ctx, "graph.load")
	facts, err := b.loader.Load(loadCtx, patientID)
	if err != nil {
		loadSpan.RecordError(err)
		loadSpan.SetStatus(codes.Error, "load failed")
		loadSpan.End()
		span.SetStatus(codes.Error, "load failed")

		states = append(states, StateFailed)
		b.logState(patientID, StateFailed)
		return &Result{States: states, Duration: time.Since(start)}, err
	}
	loadSpan.SetAttributes(attribute.Int("fact_count", facts.Count()))
	loadSpan.End()

	result := b.assemble(ctx, patientID, facts, states)
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("node_count", result.Graph.Statistics.TotalNodes),
		attribute.Int("edge_count", result.Graph.Statistics.TotalEdges),
	)
	b.logger.WithFields(logrus.Fields{
		"patient_id":     patientID,
		"node_count":     result.Graph.Statistics.TotalNodes,
		"edge_count":     result.Graph.Statistics.TotalEdges,
		"avg_confidence": result.Graph.Statistics.AvgConfidence,
		"duration_ms":    result.Duration.Milliseconds(),
	}).Info("Built knowledge graph")

	return result, nil
}

// BuildFromFacts assembles a graph from already loaded facts. It cannot fail.
func (b *Builder) BuildFromFacts(ctx context.Context, patientID string, facts *domain.PatientFacts) *Result {
	start := time.Now()
	result := b.assemble(ctx, patientID, facts, nil)
	result.Duration = time.Since(start)
	return result
}

func (b *Builder) assemble(ctx context.Context, patientID string, facts *domain.PatientFacts, states []BuildState) *Result {
	advance := func(s BuildState) {
		states = append(states, s)
		b.logState(patientID, s)
	}

	advance(StateCanonicalizing)
	_, span := b.tracer.Start(ctx, "graph.canonicalize")
	nodes := b.canonicalizer.Canonicalize(facts)
	span.SetAttributes(attribute.Int("node_count", nodes.Len()))
	span.End()

	advance(StateInferring)
	_, span = b.tracer.Start(ctx, "graph.infer")
	raw := b.inferencer.Infer(nodes)
	span.SetAttributes(attribute.Int("raw_edge_count", len(raw)))
	span.End()

	advance(StateResolving)
	_, span = b.tracer.Start(ctx, "graph.resolve")
	edges := Resolve(raw)
	span.SetAttributes(attribute.Int("edge_count", len(edges)))
	span.End()

	advance(StateSummarizing)
	_, span = b.tracer.Start(ctx, "graph.summarize")
	nodeList := nodes.Nodes()
	stats, clusters := Summarize(nodeList, edges, b.options.HighConfidenceThreshold)
	span.End()

	graph := &domain.KnowledgeGraph{
		PatientID:  patientID,
		Nodes:      nodeList,
		Edges:      edges,
		Statistics: stats,
		Clusters:   clusters,
		BuiltAt:    time.Now().UTC(),
	}
	if graph.IsEmpty() {
		graph.Message = domain.EmptyGraphMessage
	}

	advance(StateDone)
	return &Result{Graph: graph, States: states}
}

func (b *Builder) logState(patientID string, state BuildState) {
	b.logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"state":      state,
	}).Debug("Graph build state transition")
}
