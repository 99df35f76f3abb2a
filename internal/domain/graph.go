package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RelationshipType is the fixed vocabulary of edge types.
type RelationshipType string

const (
	RelTreatsFor           RelationshipType = "treats_for"
	RelPrescribedFor       RelationshipType = "prescribed_for"
	RelMonitors            RelationshipType = "monitors"
	RelAbnormalIndicates   RelationshipType = "abnormal_indicates"
	RelProcedureFor        RelationshipType = "procedure_for"
	RelContraindicatedWith RelationshipType = "contraindicated_with"
	RelSerialMonitoring    RelationshipType = "serial_monitoring"
	RelCoOccursWith        RelationshipType = "co_occurs_with"
)

// EmptyGraphMessage is attached to graphs that contain no nodes.
const EmptyGraphMessage = "No clinical data found. Upload and process medical documents to build your knowledge graph."

const dateLayout = "2006-01-02"

// Date is a calendar day in UTC. It serializes as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the date for the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts YYYY-MM-DD, RFC 3339 and "YYYY-MM-DD hh:mm:ss" values.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q", s)
}

// DatePtr is a convenience for optional date fields.
func DatePtr(d Date) *Date {
	return &d
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// DaysSince returns the whole days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d.Sub(other.Time).Hours() / 24)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// GraphNode is a canonical clinical concept aggregated across documents.
type GraphNode struct {
	ID              string         `json:"id"`
	Label           string         `json:"label"`
	Type            EntityType     `json:"type"`
	Properties      map[string]any `json:"properties"`
	SourceDocuments []string       `json:"source_documents"`
	EarliestDate    *Date          `json:"earliest_date"`
}

// HasDocument reports whether docID is already among the node's sources.
func (n *GraphNode) HasDocument(docID string) bool {
	for _, d := range n.SourceDocuments {
		if d == docID {
			return true
		}
	}
	return false
}

// GraphEdge is a directed, typed, scored relationship between two nodes.
type GraphEdge struct {
	ID         string           `json:"id"`
	Source     string           `json:"source"`
	Target     string           `json:"target"`
	Type       RelationshipType `json:"type"`
	Confidence float64          `json:"confidence"`
	Evidence   string           `json:"evidence"`
}

// EdgeKey identifies an edge by its (source, target, type) triple.
type EdgeKey struct {
	Source string
	Target string
	Type   RelationshipType
}

// Key returns the deduplication key of the edge.
func (e GraphEdge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target, Type: e.Type}
}

// GraphStatistics summarizes a built graph.
type GraphStatistics struct {
	TotalNodes        int                      `json:"total_nodes"`
	TotalEdges        int                      `json:"total_edges"`
	NodeTypes         map[EntityType]int       `json:"node_types"`
	RelationshipTypes map[RelationshipType]int `json:"relationship_types"`
	AvgConfidence     float64                  `json:"avg_confidence"`
	HighConfidence    int                      `json:"high_confidence"`
}

// KnowledgeGraph is the payload returned to presentation layers.
type KnowledgeGraph struct {
	PatientID  string                  `json:"patient_id,omitempty"`
	Nodes      []GraphNode             `json:"nodes"`
	Edges      []GraphEdge             `json:"edges"`
	Statistics GraphStatistics         `json:"statistics"`
	Clusters   map[EntityType][]string `json:"clusters"`
	Message    string                  `json:"message,omitempty"`
	BuiltAt    time.Time               `json:"built_at"`
}

// IsEmpty reports whether the graph has no nodes.
func (g *KnowledgeGraph) IsEmpty() bool {
	return len(g.Nodes) == 0
}
