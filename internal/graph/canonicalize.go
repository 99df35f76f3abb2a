package graph

import (
	"fmt"
	"strings"

	"github.com/clinical-kg-server/internal/domain"
	"github.com/clinical-kg-server/internal/ontology"
)

// NodeSet is the canonical node mapping produced for one build. Nodes keep
// the order in which they were first created.
type NodeSet struct {
	byID    map[string]*domain.GraphNode
	order   []string
	keys    map[string]string
	members map[string][]domain.ClinicalFact
}

func newNodeSet() *NodeSet {
	return &NodeSet{
		byID:    make(map[string]*domain.GraphNode),
		keys:    make(map[string]string),
		members: make(map[string][]domain.ClinicalFact),
	}
}

// Len returns the number of canonical nodes.
func (s *NodeSet) Len() int { return len(s.order) }

// Get returns the node with the given id.
func (s *NodeSet) Get(id string) (*domain.GraphNode, bool) {
	n, ok := s.byID[id]
	return n, ok
}

// Key returns the canonical key a node was created under. Unnamed facts
// have an empty key.
func (s *NodeSet) Key(id string) string { return s.keys[id] }

// Members returns the facts merged into a node, in merge order.
func (s *NodeSet) Members(id string) []domain.ClinicalFact { return s.members[id] }

// IDs returns node ids in creation order.
func (s *NodeSet) IDs() []string { return s.order }

// IDsOfType returns the ids of nodes of one entity type in creation order.
func (s *NodeSet) IDsOfType(t domain.EntityType) []string {
	var ids []string
	for _, id := range s.order {
		if s.byID[id].Type == t {
			ids = append(ids, id)
		}
	}
	return ids
}

// Nodes returns copies of all nodes in creation order.
func (s *NodeSet) Nodes() []domain.GraphNode {
	nodes := make([]domain.GraphNode, 0, len(s.order))
	for _, id := range s.order {
		nodes = append(nodes, *s.byID[id])
	}
	return nodes
}

// Canonicalizer merges repeated mentions of a clinical concept into a
// single node per (entity type, canonical key).
type Canonicalizer struct {
	ontology *ontology.Ontology
}

// NewCanonicalizer creates a canonicalizer ranking severities with o.
func NewCanonicalizer(o *ontology.Ontology) *Canonicalizer {
	return &Canonicalizer{ontology: o}
}

// Canonicalize builds the node set for facts. Soft-deleted facts are skipped.
func (c *Canonicalizer) Canonicalize(facts *domain.PatientFacts) *NodeSet {
	set := newNodeSet()
	unnamed := 0
	for _, fact := range facts.All() {
		if fact.IsDeleted() {
			continue
		}
		key := ontology.Normalize(fact.DisplayName())
		var id string
		if key == "" {
			unnamed++
			id = unnamedNodeID(fact, unnamed)
		} else {
			id = NodeID(fact.Type(), key)
		}

		node, exists := set.byID[id]
		if !exists {
			node = newNode(id, key, fact)
			set.byID[id] = node
			set.order = append(set.order, id)
			set.keys[id] = key
		} else {
			c.merge(node, fact)
		}
		set.members[id] = append(set.members[id], fact)
	}
	return set
}

// NodeID builds the canonical node identifier.
func NodeID(t domain.EntityType, key string) string {
	return string(t) + "::" + key
}

func unnamedNodeID(fact domain.ClinicalFact, seq int) string {
	if fact.FactID() != "" {
		return NodeID(fact.Type(), "fact:"+fact.FactID())
	}
	return NodeID(fact.Type(), fmt.Sprintf("fact:#%d", seq))
}

func newNode(id, key string, fact domain.ClinicalFact) *domain.GraphNode {
	label := strings.TrimSpace(fact.DisplayName())
	if key == "" && label == "" {
		label = "Unnamed " + strings.ReplaceAll(string(fact.Type()), "_", " ")
	}
	node := &domain.GraphNode{
		ID:              id,
		Label:           label,
		Type:            fact.Type(),
		Properties:      fact.Attributes(),
		SourceDocuments: []string{},
	}
	if fact.Document() != "" {
		node.SourceDocuments = append(node.SourceDocuments, fact.Document())
	}
	if d := fact.OccurredOn(); d != nil {
		node.EarliestDate = domain.DatePtr(*d)
	}
	return node
}

func (c *Canonicalizer) merge(node *domain.GraphNode, fact domain.ClinicalFact) {
	if doc := fact.Document(); doc != "" && !node.HasDocument(doc) {
		node.SourceDocuments = append(node.SourceDocuments, doc)
	}

	if severity := fact.SeverityLevel(); severity != "" {
		current, _ := node.Properties["severity"].(string)
		if c.ontology.MoreSevere(severity, current) {
			node.Properties["severity"] = severity
		}
	}

	if d := fact.OccurredOn(); d != nil {
		if node.EarliestDate == nil || d.Before(node.EarliestDate.Time) {
			node.EarliestDate = domain.DatePtr(*d)
		}
	}

	lab, isLab := fact.(domain.LabResult)
	if isLab {
		mergeLabReading(node, lab)
	}

	for k, v := range fact.Attributes() {
		if isLab && labReadingKeys[k] {
			continue
		}
		if _, present := node.Properties[k]; !present {
			node.Properties[k] = v
		}
	}
}

// labReadingKeys are only ever written together by mergeLabReading.
var labReadingKeys = map[string]bool{
	"latest_value": true,
	"unit":         true,
	"latest_date":  true,
}

// mergeLabReading moves the latest reading forward to the most recent dated
// result that carries a value, and keeps is_abnormal set once any reading
// was abnormal.
func mergeLabReading(node *domain.GraphNode, lab domain.LabResult) {
	if lab.Abnormal() {
		node.Properties["is_abnormal"] = true
	}
	if lab.Value == "" {
		return
	}

	current, hasReading := node.Properties["latest_value"].(string)
	if hasReading {
		latest, _ := node.Properties["latest_date"].(string)
		tested := ""
		if lab.TestDate != nil {
			tested = lab.TestDate.String()
		}
		// Undated readings sort before dated ones; same-day readings
		// settle on the smaller value.
		if tested < latest || (tested == latest && lab.Value >= current) {
			return
		}
	}

	for k := range labReadingKeys {
		delete(node.Properties, k)
	}
	node.Properties["latest_value"] = lab.Value
	if lab.Unit != "" {
		node.Properties["unit"] = lab.Unit
	}
	if lab.TestDate != nil {
		node.Properties["latest_date"] = lab.TestDate.String()
	}
}
