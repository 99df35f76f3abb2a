// Package ontology holds the static clinical lookup tables used to infer
// high-confidence relationships. An Ontology is immutable once built and
// safe to share between concurrent graph builds.
package ontology

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Tables is the serializable form of an ontology.
type Tables struct {
	MedicationTreats     map[string][]string `yaml:"medication_treats"`
	LabMonitors          map[string][]string `yaml:"lab_monitors"`
	LabAbnormalIndicates map[string][]string `yaml:"lab_abnormal_indicates"`
	Contraindications    map[string][]string `yaml:"contraindications"`
	SeverityRanks        map[string]int      `yaml:"severity_ranks"`
}

type entry struct {
	key     string
	targets []string
}

// Ontology is an immutable, normalized view of Tables.
type Ontology struct {
	treats            []entry
	monitors          []entry
	abnormal          []entry
	contraindications []entry
	severity          map[string]int
}

// New normalizes the given tables into an Ontology.
func New(t Tables) *Ontology {
	o := &Ontology{
		treats:            buildEntries(t.MedicationTreats),
		monitors:          buildEntries(t.LabMonitors),
		abnormal:          buildEntries(t.LabAbnormalIndicates),
		contraindications: buildEntries(t.Contraindications),
		severity:          make(map[string]int, len(t.SeverityRanks)),
	}
	for level, rank := range t.SeverityRanks {
		o.severity[severityKey(level)] = rank
	}
	return o
}

// Default returns the built-in ontology.
func Default() *Ontology {
	return New(DefaultTables())
}

// Load returns the built-in ontology when path is empty and LoadFile(path)
// otherwise.
func Load(path string) (*Ontology, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a YAML ontology file and overlays it on the built-in
// tables. Keys present in the file replace the default entry for that key.
func LoadFile(path string) (*Ontology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ontology file: %w", err)
	}
	return Parse(data)
}

// Parse overlays YAML ontology data on the built-in tables.
func Parse(data []byte) (*Ontology, error) {
	var override Tables
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse ontology: %w", err)
	}

	base := DefaultTables()
	overlay(base.MedicationTreats, override.MedicationTreats)
	overlay(base.LabMonitors, override.LabMonitors)
	overlay(base.LabAbnormalIndicates, override.LabAbnormalIndicates)
	overlay(base.Contraindications, override.Contraindications)
	for level, rank := range override.SeverityRanks {
		base.SeverityRanks[level] = rank
	}
	return New(base), nil
}

// TreatedConditions returns the condition terms treated by the medication
// with the given canonical key, and whether the medication is known.
func (o *Ontology) TreatedConditions(medicationKey string) ([]string, bool) {
	return lookup(o.treats, medicationKey)
}

// MonitoredConditions returns the condition terms a lab test monitors.
func (o *Ontology) MonitoredConditions(labKey string) ([]string, bool) {
	return lookup(o.monitors, labKey)
}

// AbnormalIndications returns the condition terms an abnormal reading of the
// lab test may indicate, including the monitored ones.
func (o *Ontology) AbnormalIndications(labKey string) ([]string, bool) {
	monitored, ok1 := lookup(o.monitors, labKey)
	indicated, ok2 := lookup(o.abnormal, labKey)
	return union(monitored, indicated), ok1 || ok2
}

// Contraindications returns the allergen and condition terms the medication
// is contraindicated with.
func (o *Ontology) Contraindications(medicationKey string) ([]string, bool) {
	return lookup(o.contraindications, medicationKey)
}

// SeverityRank maps a severity level to its ordinal. Absent levels rank -1
// and unrecognized levels rank 0.
func (o *Ontology) SeverityRank(level string) int {
	key := severityKey(level)
	if key == "" {
		return -1
	}
	return o.severity[key]
}

// MoreSevere reports whether candidate should replace current. Equal ranks
// fall back to lexical order of the normalized level, then of the raw text,
// so repeated merges are order independent.
func (o *Ontology) MoreSevere(candidate, current string) bool {
	rc, rs := o.SeverityRank(candidate), o.SeverityRank(current)
	if rc != rs {
		return rc > rs
	}
	kc, ks := severityKey(candidate), severityKey(current)
	if kc != ks {
		return kc > ks
	}
	return candidate < current
}

// Normalize derives the canonical key of a clinical name: lower-cased,
// stripped of everything except letters, digits and whitespace, with
// whitespace runs collapsed and trimmed.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// MatchesTerm reports whether a canonical key equals term or contains it
// as a whole-word sequence. Both arguments must already be normalized.
func MatchesTerm(key, term string) bool {
	if key == "" || term == "" {
		return false
	}
	if key == term {
		return true
	}
	return strings.Contains(" "+key+" ", " "+term+" ")
}

// MatchesAny reports whether key matches any of the terms.
func MatchesAny(key string, terms []string) bool {
	for _, term := range terms {
		if MatchesTerm(key, term) {
			return true
		}
	}
	return false
}

func buildEntries(table map[string][]string) []entry {
	entries := make([]entry, 0, len(table))
	for key, targets := range table {
		nk := Normalize(key)
		if nk == "" {
			continue
		}
		normalized := make([]string, 0, len(targets))
		for _, target := range targets {
			if nt := Normalize(target); nt != "" {
				normalized = append(normalized, nt)
			}
		}
		entries = append(entries, entry{key: nk, targets: normalized})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return entries
}

// lookup collects the targets of every table key the canonical key matches,
// so "metformin hydrochloride" resolves through the "metformin" entry.
func lookup(entries []entry, key string) ([]string, bool) {
	var targets []string
	found := false
	for _, e := range entries {
		if MatchesTerm(key, e.key) {
			found = true
			targets = union(targets, e.targets)
		}
	}
	return targets, found
}

func union(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func overlay(dst, src map[string][]string) {
	for k, v := range src {
		dst[k] = v
	}
}

func severityKey(level string) string {
	return strings.Join(strings.Fields(strings.ToLower(level)), " ")
}
