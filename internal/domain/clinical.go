// Package domain contains the core clinical entities, graph payload types and
// ports shared by the knowledge graph engine and its adapters.
package domain

import (
	"time"
)

// EntityType identifies the kind of clinical fact a node was built from.
type EntityType string

const (
	EntityCondition  EntityType = "condition"
	EntityMedication EntityType = "medication"
	EntityLabResult  EntityType = "lab_result"
	EntityProcedure  EntityType = "procedure"
	EntityAllergy    EntityType = "allergy"
)

// EntityTypes lists every entity type in canonical processing order.
var EntityTypes = []EntityType{
	EntityCondition,
	EntityMedication,
	EntityLabResult,
	EntityProcedure,
	EntityAllergy,
}

// IsValid reports whether the entity type is part of the fixed vocabulary.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityCondition, EntityMedication, EntityLabResult, EntityProcedure, EntityAllergy:
		return true
	default:
		return false
	}
}

// ClinicalFact is the read-only view the engine needs of any persisted fact.
type ClinicalFact interface {
	FactID() string
	Document() string
	Type() EntityType
	DisplayName() string
	OccurredOn() *Date
	SeverityLevel() string
	Attributes() map[string]any
	IsDeleted() bool
}

// FactBase holds the columns every clinical fact table shares.
type FactBase struct {
	ID         string     `json:"id"`
	PatientID  string     `json:"patient_id"`
	DocumentID string     `json:"document_id"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

func (f FactBase) FactID() string   { return f.ID }
func (f FactBase) Document() string { return f.DocumentID }
func (f FactBase) IsDeleted() bool  { return f.DeletedAt != nil }

// Condition is a diagnosis extracted from a source document.
type Condition struct {
	FactBase
	Name          string `json:"name"`
	Status        string `json:"status,omitempty"`
	Severity      string `json:"severity,omitempty"`
	DiagnosedDate *Date  `json:"diagnosed_date,omitempty"`
	BodySite      string `json:"body_site,omitempty"`
	ICD10Code     string `json:"icd10_code,omitempty"`
	SNOMEDCode    string `json:"snomed_code,omitempty"`
}

func (c Condition) Type() EntityType      { return EntityCondition }
func (c Condition) DisplayName() string   { return c.Name }
func (c Condition) OccurredOn() *Date     { return c.DiagnosedDate }
func (c Condition) SeverityLevel() string { return c.Severity }

func (c Condition) Attributes() map[string]any {
	attrs := make(map[string]any)
	putString(attrs, "status", c.Status)
	putString(attrs, "severity", c.Severity)
	putDate(attrs, "diagnosed_date", c.DiagnosedDate)
	putString(attrs, "icd10_code", c.ICD10Code)
	putString(attrs, "snomed_code", c.SNOMEDCode)
	putString(attrs, "body_site", c.BodySite)
	return attrs
}

// Medication is a prescription or administered drug.
type Medication struct {
	FactBase
	Name       string `json:"name"`
	Dosage     string `json:"dosage,omitempty"`
	Frequency  string `json:"frequency,omitempty"`
	Route      string `json:"route,omitempty"`
	Indication string `json:"indication,omitempty"`
	IsActive   bool   `json:"is_active"`
	StartDate  *Date  `json:"start_date,omitempty"`
	EndDate    *Date  `json:"end_date,omitempty"`
	Prescriber string `json:"prescriber,omitempty"`
	RxNormCode string `json:"rxnorm_code,omitempty"`
}

func (m Medication) Type() EntityType      { return EntityMedication }
func (m Medication) DisplayName() string   { return m.Name }
func (m Medication) OccurredOn() *Date     { return m.StartDate }
func (m Medication) SeverityLevel() string { return "" }

func (m Medication) Attributes() map[string]any {
	attrs := make(map[string]any)
	putString(attrs, "dosage", m.Dosage)
	putString(attrs, "frequency", m.Frequency)
	putString(attrs, "route", m.Route)
	putString(attrs, "indication", m.Indication)
	attrs["is_active"] = m.IsActive
	putDate(attrs, "start_date", m.StartDate)
	putDate(attrs, "end_date", m.EndDate)
	putString(attrs, "prescriber", m.Prescriber)
	putString(attrs, "rxnorm_code", m.RxNormCode)
	return attrs
}

// LabResult is a single laboratory observation.
type LabResult struct {
	FactBase
	TestName       string `json:"test_name"`
	Value          string `json:"value,omitempty"`
	Unit           string `json:"unit,omitempty"`
	ReferenceRange string `json:"reference_range,omitempty"`
	IsAbnormal     *bool  `json:"is_abnormal,omitempty"`
	AbnormalFlag   string `json:"abnormal_flag,omitempty"`
	TestDate       *Date  `json:"test_date,omitempty"`
	LOINCCode      string `json:"loinc_code,omitempty"`
}

func (l LabResult) Type() EntityType      { return EntityLabResult }
func (l LabResult) DisplayName() string   { return l.TestName }
func (l LabResult) OccurredOn() *Date     { return l.TestDate }
func (l LabResult) SeverityLevel() string { return "" }

// Abnormal reports whether the observation was flagged abnormal. A missing
// flag counts as normal.
func (l LabResult) Abnormal() bool {
	return l.IsAbnormal != nil && *l.IsAbnormal
}

func (l LabResult) Attributes() map[string]any {
	attrs := make(map[string]any)
	// The reading fields describe one observation, so a valueless result
	// contributes none of them.
	if l.Value != "" {
		putString(attrs, "latest_value", l.Value)
		putString(attrs, "unit", l.Unit)
		putDate(attrs, "latest_date", l.TestDate)
	}
	putString(attrs, "reference_range", l.ReferenceRange)
	if l.IsAbnormal != nil {
		attrs["is_abnormal"] = *l.IsAbnormal
	}
	putString(attrs, "abnormal_flag", l.AbnormalFlag)
	putString(attrs, "loinc_code", l.LOINCCode)
	return attrs
}

// Procedure is a performed intervention.
type Procedure struct {
	FactBase
	Name          string `json:"procedure_name"`
	PerformedDate *Date  `json:"performed_date,omitempty"`
	Indication    string `json:"indication,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
	Provider      string `json:"provider,omitempty"`
	Facility      string `json:"facility,omitempty"`
	CPTCode       string `json:"cpt_code,omitempty"`
}

func (p Procedure) Type() EntityType      { return EntityProcedure }
func (p Procedure) DisplayName() string   { return p.Name }
func (p Procedure) OccurredOn() *Date     { return p.PerformedDate }
func (p Procedure) SeverityLevel() string { return "" }

func (p Procedure) Attributes() map[string]any {
	attrs := make(map[string]any)
	putDate(attrs, "performed_date", p.PerformedDate)
	putString(attrs, "indication", p.Indication)
	putString(attrs, "outcome", p.Outcome)
	putString(attrs, "provider", p.Provider)
	putString(attrs, "facility", p.Facility)
	putString(attrs, "cpt_code", p.CPTCode)
	return attrs
}

// Allergy is an allergy or adverse reaction record.
type Allergy struct {
	FactBase
	Allergen     string `json:"allergen"`
	Reaction     string `json:"reaction,omitempty"`
	Severity     string `json:"severity,omitempty"`
	AllergyType  string `json:"allergy_type,omitempty"`
	IsActive     bool   `json:"is_active"`
	VerifiedDate *Date  `json:"verified_date,omitempty"`
}

func (a Allergy) Type() EntityType      { return EntityAllergy }
func (a Allergy) DisplayName() string   { return a.Allergen }
func (a Allergy) OccurredOn() *Date     { return a.VerifiedDate }
func (a Allergy) SeverityLevel() string { return a.Severity }

func (a Allergy) Attributes() map[string]any {
	attrs := make(map[string]any)
	putString(attrs, "reaction", a.Reaction)
	putString(attrs, "severity", a.Severity)
	putString(attrs, "allergy_type", a.AllergyType)
	attrs["is_active"] = a.IsActive
	putDate(attrs, "verified_date", a.VerifiedDate)
	return attrs
}

// PatientFacts groups the five independent fact sequences loaded for one patient.
type PatientFacts struct {
	Conditions  []Condition  `json:"conditions"`
	Medications []Medication `json:"medications"`
	LabResults  []LabResult  `json:"lab_results"`
	Procedures  []Procedure  `json:"procedures"`
	Allergies   []Allergy    `json:"allergies"`
}

// Count returns the total number of facts across all types.
func (p *PatientFacts) Count() int {
	return len(p.Conditions) + len(p.Medications) + len(p.LabResults) + len(p.Procedures) + len(p.Allergies)
}

// All flattens the facts in canonical type order, preserving the order
// within each sequence.
func (p *PatientFacts) All() []ClinicalFact {
	facts := make([]ClinicalFact, 0, p.Count())
	for _, c := range p.Conditions {
		facts = append(facts, c)
	}
	for _, m := range p.Medications {
		facts = append(facts, m)
	}
	for _, l := range p.LabResults {
		facts = append(facts, l)
	}
	for _, pr := range p.Procedures {
		facts = append(facts, pr)
	}
	for _, a := range p.Allergies {
		facts = append(facts, a)
	}
	return facts
}

func putString(attrs map[string]any, key, value string) {
	if value != "" {
		attrs[key] = value
	}
}

func putDate(attrs map[string]any, key string, value *Date) {
	if value != nil {
		attrs[key] = value.String()
	}
}
