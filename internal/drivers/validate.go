package drivers

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// ValidationError reports an entity-specific rule failure. The record is
// dropped and tallied separately from fetch failures, never retried.
type ValidationError struct {
	Entity harvester.EntityType
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s record: field %q %s", e.Entity, e.Field, e.Reason)
}

var (
	// EC-standard codes are the fixed alphanumeric form: EC followed by
	// exactly four digits.
	ecCodePattern    = regexp.MustCompile(`^EC\d{4}$`)
	certifierPattern = regexp.MustCompile(`^[A-Z0-9/-]{2,20}$`)
	numericPattern   = regexp.MustCompile(`^\d+$`)
)

const (
	minTitleLen = 10
	maxTitleLen = 250
	minNameLen  = 5
)

// ValidateRecord applies the per-entity rules to a complete record.
// Incomplete listing rows are forwarded without validation.
func ValidateRecord(rec harvester.ExtractedRecord) error {
	if rec.Incomplete {
		return nil
	}
	switch rec.EntityType {
	case harvester.EntityStandard:
		return validateStandard(rec)
	case harvester.EntityCertifier:
		return validateCertifier(rec)
	case harvester.EntityCenter:
		return validateCenter(rec)
	case harvester.EntitySector, harvester.EntityCommittee:
		return validateTaxonomy(rec)
	default:
		return &ValidationError{Entity: rec.EntityType, Field: "entity_type", Reason: "is unknown"}
	}
}

func validateStandard(rec harvester.ExtractedRecord) error {
	code := rec.Fields["code"]
	if !ecCodePattern.MatchString(code) {
		return &ValidationError{Entity: rec.EntityType, Field: "code", Reason: fmt.Sprintf("%q does not match EC pattern", code)}
	}
	n := utf8.RuneCountInString(rec.Fields["title"])
	if n < minTitleLen || n > maxTitleLen {
		return &ValidationError{Entity: rec.EntityType, Field: "title", Reason: fmt.Sprintf("length %d outside [%d,%d]", n, minTitleLen, maxTitleLen)}
	}
	return nil
}

func validateCertifier(rec harvester.ExtractedRecord) error {
	if rec.NaturalKey == "" {
		return &ValidationError{Entity: rec.EntityType, Field: "natural_key", Reason: "is empty"}
	}
	if !certifierPattern.MatchString(foldText(rec.NaturalKey)) {
		return &ValidationError{Entity: rec.EntityType, Field: "natural_key", Reason: fmt.Sprintf("%q is malformed", rec.NaturalKey)}
	}
	if utf8.RuneCountInString(rec.Fields["name"]) < minNameLen {
		return &ValidationError{Entity: rec.EntityType, Field: "name", Reason: "is too short"}
	}
	return nil
}

func validateCenter(rec harvester.ExtractedRecord) error {
	if rec.NaturalKey == "" {
		return &ValidationError{Entity: rec.EntityType, Field: "natural_key", Reason: "is empty"}
	}
	if utf8.RuneCountInString(rec.Fields["name"]) < minNameLen {
		return &ValidationError{Entity: rec.EntityType, Field: "name", Reason: "is too short"}
	}
	return nil
}

func validateTaxonomy(rec harvester.ExtractedRecord) error {
	if !numericPattern.MatchString(rec.NaturalKey) {
		return &ValidationError{Entity: rec.EntityType, Field: "natural_key", Reason: fmt.Sprintf("%q is not numeric", rec.NaturalKey)}
	}
	if rec.Fields["name"] == "" {
		return &ValidationError{Entity: rec.EntityType, Field: "name", Reason: "is empty"}
	}
	return nil
}
