package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FormFields is the structured text/number input for a report. Every sub-record is
// required; bounds are declared as validator tags and checked by Validate.
type FormFields struct {
	BuildingDetails BuildingDetails `json:"building_details"`
	Superstructure  Superstructure  `json:"superstructure"`
	Substructure    Substructure    `json:"substructure"`
	Signature       Signature       `json:"signature"`
}

type BuildingDetails struct {
	// TestingDate is a year and month, "YYYY-MM".
	TestingDate      string `json:"testing_date" validate:"len=7"`
	BuildingName     string `json:"building_name" validate:"max=200"`
	BuildingLocation string `json:"building_location" validate:"max=500"`
	NumberOfStorey   int    `json:"number_of_storey" validate:"gte=1"`
}

type Superstructure struct {
	RebarScanning          RebarScanning          `json:"rebar_scanning"`
	ReboundHammerTest      ReboundHammerTest      `json:"rebound_hammer_test"`
	ConcreteCoreExtraction ConcreteCoreExtraction `json:"concrete_core_extraction"`
	RebarExtraction        RebarExtraction        `json:"rebar_extraction"`
	RestorationWorks       RestorationWorks       `json:"restoration_works"`
}

type RebarScanning struct {
	NumberOfRebarScanLocations int `json:"number_of_rebar_scan_locations" validate:"gte=1"`
}

type ReboundHammerTest struct {
	NumberOfReboundHammerTestLocations int `json:"number_of_rebound_hammer_test_locations" validate:"gte=1"`
}

type ConcreteCoreExtraction struct {
	NumberOfCoringLocations int `json:"number_of_coring_locations" validate:"gte=1"`
}

type RebarExtraction struct {
	NumberOfRebarSamplesExtracted int `json:"number_of_rebar_samples_extracted" validate:"gte=1"`
}

type RestorationWorks struct {
	NonShrinkGroutProductUsed string `json:"non_shrink_grout_product_used" validate:"max=200"`
	EpoxyABUsed               string `json:"epoxy_ab_used" validate:"max=200"`
}

type Substructure struct {
	ConcreteCoreExtraction FoundationCoreExtraction `json:"concrete_core_extraction"`
}

type FoundationCoreExtraction struct {
	NumberOfFoundationLocations      int `json:"number_of_foundation_locations" validate:"gte=1"`
	NumberOfFoundationCoresExtracted int `json:"number_of_foundation_cores_extracted" validate:"gte=1"`
}

type Signature struct {
	PreparedBy     string `json:"prepared_by" validate:"max=100"`
	PreparedByRole string `json:"prepared_by_role" validate:"max=100"`
}

var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report violations with the JSON names clients actually send.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every bound and returns a *ValidationError listing all violations,
// or nil when the fields are acceptable.
func (f *FormFields) Validate() error {
	if f == nil {
		return &ValidationError{Violations: []FieldViolation{{
			Field:   "form_fields",
			Rule:    "required",
			Message: "form fields are required",
		}}}
	}
	err := formValidator.Struct(f)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate form fields: %w", err)
	}
	verr := &ValidationError{Violations: make([]FieldViolation, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := fieldPath(fe.Namespace())
		verr.Violations = append(verr.Violations, FieldViolation{
			Field:   field,
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: describeViolation(field, fe),
		})
	}
	return verr
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describeViolation(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
