// Package validate checks flattened shapelet records against the record schema
// and the domain rules for coordinates, years and date windows.
package validate

import (
	"strconv"

	"github.com/sells-group/shapelet-cli/internal/model"
)

// Kind is the declared type of a record field.
type Kind string

// Field kinds, named the way violation messages print them.
const (
	KindString Kind = "str"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindDate   Kind = "date"
	KindList   Kind = "list"
)

const kindNone = "NoneType"

// FieldSpec declares one schema entry.
type FieldSpec struct {
	Field    model.Field
	Kind     Kind
	Required bool
}

// Schema is an ordered list of field declarations.
type Schema []FieldSpec

// DefaultSchema covers every record field; only location and source_file are optional.
var DefaultSchema = Schema{
	{model.FieldDatasetKey, KindString, true},
	{model.FieldShapeletID, KindInt, true},
	{model.FieldState, KindString, true},
	{model.FieldCounty, KindString, true},
	{model.FieldSiteNum, KindInt, true},
	{model.FieldLatitude, KindFloat, true},
	{model.FieldLongitude, KindFloat, true},
	{model.FieldLocation, KindString, false},
	{model.FieldYear, KindInt, true},
	{model.FieldStartDate, KindDate, true},
	{model.FieldEndDate, KindDate, true},
	{model.FieldLengthDays, KindInt, true},
	{model.FieldPatternType, KindString, true},
	{model.FieldDataType, KindString, true},
	{model.FieldQuality, KindFloat, true},
	{model.FieldShapeletValues, KindList, true},
	{model.FieldSourceFile, KindString, false},
}

// Domain bounds.
const (
	MinYear      = 1900
	MaxYear      = 2100
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// Result is the verdict for one record. Valid is true iff Violations is empty.
type Result struct {
	Valid      bool
	Violations []string
}

// Validate checks r against DefaultSchema.
func Validate(r model.Record) Result {
	return DefaultSchema.Validate(r)
}

// Validate runs presence, type and domain checks in that order and reports
// every violation found.
func (s Schema) Validate(r model.Record) Result {
	var v []string

	for _, rule := range s {
		if rule.Required && !r.Present.Has(rule.Field) {
			v = append(v, "missing required field: "+rule.Field.String())
		}
	}

	typed := model.FieldSet(0)
	for _, rule := range s {
		if !r.Present.Has(rule.Field) {
			continue
		}
		got := kindOf(r, rule.Field)
		if got == kindNone && !rule.Required {
			continue
		}
		if got != string(rule.Kind) {
			v = append(v, rule.Field.String()+": expected "+string(rule.Kind)+", got "+got)
			continue
		}
		typed.Add(rule.Field)
	}

	if typed.Has(model.FieldYear) && (r.Year < MinYear || r.Year > MaxYear) {
		v = append(v, "year out of range: "+strconv.Itoa(r.Year))
	}
	if typed.Has(model.FieldLengthDays) && r.LengthDays < 1 {
		v = append(v, "length_days must be >= 1, got "+strconv.Itoa(r.LengthDays))
	}
	if typed.Has(model.FieldLatitude) && !(r.Latitude >= MinLatitude && r.Latitude <= MaxLatitude) {
		v = append(v, "latitude out of range: "+model.FormatFloat(r.Latitude))
	}
	if typed.Has(model.FieldLongitude) && !(r.Longitude >= MinLongitude && r.Longitude <= MaxLongitude) {
		v = append(v, "longitude out of range: "+model.FormatFloat(r.Longitude))
	}
	if typed.Has(model.FieldStartDate) && typed.Has(model.FieldEndDate) && r.EndDate.Before(r.StartDate) {
		v = append(v, "end_date is before start_date")
	}
	if typed.Has(model.FieldShapeletValues) && len(r.ShapeletValues) == 0 {
		v = append(v, "shapelet_values is empty")
	}

	return Result{Valid: len(v) == 0, Violations: v}
}

// kindOf reports the runtime kind of a field value. Unset optional pointers,
// nil slices and zero dates read as NoneType.
func kindOf(r model.Record, f model.Field) string {
	switch f {
	case model.FieldDatasetKey, model.FieldState, model.FieldCounty,
		model.FieldPatternType, model.FieldDataType:
		return string(KindString)
	case model.FieldLocation:
		if r.Location == nil {
			return kindNone
		}
		return string(KindString)
	case model.FieldSourceFile:
		if r.SourceFile == nil {
			return kindNone
		}
		return string(KindString)
	case model.FieldShapeletID, model.FieldSiteNum, model.FieldYear, model.FieldLengthDays:
		return string(KindInt)
	case model.FieldLatitude, model.FieldLongitude, model.FieldQuality:
		return string(KindFloat)
	case model.FieldStartDate:
		if r.StartDate.IsZero() {
			return kindNone
		}
		return string(KindDate)
	case model.FieldEndDate:
		if r.EndDate.IsZero() {
			return kindNone
		}
		return string(KindDate)
	case model.FieldShapeletValues:
		if r.ShapeletValues == nil {
			return kindNone
		}
		return string(KindList)
	}
	return kindNone
}
