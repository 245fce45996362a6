// Package features reconciles user-supplied clinical records with the ordered
// feature list a trained model expects.
package features

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Canonical feature names for the heart-failure model.
const (
	Age               = "age"
	SerumCreatinine   = "serum_creatinine"
	SerumSodium       = "serum_sodium"
	EjectionFraction  = "ejection_fraction"
	HighBloodPressure = "high_blood_pressure"
	Diabetes          = "diabetes"
	Anaemia           = "anaemia"
)

// Names lists the canonical features in the order the form collects them.
var Names = FeatureSpec{Age, SerumCreatinine, SerumSodium, EjectionFraction, HighBloodPressure, Diabetes, Anaemia}

// FeatureSpec is the ordered list of feature names a model was trained on.
type FeatureSpec []string

// RawRecord maps field names to user-supplied values. Order is irrelevant and
// values may be numbers, booleans, numeric strings or anything else.
type RawRecord map[string]interface{}

// AlignedRecord holds one value per FeatureSpec entry, in spec order.
type AlignedRecord struct {
	Spec      FeatureSpec
	Values    []float64
	Defaulted []string
}

func (a AlignedRecord) Len() int {
	return len(a.Values)
}

// Value returns the aligned value for name.
func (a AlignedRecord) Value(name string) (float64, bool) {
	for i, feature := range a.Spec {
		if feature == name {
			return a.Values[i], true
		}
	}
	return 0, false
}

// Map returns the aligned values keyed by feature name.
func (a AlignedRecord) Map() map[string]float64 {
	out := make(map[string]float64, len(a.Spec))
	for i, feature := range a.Spec {
		out[feature] = a.Values[i]
	}
	return out
}

// Align reindexes raw against spec. Fields missing from raw, or present with a
// value that is not numeric, are filled with 0 and listed in Defaulted. Fields
// not named by spec are dropped. Align never fails.
func Align(raw RawRecord, spec FeatureSpec) AlignedRecord {
	aligned := AlignedRecord{
		Spec:   append(FeatureSpec(nil), spec...),
		Values: make([]float64, len(spec)),
	}
	for i, name := range spec {
		value, ok := raw[name]
		if !ok {
			aligned.Defaulted = append(aligned.Defaulted, name)
			continue
		}
		f, ok := ToFloat(value)
		if !ok {
			aligned.Defaulted = append(aligned.Defaulted, name)
			continue
		}
		aligned.Values[i] = f
	}
	return aligned
}

// ToFloat coerces the value types a form, JSON body or cache may carry.
func ToFloat(value interface{}) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case bool:
		if v {
			f = 1
		}
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ClinicalInputs is the typed form of the seven values collected by the
// assessment form.
type ClinicalInputs struct {
	Age               int     `json:"age"`
	SerumCreatinine   float64 `json:"serum_creatinine"`
	SerumSodium       int     `json:"serum_sodium"`
	EjectionFraction  int     `json:"ejection_fraction"`
	HighBloodPressure int     `json:"high_blood_pressure"`
	Diabetes          int     `json:"diabetes"`
	Anaemia           int     `json:"anaemia"`
}

// DefaultInputs mirrors the initial widget values of the assessment form.
func DefaultInputs() ClinicalInputs {
	return ClinicalInputs{
		Age:              50,
		SerumCreatinine:  1.2,
		SerumSodium:      138,
		EjectionFraction: 40,
	}
}

func (c ClinicalInputs) Record() RawRecord {
	return RawRecord{
		Age:               c.Age,
		SerumCreatinine:   c.SerumCreatinine,
		SerumSodium:       c.SerumSodium,
		EjectionFraction:  c.EjectionFraction,
		HighBloodPressure: c.HighBloodPressure,
		Diabetes:          c.Diabetes,
		Anaemia:           c.Anaemia,
	}
}
