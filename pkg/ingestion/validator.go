package ingestion

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/synaptica-ai/heartrisk/pkg/serving/features"
)

var (
	errNotNumeric  = errors.New("must be numeric")
	errNotInteger  = errors.New("must be a whole number")
	errOutOfRange  = errors.New("out of range")
	errEmptyRecord = errors.New("no clinical fields supplied")
)

type ValidationError struct {
	Fields []string
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Rule bounds one clinical field, inclusive at both ends.
type Rule struct {
	Min     float64
	Max     float64
	Integer bool
}

// ClinicalRules are the ranges the assessment form accepts.
var ClinicalRules = map[string]Rule{
	features.Age:               {Min: 20, Max: 90, Integer: true},
	features.SerumCreatinine:   {Min: 0.1, Max: 10.0},
	features.SerumSodium:       {Min: 100, Max: 150, Integer: true},
	features.EjectionFraction:  {Min: 10, Max: 80, Integer: true},
	features.HighBloodPressure: {Min: 0, Max: 1, Integer: true},
	features.Diabetes:          {Min: 0, Max: 1, Integer: true},
	features.Anaemia:           {Min: 0, Max: 1, Integer: true},
}

// Validator checks the known fields present in a record. Absent and unknown
// fields are left for the aligner.
type Validator struct {
	rules map[string]Rule
}

func NewValidator(rules map[string]Rule) *Validator {
	if rules == nil {
		rules = ClinicalRules
	}
	copied := make(map[string]Rule, len(rules))
	for name, rule := range rules {
		copied[strings.TrimSpace(name)] = rule
	}
	return &Validator{rules: copied}
}

func (v *Validator) Validate(raw features.RawRecord) error {
	if v == nil {
		return ValidationError{reason: errors.New("validator not initialised")}
	}
	names := make([]string, 0, len(raw))
	for name, value := range raw {
		if _, known := v.rules[name]; known && value != nil {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ValidationError{reason: errEmptyRecord}
	}
	sort.Strings(names)

	var problems []string
	var fields []string
	for _, name := range names {
		if err := v.rules[name].check(raw[name]); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
			fields = append(fields, name)
		}
	}
	if len(problems) > 0 {
		return ValidationError{Fields: fields, reason: fmt.Errorf("invalid clinical inputs: %s", strings.Join(problems, "; "))}
	}
	return nil
}

func (r Rule) check(value interface{}) error {
	f, ok := features.ToFloat(value)
	if !ok {
		return errNotNumeric
	}
	if r.Integer && f != math.Trunc(f) {
		return errNotInteger
	}
	if f < r.Min || f > r.Max {
		return fmt.Errorf("%v not in [%v, %v]: %w", f, r.Min, r.Max, errOutOfRange)
	}
	return nil
}
