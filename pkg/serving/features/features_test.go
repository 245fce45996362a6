package features

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trainingSpec = FeatureSpec{
	Anaemia, Age, Diabetes, EjectionFraction, HighBloodPressure, SerumCreatinine, SerumSodium,
}

func TestAlignReordersCompleteRecord(t *testing.T) {
	raw := RawRecord{
		Age:               50,
		SerumCreatinine:   1.2,
		SerumSodium:       138,
		EjectionFraction:  40,
		HighBloodPressure: 0,
		Diabetes:          0,
		Anaemia:           0,
	}

	aligned := Align(raw, trainingSpec)
	assert.Equal(t, []float64{0, 50, 0, 40, 0, 1.2, 138}, aligned.Values)
	assert.Empty(t, aligned.Defaulted)
	assert.Equal(t, trainingSpec, aligned.Spec)
}

func TestAlignFillsMissingWithZero(t *testing.T) {
	raw := DefaultInputs().Record()
	delete(raw, Anaemia)
	raw[Age] = 72

	aligned := Align(raw, trainingSpec)
	anaemia, ok := aligned.Value(Anaemia)
	require.True(t, ok)
	assert.Equal(t, 0.0, anaemia)
	assert.Equal(t, []string{Anaemia}, aligned.Defaulted)
	age, _ := aligned.Value(Age)
	assert.Equal(t, 72.0, age)
}

func TestAlignDropsUnknownFields(t *testing.T) {
	raw := DefaultInputs().Record()
	raw["notes"] = "x"

	aligned := Align(raw, trainingSpec)
	assert.Len(t, aligned.Values, len(trainingSpec))
	_, ok := aligned.Value("notes")
	assert.False(t, ok)
	assert.NotContains(t, aligned.Map(), "notes")
	assert.Empty(t, aligned.Defaulted)
}

func TestAlignTotality(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pool := append(FeatureSpec{"platelets", "smoking", "time"}, Names...)
	for iter := 0; iter < 200; iter++ {
		raw := RawRecord{}
		for _, name := range pool {
			if rng.Intn(2) == 0 {
				raw[name] = rng.Float64() * 100
			}
		}
		spec := make(FeatureSpec, 0, len(pool))
		for _, idx := range rng.Perm(len(pool))[:1+rng.Intn(len(pool))] {
			spec = append(spec, pool[idx])
		}

		aligned := Align(raw, spec)
		require.Len(t, aligned.Values, len(spec))
		for i, name := range spec {
			if v, ok := raw[name]; ok {
				assert.Equal(t, v, aligned.Values[i])
			} else {
				assert.Equal(t, 0.0, aligned.Values[i])
			}
		}
	}
}

func TestAlignIgnoresFieldOrder(t *testing.T) {
	var first, second RawRecord
	require.NoError(t, json.Unmarshal([]byte(`{"age":61,"anaemia":1,"serum_sodium":131,"diabetes":0}`), &first))
	require.NoError(t, json.Unmarshal([]byte(`{"diabetes":0,"serum_sodium":131,"anaemia":1,"age":61}`), &second))

	assert.Equal(t, Align(first, trainingSpec), Align(second, trainingSpec))
}

func TestAlignCoercesValueTypes(t *testing.T) {
	raw := RawRecord{
		Age:               json.Number("66"),
		SerumCreatinine:   " 2.5 ",
		SerumSodium:       int64(129),
		EjectionFraction:  float32(25),
		HighBloodPressure: true,
		Diabetes:          false,
		Anaemia:           "yes",
	}
	aligned := Align(raw, trainingSpec)
	assert.Equal(t, map[string]float64{
		Age:               66,
		SerumCreatinine:   2.5,
		SerumSodium:       129,
		EjectionFraction:  25,
		HighBloodPressure: 1,
		Diabetes:          0,
		Anaemia:           0,
	}, aligned.Map())
	assert.Equal(t, []string{Anaemia}, aligned.Defaulted)
}

func TestAlignDoesNotShareSpec(t *testing.T) {
	spec := FeatureSpec{Age, Anaemia}
	aligned := Align(RawRecord{Age: 40}, spec)
	spec[0] = "mutated"
	assert.Equal(t, FeatureSpec{Age, Anaemia}, aligned.Spec)
}
