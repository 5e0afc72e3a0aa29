package entity

import (
	"math"
	"testing"
)

func TestVerifyNormalized(t *testing.T) {
	unit := make([]float32, 4)
	unit[0] = 1

	cases := []struct {
		name    string
		vector  []float32
		wantErr bool
	}{
		{"unit", unit, false},
		{"empty", nil, true},
		{"unnormalized", []float32{1, 1, 1, 1}, true},
		{"nan", []float32{float32(math.NaN()), 0, 0, 0}, true},
		{"inf", []float32{float32(math.Inf(1)), 0, 0, 0}, true},
		{"near_unit", []float32{0.99999, 0, 0, 0}, false},
	}
	for _, tc := range cases {
		e := Embedding{Vector: tc.vector}
		err := e.VerifyNormalized()
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: VerifyNormalized() = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestConvertTemperature(t *testing.T) {
	if got := ConvertTemperature(300, UnitCelsius); math.Abs(got-26.85) > 1e-9 {
		t.Errorf("celsius = %f, want 26.85", got)
	}
	if got := ConvertTemperature(300, UnitFahrenheit); math.Abs(got-80.33) > 1e-9 {
		t.Errorf("fahrenheit = %f, want 80.33", got)
	}
	if got := ConvertTemperature(300, UnitKelvin); got != 300 {
		t.Errorf("kelvin = %f, want 300 unchanged", got)
	}
}

func TestNeighborSimilarity(t *testing.T) {
	n := Neighbor{Identifier: "p1", Distance: 0.25}
	if got := n.Similarity(); got != 0.75 {
		t.Errorf("Similarity() = %f, want 0.75", got)
	}
}
