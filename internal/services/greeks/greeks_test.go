package greeks

import (
	"errors"
	"math"
	"testing"

	"OptSignal/internal/domain/models"
)

func TestPutCallParity(t *testing.T) {
	cases := []struct {
		name              string
		s, k, t, r, sigma float64
	}{
		{"atm", 100, 100, 1, 0.01, 0.2},
		{"itm call", 120, 100, 0.5, 0.03, 0.35},
		{"otm call", 80, 100, 2, 0.05, 0.15},
		{"short dated", 50, 55, 1.0 / 365, 0.01, 0.6},
		{"negative rate", 100, 90, 1, -0.005, 0.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := PriceAndGreeks(tc.s, tc.k, tc.t, tc.r, tc.sigma)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			lhs := g.CallPrice - g.PutPrice
			rhs := tc.s - tc.k*math.Exp(-tc.r*tc.t)
			if math.Abs(lhs-rhs) > 1e-9*math.Max(1, math.Abs(rhs)) {
				t.Fatalf("parity broken: call-put=%v, S-Ke^-rT=%v", lhs, rhs)
			}
			if g.Gamma <= 0 {
				t.Fatalf("gamma must be positive, got %v", g.Gamma)
			}
			if math.Abs(g.PutDelta-(g.Delta-1)) > 1e-12 {
				t.Fatalf("put delta %v != delta-1 %v", g.PutDelta, g.Delta-1)
			}
		})
	}
}

func TestKnownValue(t *testing.T) {
	// S=100 K=100 T=1 r=0.05 sigma=0.2: textbook call 10.4506, put 5.5735.
	g, err := PriceAndGreeks(100, 100, 1, 0.05, 0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(g.CallPrice-10.4506) > 1e-4 {
		t.Fatalf("call price %v", g.CallPrice)
	}
	if math.Abs(g.PutPrice-5.5735) > 1e-4 {
		t.Fatalf("put price %v", g.PutPrice)
	}
	if math.Abs(g.Delta-0.6368) > 1e-4 {
		t.Fatalf("delta %v", g.Delta)
	}
}

func TestDeltaMonotoneInSpot(t *testing.T) {
	prev := -1.0
	for s := 50.0; s <= 150; s += 2.5 {
		g, err := PriceAndGreeks(s, 100, 0.75, 0.01, 0.3)
		if err != nil {
			t.Fatalf("S=%v: %v", s, err)
		}
		if g.Delta < prev {
			t.Fatalf("delta decreased at S=%v: %v < %v", s, g.Delta, prev)
		}
		if g.Gamma <= 0 {
			t.Fatalf("gamma not positive at S=%v", s)
		}
		prev = g.Delta
	}
}

func TestDegenerateInputs(t *testing.T) {
	cases := []struct {
		name     string
		t, sigma float64
		field    string
	}{
		{"zero expiry", 0, 0.2, "T"},
		{"zero vol", 1, 0, "sigma"},
		{"both zero", 0, 0, "T"},
		{"vol time underflow", 1e-300, 1e-200, "sigma"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PriceAndGreeks(100, 100, tc.t, 0.01, tc.sigma)
			var de *models.DegenerateInputError
			if !errors.As(err, &de) {
				t.Fatalf("expected DegenerateInputError, got %v", err)
			}
			if de.Field != tc.field {
				t.Fatalf("field %q, want %q", de.Field, tc.field)
			}
			if models.ErrorCode(err) != models.CodeDegenerateInput {
				t.Fatalf("code %q", models.ErrorCode(err))
			}
		})
	}
}

func TestInvalidInputs(t *testing.T) {
	cases := []struct {
		name              string
		s, k, t, r, sigma float64
	}{
		{"negative spot", -1, 100, 1, 0.01, 0.2},
		{"zero spot", 0, 100, 1, 0.01, 0.2},
		{"negative strike", 100, -5, 1, 0.01, 0.2},
		{"negative vol", 100, 100, 1, 0.01, -0.2},
		{"negative expiry", 100, 100, -0.1, 0.01, 0.2},
		{"nan rate", 100, 100, 1, math.NaN(), 0.2},
		{"inf spot", math.Inf(1), 100, 1, 0.01, 0.2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PriceAndGreeks(tc.s, tc.k, tc.t, tc.r, tc.sigma)
			var ie *models.InvalidInputError
			if !errors.As(err, &ie) {
				t.Fatalf("expected InvalidInputError, got %v", err)
			}
		})
	}
}
