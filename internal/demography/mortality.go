// Package demography runs the population dynamics: senescence, family
// formation, pregnancy, and birth, maintaining the eligibility index as a
// side effect.
package demography

import (
	"math"

	"github.com/talgya/gridworld/internal/config"
)

// MortalityCurve converts the bracketed annual death probabilities from
// config into per-day probabilities. The curve shape is a tunable
// parameter; the engine only requires that it is defined for every age.
type MortalityCurve struct {
	brackets    []config.MortalityBracket
	daysPerYear int
}

// NewMortalityCurve builds a curve from config brackets, which must be
// sorted by age (enforced by config validation).
func NewMortalityCurve(brackets []config.MortalityBracket, daysPerYear int) MortalityCurve {
	return MortalityCurve{brackets: brackets, daysPerYear: daysPerYear}
}

// Annual returns the annual death probability for an age in years.
func (m MortalityCurve) Annual(age int) float64 {
	rate := 0.002 // floor for ages below every bracket
	for _, b := range m.brackets {
		if age >= b.FromAge {
			rate = b.Annual
		} else {
			break
		}
	}
	return rate
}

// Daily converts the annual probability to a per-day probability:
// 1-(1-annual)^(1/daysPerYear). Day-by-day evaluation with this rate
// reproduces the annual statistics without compounding error.
func (m MortalityCurve) Daily(age int) float64 {
	annual := m.Annual(age)
	if annual >= 1 {
		return 1
	}
	return 1 - math.Pow(1-annual, 1/float64(m.daysPerYear))
}
