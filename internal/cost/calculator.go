// Package cost prices refinement-model token usage for budget accounting.
package cost

// Rates holds per-model pricing in USD per 1K tokens.
type Rates struct {
	Models       map[string]float64 `yaml:"models" mapstructure:"models"`
	DefaultPer1K float64            `yaml:"default_per_1k" mapstructure:"default_per_1k"`
}

// Calculator computes costs for refinement API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the USD cost of a token count against the named model,
// falling back to the default rate for unknown models.
func (c *Calculator) Tokens(model string, tokens int) float64 {
	per1k, ok := c.rates.Models[model]
	if !ok {
		per1k = c.rates.DefaultPer1K
	}
	return (float64(tokens) / 1000) * per1k
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]float64{
			"claude-haiku-4-5-20251001":  0.008,
			"claude-sonnet-4-5-20250929": 0.018,
			"gpt-4":                      0.03,
			"gpt-3.5-turbo":              0.001,
		},
		DefaultPer1K: 0.01,
	}
}
