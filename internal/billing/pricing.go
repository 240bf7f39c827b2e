package billing

import (
	"math"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// Rate is the price of 1000 tokens of a model.
type Rate struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Pricing converts token usage into cost.
type Pricing struct {
	rates        map[string]Rate
	defaultModel string
}

// NewPricing returns a price table. defaultModel prices usage of models
// missing from rates and must itself be listed.
func NewPricing(defaultModel string, rates map[string]Rate) (*Pricing, error) {
	if _, ok := rates[defaultModel]; !ok {
		return nil, overseererrors.Wrapf(overseererrors.ErrInvalidArgument, "default model %q has no rate", defaultModel)
	}
	copied := make(map[string]Rate, len(rates))
	for model, rate := range rates {
		if rate.InputPer1K < 0 || rate.OutputPer1K < 0 {
			return nil, overseererrors.Wrapf(overseererrors.ErrInvalidArgument, "model %q has a negative rate", model)
		}
		copied[model] = rate
	}
	return &Pricing{rates: copied, defaultModel: defaultModel}, nil
}

// Rate returns the rate for model, falling back to the default model.
func (p *Pricing) Rate(model string) Rate {
	if r, ok := p.rates[model]; ok {
		return r
	}
	return p.rates[p.defaultModel]
}

// Cost prices a call. Negative token counts count as zero.
func (p *Pricing) Cost(model string, inputTokens, outputTokens int) float64 {
	r := p.Rate(model)
	in := math.Max(float64(inputTokens), 0)
	out := math.Max(float64(outputTokens), 0)
	return in/1000*r.InputPer1K + out/1000*r.OutputPer1K
}
