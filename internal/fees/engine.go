package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gokselkaptan/takas-app-sub004/pkg/config"
)

// Component is one bracket's contribution to the total fee.
type Component struct {
	Ceiling *decimal.Decimal `json:"ceiling,omitempty"`
	Rate    decimal.Decimal  `json:"rate"`
	Slice   decimal.Decimal  `json:"slice"`
	Fee     decimal.Decimal  `json:"fee"`
}

// Breakdown is the result of running a swap value through the brackets.
// Components list each bracket's slice and fee for audit display.
type Breakdown struct {
	Gross      decimal.Decimal `json:"gross"`
	Fee        decimal.Decimal `json:"fee"`
	Net        decimal.Decimal `json:"net"`
	Components []Component     `json:"components"`
}

// Engine computes the progressive commission. Each bracket taxes only the
// slice of value that falls inside it, so the marginal rate never produces
// a higher fee for a lower gross.
type Engine struct {
	brackets config.FeeBracketList
}

// NewEngine validates the bracket table and builds an engine.
func NewEngine(brackets config.FeeBracketList) (*Engine, error) {
	if len(brackets) == 0 {
		return nil, fmt.Errorf("at least one fee bracket required")
	}
	prev := decimal.Zero
	for i, b := range brackets {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("bracket %d: rate %s out of range", i, b.Rate)
		}
		if b.Ceiling == nil {
			if i != len(brackets)-1 {
				return nil, fmt.Errorf("bracket %d: only the last bracket may be unbounded", i)
			}
			continue
		}
		if !b.Ceiling.GreaterThan(prev) {
			return nil, fmt.Errorf("bracket %d: ceiling %s must exceed %s", i, b.Ceiling, prev)
		}
		prev = *b.Ceiling
	}
	if brackets[len(brackets)-1].Ceiling != nil {
		return nil, fmt.Errorf("last bracket must be unbounded")
	}
	return &Engine{brackets: brackets}, nil
}

// Calculate returns the fee breakdown for a gross swap value. Each
// component fee is rounded to two decimal places before summing so the
// total always equals the sum of the displayed components.
func (e *Engine) Calculate(gross decimal.Decimal) (Breakdown, error) {
	if gross.IsNegative() {
		return Breakdown{}, fmt.Errorf("gross value %s must not be negative", gross)
	}

	fee := decimal.Zero
	floor := decimal.Zero
	remaining := gross
	components := make([]Component, 0, len(e.brackets))
	for _, b := range e.brackets {
		if remaining.IsZero() {
			break
		}
		slice := remaining
		if b.Ceiling != nil {
			width := b.Ceiling.Sub(floor)
			if slice.GreaterThan(width) {
				slice = width
			}
			floor = *b.Ceiling
		}
		part := slice.Mul(b.Rate).Round(2)
		components = append(components, Component{
			Ceiling: b.Ceiling,
			Rate:    b.Rate,
			Slice:   slice,
			Fee:     part,
		})
		fee = fee.Add(part)
		remaining = remaining.Sub(slice)
	}

	return Breakdown{
		Gross:      gross,
		Fee:        fee,
		Net:        gross.Sub(fee),
		Components: components,
	}, nil
}

// MarginalRate returns the rate applied to the top slice of the given value.
func (e *Engine) MarginalRate(gross decimal.Decimal) decimal.Decimal {
	for _, b := range e.brackets {
		if b.Ceiling == nil || gross.LessThanOrEqual(*b.Ceiling) {
			return b.Rate
		}
	}
	return e.brackets[len(e.brackets)-1].Rate
}
