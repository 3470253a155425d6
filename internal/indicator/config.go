package indicator

import (
	"fmt"
	"strconv"
	"strings"

	"rde-engine/internal/model"
)

// ParseSpecs parses "RSI:14,DMA:10,EMA:9@daily" into specs. An optional
// "@input" suffix selects the series; RSI defaults to rsiInput and the
// moving averages to daily closes.
func ParseSpecs(s string, rsiInput model.Input) ([]Spec, error) {
	var specs []Spec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		body, input, hasInput := strings.Cut(part, "@")
		typ, per, ok := strings.Cut(body, ":")
		if !ok {
			return nil, fmt.Errorf("indicator spec %q: want TYPE:PERIOD", part)
		}
		period, err := strconv.Atoi(strings.TrimSpace(per))
		if err != nil {
			return nil, fmt.Errorf("indicator spec %q: %w", part, err)
		}
		spec := Spec{Type: strings.ToUpper(strings.TrimSpace(typ)), Period: period, Input: model.InputDaily}
		if spec.Type == "RSI" {
			spec.Input = rsiInput
		}
		if hasInput {
			spec.Input = model.Input(strings.ToLower(strings.TrimSpace(input)))
		}
		specs = append(specs, spec)
	}
	if err := ValidateSpecs(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// ValidateSpecs checks types, periods and inputs, and rejects duplicates.
func ValidateSpecs(specs []Spec) error {
	if len(specs) == 0 {
		return fmt.Errorf("no indicators configured")
	}
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if _, ok := New(s.Type, 1); !ok {
			return fmt.Errorf("unknown indicator type %q", s.Type)
		}
		if s.Period <= 0 {
			return fmt.Errorf("invalid period=%d for %s", s.Period, s.Type)
		}
		switch s.Input {
		case model.InputDaily, model.InputIntraday:
		default:
			return fmt.Errorf("invalid input %q for %s_%d", s.Input, s.Type, s.Period)
		}
		if seen[s.Key()] {
			return fmt.Errorf("duplicate indicator %s", s.Key())
		}
		seen[s.Key()] = true
	}
	return nil
}
