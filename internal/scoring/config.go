package scoring

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed weights.yaml
var defaultWeights []byte

const (
	defaultWeightPrimary   = 1.0
	defaultWeightSecondary = 0.5
)

// StatementWeight credits the axes for one statement.
type StatementWeight struct {
	Statement       int      `yaml:"statement"`
	Primary         Axis     `yaml:"primary"`
	Secondary       Axis     `yaml:"secondary"`
	WeightPrimary   *float64 `yaml:"weightPrimary,omitempty"`
	WeightSecondary *float64 `yaml:"weightSecondary,omitempty"`
}

// Table is the weight table for one scoring pass.
type Table struct {
	Denominators map[Axis]float64  `yaml:"denominators"`
	Statements   []StatementWeight `yaml:"statements"`
}

// Config holds both weight tables.
type Config struct {
	Natural  Table `yaml:"natural"`
	Response Table `yaml:"response"`
}

// ParseConfig decodes a YAML weight configuration and validates it.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns the embedded weight configuration.
func DefaultConfig() (Config, error) {
	return ParseConfig(defaultWeights)
}

// Validate checks that both tables cover every statement exactly once.
func (c Config) Validate() error {
	if err := c.Natural.validate("natural"); err != nil {
		return err
	}
	return c.Response.validate("response")
}

func (t Table) validate(name string) error {
	for _, axis := range Axes {
		if t.Denominators[axis] <= 0 {
			return fmt.Errorf("%w: %s denominator for %s must be positive", ErrInvalidConfig, name, axis)
		}
	}
	if len(t.Statements) != StatementCount {
		return fmt.Errorf("%w: %s has %d statements, want %d", ErrInvalidConfig, name, len(t.Statements), StatementCount)
	}
	seen := make(map[int]bool, StatementCount)
	for _, sw := range t.Statements {
		if sw.Statement < 1 || sw.Statement > StatementCount {
			return fmt.Errorf("%w: %s statement %d out of range", ErrInvalidConfig, name, sw.Statement)
		}
		if seen[sw.Statement] {
			return fmt.Errorf("%w: %s statement %d listed twice", ErrInvalidConfig, name, sw.Statement)
		}
		seen[sw.Statement] = true
		if !validAxis(sw.Primary) || !validAxis(sw.Secondary) {
			return fmt.Errorf("%w: %s statement %d has unknown axis", ErrInvalidConfig, name, sw.Statement)
		}
	}
	return nil
}

func (sw StatementWeight) weights() (float64, float64) {
	wp, ws := defaultWeightPrimary, defaultWeightSecondary
	if sw.WeightPrimary != nil {
		wp = *sw.WeightPrimary
	}
	if sw.WeightSecondary != nil {
		ws = *sw.WeightSecondary
	}
	return wp, ws
}

func validAxis(a Axis) bool {
	switch a {
	case AxisD, AxisI, AxisS, AxisC:
		return true
	}
	return false
}
