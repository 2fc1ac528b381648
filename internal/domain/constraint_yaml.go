package domain

import "gopkg.in/yaml.v3"

// constraintRaw mirrors Constraint's YAML shape but keeps lower/upper/step
// as raw nodes so UnmarshalYAML can tell an integer literal (tag !!int)
// apart from a float one (tag !!float) before they're both widened to
// float64.
type constraintRaw struct {
	Values []string  `yaml:"values,omitempty"`
	Lower  *yaml.Node `yaml:"lower,omitempty"`
	Upper  *yaml.Node `yaml:"upper,omitempty"`
	Step   *yaml.Node `yaml:"step,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler so Constraint can record
// whether each numeric bound was written as an integer literal.
func (c *Constraint) UnmarshalYAML(value *yaml.Node) error {
	var raw constraintRaw
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Values = raw.Values

	if raw.Lower != nil {
		var v float64
		if err := raw.Lower.Decode(&v); err != nil {
			return err
		}
		c.Lower = &v
		c.LowerIsInt = raw.Lower.Tag == "!!int"
	}
	if raw.Upper != nil {
		var v float64
		if err := raw.Upper.Decode(&v); err != nil {
			return err
		}
		c.Upper = &v
		c.UpperIsInt = raw.Upper.Tag == "!!int"
	}
	if raw.Step != nil {
		var v float64
		if err := raw.Step.Decode(&v); err != nil {
			return err
		}
		c.Step = &v
		c.StepIsInt = raw.Step.Tag == "!!int"
	}
	return nil
}
