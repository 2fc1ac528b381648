// Package suggest turns a BreederConfig's settings block into a concrete
// parameter assignment for one trial, by driving a domain.AskHandle.
package suggest

import (
	"fmt"

	"github.com/godon-project/breeder-worker/internal/domain"
)

// Suggester requests one value per configured parameter from an AskHandle
// and flattens the result into a domain.ParamAssignment.
type Suggester struct{}

// New constructs a Suggester.
func New() *Suggester { return &Suggester{} }

// Suggest walks settings and asks handle for one value per parameter,
// flattening ethtool options to "{interface}_{option}" keys.
func (s *Suggester) Suggest(handle domain.AskHandle, settings domain.Settings) (domain.ParamAssignment, error) {
	out := domain.ParamAssignment{}

	for name, pc := range settings.Sysctl {
		v, err := suggestSingle(handle, name, pc)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	for name, pc := range settings.Sysfs {
		v, err := suggestSingle(handle, name, pc)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	for name, pc := range settings.CPUFreq {
		v, err := suggestSingle(handle, name, pc)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	for iface, opts := range settings.Ethtool {
		for opt, pc := range opts {
			key := fmt.Sprintf("%s_%s", iface, opt)
			v, err := suggestSingle(handle, key, pc)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
	}

	return out, nil
}

// suggestSingle asks handle for one parameter's value, using the first
// constraint's shape to decide categorical/int/float. Additional disjoint
// constraint ranges configured after the first are accepted at preflight
// but ignored here: the suggester only ever samples from the first one,
// on the assumption that broader ranges are pre-sharded across workers.
func suggestSingle(handle domain.AskHandle, name string, pc domain.ParamConfig) (domain.ParamValue, error) {
	if len(pc.Constraints) == 0 {
		return domain.ParamValue{}, fmt.Errorf("%w: %s has no constraints", domain.ErrInvalidArgument, name)
	}
	c := pc.Constraints[0]

	switch {
	case c.IsCategorical():
		v, err := handle.SuggestCategorical(name, c.Values)
		if err != nil {
			return domain.ParamValue{}, err
		}
		return domain.NewCategoricalValue(v), nil

	case c.IsNumericRange():
		if c.IsAllInteger() {
			v, err := handle.SuggestInt(name, int64(*c.Lower), int64(*c.Upper), int64(*c.Step))
			if err != nil {
				return domain.ParamValue{}, err
			}
			return domain.NewIntValue(v), nil
		}
		v, err := handle.SuggestFloat(name, *c.Lower, *c.Upper, *c.Step)
		if err != nil {
			return domain.ParamValue{}, err
		}
		return domain.NewFloatValue(v), nil

	default:
		return domain.ParamValue{}, fmt.Errorf("%w: %s constraint has neither values nor lower/upper/step", domain.ErrInvalidArgument, name)
	}
}
