// Package preflight validates a BreederConfig before any worker starts,
// so a misconfigured run fails fast in the controller rather than mid-job.
package preflight

import (
	"fmt"
	"strings"
	"sync"

	validatorpkg "github.com/go-playground/validator/v10"

	"github.com/godon-project/breeder-worker/internal/domain"
	"github.com/godon-project/breeder-worker/internal/registry"
)

var (
	vldOnce sync.Once
	vld     *validatorpkg.Validate
)

func getValidator() *validatorpkg.Validate {
	vldOnce.Do(func() { vld = validatorpkg.New() })
	return vld
}

// Result is the outcome of a Run call: either success (with optional
// warnings about unknown-but-tolerated entries) or a failure carrying every
// error found. Errors are always aggregated; validation never stops at the
// first one.
type Result struct {
	Success  bool
	Errors   []string
	Warnings []string
}

// Error joins every collected error into one message, suitable for
// returning as a single wrapped error.
func (r Result) Error() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return "preflight validation failed:\n" + strings.Join(prefixed(r.Errors), "\n")
}

func prefixed(errs []string) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = "  - " + e
	}
	return out
}

// Run validates cfg. strict selects whether unknown (non-registry)
// parameters are hard failures (true) or warnings (false); the effective
// mode is resolved through cfg.Meta.StrictValidation first, so a config can
// force one mode regardless of the caller's default.
func Run(cfg domain.BreederConfig, strict bool) Result {
	strict = cfg.StrictValidation(strict)

	var errs []string
	var warnings []string

	if err := getValidator().Struct(cfg); err != nil {
		if ve, ok := err.(validatorpkg.ValidationErrors); ok {
			for _, fe := range ve {
				errs = append(errs, fmt.Sprintf("%s: %s", strings.ToLower(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	settingsErrs, settingsWarnings := validateSettings(cfg.Settings, strict)
	errs = append(errs, settingsErrs...)
	warnings = append(warnings, settingsWarnings...)

	errs = append(errs, validateGuardrails(cfg.Guardrails)...)
	errs = append(errs, validateObjectives(cfg.Objectives)...)
	errs = append(errs, validateEffectuation(cfg.Effectuation)...)
	errs = append(errs, validateRollbackStrategies(cfg)...)

	if len(errs) > 0 {
		return Result{Success: false, Errors: errs, Warnings: warnings}
	}
	return Result{Success: true, Warnings: warnings}
}

func validateSettings(s domain.Settings, strict bool) (errs, warnings []string) {
	for name, pc := range s.Sysctl {
		e, w := validateFlatParam(domain.CategorySysctl, name, pc, strict)
		errs = append(errs, e...)
		warnings = append(warnings, w...)
	}
	for name, pc := range s.Sysfs {
		e, w := validateFlatParam(domain.CategorySysfs, name, pc, strict)
		errs = append(errs, e...)
		warnings = append(warnings, w...)
	}
	for name, pc := range s.CPUFreq {
		e, w := validateFlatParam(domain.CategoryCPUFreq, name, pc, strict)
		errs = append(errs, e...)
		warnings = append(warnings, w...)
	}
	for ifaceName, opts := range s.Ethtool {
		for optName, pc := range opts {
			e, w := validateEthtoolParam(ifaceName, optName, pc, strict)
			errs = append(errs, e...)
			warnings = append(warnings, w...)
		}
	}
	return errs, warnings
}

func validateFlatParam(category domain.ParamCategory, name string, pc domain.ParamConfig, strict bool) (errs, warnings []string) {
	entry, known := registry.Lookup(name)
	if !known {
		msg := fmt.Sprintf(
			"settings.%s.%s: unsupported parameter. Supported %s parameters: %s",
			category, name, category, strings.Join(registry.ListByCategory(category), ", "),
		)
		if strict {
			errs = append(errs, msg)
		} else {
			warnings = append(warnings, msg)
		}
		return errs, warnings
	}

	if len(pc.Constraints) == 0 {
		errs = append(errs, fmt.Sprintf("settings.%s.%s: missing constraints", category, name))
		return errs, warnings
	}

	if err := checkConstraintShape(entry.Kind, pc.Constraints[0]); err != "" {
		errs = append(errs, fmt.Sprintf("settings.%s.%s: %s", category, name, err))
	}
	return errs, warnings
}

func validateEthtoolParam(ifaceName, optName string, pc domain.ParamConfig, strict bool) (errs, warnings []string) {
	entry, known := registry.LookupEthtool(optName)
	if !known {
		msg := fmt.Sprintf(
			"settings.ethtool.%s.%s: unsupported ethtool parameter. Supported: %s",
			ifaceName, optName, strings.Join(registry.EthtoolOptionNames(), ", "),
		)
		if strict {
			errs = append(errs, msg)
		} else {
			warnings = append(warnings, msg)
		}
		return errs, warnings
	}

	if len(pc.Constraints) == 0 {
		errs = append(errs, fmt.Sprintf("settings.ethtool.%s.%s: missing constraints", ifaceName, optName))
		return errs, warnings
	}

	if err := checkConstraintShape(entry.Kind, pc.Constraints[0]); err != "" {
		errs = append(errs, fmt.Sprintf("settings.ethtool.%s.%s: %s", ifaceName, optName, err))
	}
	return errs, warnings
}

// checkConstraintShape checks only the first constraint in the list against
// the registry's declared kind; whether every element must share that shape
// is left unenforced, matching the upstream validator's behavior.
func checkConstraintShape(kind domain.ParamKind, first domain.Constraint) string {
	switch kind {
	case domain.KindCategorical:
		if !first.IsCategorical() {
			return "parameter is categorical but constraints don't have 'values'"
		}
	case domain.KindInt, domain.KindFloat:
		if !first.IsNumericRange() {
			return "parameter is numeric but constraints don't have step/lower/upper"
		}
	}
	return ""
}

func validateGuardrails(guardrails []domain.Guardrail) (errs []string) {
	for i, g := range guardrails {
		if g.Name == "" {
			errs = append(errs, fmt.Sprintf("guardrails[%d]: name is required", i))
		}
		if g.Reconnaissance.Service == "" {
			errs = append(errs, fmt.Sprintf("guardrails[%d].reconnaissance: service is required", i))
		}
	}
	return errs
}

func validateObjectives(objectives []domain.Objective) (errs []string) {
	if len(objectives) == 0 {
		errs = append(errs, "objectives: at least one objective is required")
	}
	for i, o := range objectives {
		if o.Direction != domain.DirectionMinimize && o.Direction != domain.DirectionMaximize {
			errs = append(errs, fmt.Sprintf("objectives[%d].direction: must be minimize or maximize", i))
		}
	}
	return errs
}

func validateEffectuation(eff domain.Effectuation) (errs []string) {
	for i, t := range eff.Targets {
		if t.Address == "" {
			errs = append(errs, fmt.Sprintf("effectuation.targets[%d].address: required", i))
		}
		if t.SSHKey != "" {
			if err := validateSSHKeyMaterial(t.SSHKey); err != "" {
				errs = append(errs, fmt.Sprintf("effectuation.targets[%d].ssh_key: %s", i, err))
			}
		}
		if t.Rollback.Enabled && t.Rollback.Strategy == "" {
			errs = append(errs, fmt.Sprintf("effectuation.targets[%d].rollback: enabled but no strategy named", i))
		}
	}
	return errs
}

func validateRollbackStrategies(cfg domain.BreederConfig) (errs []string) {
	for i, t := range cfg.Effectuation.Targets {
		if !t.Rollback.Enabled || t.Rollback.Strategy == "" {
			continue
		}
		strat, ok := cfg.RollbackStrategies[t.Rollback.Strategy]
		if !ok {
			errs = append(errs, fmt.Sprintf("effectuation.targets[%d].rollback.strategy: %q not found in rollback_strategies", i, t.Rollback.Strategy))
			continue
		}
		switch strat.TargetState {
		case domain.TargetStatePrevious, domain.TargetStateBest, domain.TargetStateBaseline:
		default:
			errs = append(errs, fmt.Sprintf("rollback_strategies.%s.target_state: invalid value %q", t.Rollback.Strategy, strat.TargetState))
		}
		switch strat.OnFailure {
		case domain.OnFailureStop, domain.OnFailureContinue, domain.OnFailureSkipTarget:
		default:
			errs = append(errs, fmt.Sprintf("rollback_strategies.%s.on_failure: invalid value %q", t.Rollback.Strategy, strat.OnFailure))
		}
	}
	return errs
}
