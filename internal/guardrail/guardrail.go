// Package guardrail checks post-trial metrics against configured hard
// safety limits. Unlike objectives, which are optimized, guardrails are
// binary: a trial either stays within them or it doesn't.
package guardrail

import (
	"fmt"
	"log/slog"

	"github.com/godon-project/breeder-worker/internal/domain"
)

// Check evaluates every configured guardrail against metrics (keyed by
// guardrail name) and reports whether any were violated, plus a message
// per violation. A guardrail whose metric is missing is skipped with a
// warning rather than treated as a violation, so a reconnaissance gap
// doesn't itself trigger rollback.
//
// The violation direction is always "must not exceed": metric_value >
// hard_limit. There is no explicit direction field in the guardrail
// configuration to say otherwise; this hard-codes the assumption that
// fits the common safety metrics (CPU, errors, latency) the guardrail
// mechanism was built for.
func Check(logger *slog.Logger, guardrails []domain.Guardrail, metrics map[string]float64) (violated bool, violations []string) {
	if logger == nil {
		logger = slog.Default()
	}

	for _, g := range guardrails {
		value, ok := metrics[g.Name]
		if !ok {
			logger.Warn("guardrail metric not found, skipping check", slog.String("guardrail", g.Name))
			continue
		}

		if value > g.HardLimit {
			msg := fmt.Sprintf("guardrail %q violated: %v > %v", g.Name, value, g.HardLimit)
			violations = append(violations, msg)
			logger.Error(msg)
		} else {
			logger.Debug("guardrail OK", slog.String("guardrail", g.Name), slog.Float64("value", value), slog.Float64("limit", g.HardLimit))
		}
	}

	return len(violations) > 0, violations
}
