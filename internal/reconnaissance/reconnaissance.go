// Package reconnaissance orchestrates post-trial metric measurement:
// stabilization wait, repeated sampling at an interval, and aggregation.
// The actual sample source is a domain.ReconnaissanceService implementation
// (see internal/adapter/reconnaissance/prometheus).
package reconnaissance

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/godon-project/breeder-worker/internal/domain"
)

// Sampler measures one metric using a registered backend keyed by service
// name.
type Sampler struct {
	logger   *slog.Logger
	backends map[string]domain.ReconnaissanceService
	sleep    func(time.Duration)
}

// New constructs a Sampler. backends maps a reconnaissance.service name
// (e.g. "prometheus") to its implementation.
func New(logger *slog.Logger, backends map[string]domain.ReconnaissanceService) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{logger: logger, backends: backends, sleep: time.Sleep}
}

// Measure waits for stabilization, then samples spec.Samples times
// (waiting spec.Interval between samples, never after the last one),
// aggregating per spec.Aggregation. An unsupported service, or a total
// sampling failure, degrades to +Inf rather than erroring the trial.
func (s *Sampler) Measure(ctx context.Context, target domain.Target, spec domain.ReconnaissanceSpec) float64 {
	backend, ok := s.backends[spec.Service]
	if !ok {
		s.logger.Error("unsupported reconnaissance service", slog.String("service", spec.Service))
		return math.Inf(1)
	}

	if spec.StabilizationSeconds > 0 {
		s.logger.Info("waiting for stabilization", slog.Duration("duration", spec.StabilizationSeconds))
		s.sleep(spec.StabilizationSeconds)
	}

	samples := spec.Samples
	if samples < 1 {
		samples = 1
	}

	values := make([]float64, 0, samples)
	for i := 0; i < samples; i++ {
		v, err := backend.Measure(ctx, target, spec)
		if err != nil {
			s.logger.Warn("reconnaissance sample failed", slog.Int("sample", i+1), slog.Any("error", err))
		} else {
			values = append(values, v)
		}

		if i < samples-1 && spec.Interval > 0 {
			s.sleep(spec.Interval)
		}
	}

	result := Aggregate(values, spec.Aggregation)
	if math.IsInf(result, 1) {
		s.logger.Warn("all reconnaissance samples invalid", slog.Int("samples", samples))
	}
	return result
}

// Aggregate reduces valid (finite, non-NaN) samples per method, returning
// +Inf when none are valid. Unknown methods default to median.
func Aggregate(samples []float64, method domain.Aggregation) float64 {
	valid := make([]float64, 0, len(samples))
	for _, v := range samples {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return math.Inf(1)
	}

	switch method {
	case domain.AggregationMean:
		return mean(valid)
	case domain.AggregationMin:
		return minOf(valid)
	case domain.AggregationMax:
		return maxOf(valid)
	default: // AggregationMedian and anything unrecognized.
		return median(valid)
	}
}

func mean(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func median(v []float64) float64 {
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}
