// Package cooperation implements inter-worker trial sharing: deciding
// whether a completed trial is interesting enough to push into peer
// studies, and performing the push.
package cooperation

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"

	"github.com/godon-project/breeder-worker/internal/domain"
)

// Strategy implements domain.CooperationStrategy.
type Strategy struct {
	logger *slog.Logger
	rand   *rand.Rand
}

// New constructs a Strategy. rng may be nil, in which case a source seeded
// with 1 is used; tests supply their own seeded one for determinism.
func New(logger *slog.Logger, rng *rand.Rand) *Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Strategy{logger: logger, rand: rng}
}

// ShouldShare decides, per cfg.ShareStrategy, whether trial should be
// shared into peer studies.
func (s *Strategy) ShouldShare(cfg domain.Cooperation, trial domain.Trial, completed []domain.Trial) bool {
	if cfg.ShareStrategy == domain.ShareProbabilistic {
		return s.rand.Float64() < cfg.Probability
	}

	if len(completed) < cfg.MinTrialsForFiltering {
		s.logger.Debug("insufficient trials for quality filtering, sharing all",
			slog.Int("completed", len(completed)), slog.Int("min_required", cfg.MinTrialsForFiltering))
		return true
	}

	trialValue := math.Inf(1)
	if len(trial.Values) > 0 {
		trialValue = trial.Values[0]
	}

	var allValues []float64
	for _, t := range completed {
		if len(t.Values) > 0 {
			allValues = append(allValues, t.Values[0])
		}
	}

	percentile := percentileOfScore(allValues, trialValue)

	switch cfg.ShareStrategy {
	case domain.ShareBest:
		return percentile >= (100 - cfg.TopPercentile*100)
	case domain.ShareWorst:
		return percentile <= cfg.BottomPercentile*100
	case domain.ShareExtremes:
		topThreshold := 100 - cfg.TopPercentile*100
		bottomThreshold := cfg.BottomPercentile * 100
		return percentile >= topThreshold || percentile <= bottomThreshold
	default:
		s.logger.Warn("unknown cooperation share strategy, defaulting to share", slog.String("strategy", string(cfg.ShareStrategy)))
		return true
	}
}

// Share pushes trial into every study known to registry except the
// originating one. When shareWithinBreeder is false, peers whose name
// shares the originating study's prefix (the text before the first
// underscore) are skipped as belonging to the "same breeder" set. That
// prefix comparison is a best-effort heuristic carried over unchanged: a
// breeder UUID containing an underscore shortens the prefix, so studies of
// other breeders whose names start with the same text are skipped too, but
// this is how the upstream cooperation filter has always computed it.
// shareWithinBreeder is true
// whenever run.parallel > 1, since that is exactly when sibling sampler
// studies of this breeder exist to share into.
func (s *Strategy) Share(ctx domain.Context, registry domain.StudyRegistry, selfStudyName string, trial domain.Trial, shareWithinBreeder bool) error {
	names, err := registry.AllStudyNames(ctx)
	if err != nil {
		return fmt.Errorf("cooperation share: list studies: %w", err)
	}

	breederPrefix := breederPrefixOf(selfStudyName)

	frozen := domain.FrozenTrial{Params: trial.Params, Values: trial.Values, State: trial.State}

	for _, name := range names {
		if name == selfStudyName {
			continue
		}
		if !shareWithinBreeder && strings.HasPrefix(name, breederPrefix) {
			continue
		}

		peer, err := registry.OpenStudy(ctx, name)
		if err != nil {
			s.logger.Warn("failed to open peer study for sharing", slog.String("study", name), slog.Any("error", err))
			continue
		}
		if err := peer.AddTrial(ctx, frozen); err != nil {
			s.logger.Warn("failed to share trial with peer study", slog.String("study", name), slog.Any("error", err))
			continue
		}
		s.logger.Info("shared trial with peer study", slog.Int("trial", trial.Number), slog.String("study", name))
	}
	return nil
}

func breederPrefixOf(studyName string) string {
	parts := strings.SplitN(studyName, "_", 2)
	return parts[0]
}

// percentileOfScore replicates scipy.stats.percentileofscore's default
// "rank" kind: the mean of the strict-less-than and less-or-equal counts,
// with an extra half-rank added when score exactly matches one of the
// values (right > left), matching scipy's tie-breaking.
func percentileOfScore(values []float64, score float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var left, right int
	for _, v := range values {
		if v < score {
			left++
		}
		if v <= score {
			right++
		}
	}
	n := float64(len(values))
	extra := 0.0
	if right > left {
		extra = 1.0
	}
	return (float64(left) + float64(right) + extra) * 50.0 / n
}
