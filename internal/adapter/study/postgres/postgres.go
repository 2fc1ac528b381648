// Package postgres provides the PostgreSQL-backed Study Store: studies,
// trials, trial objective values, trial parameter assignments, and
// study-scoped user attributes used for cross-worker coordination state
// (e.g. rollback records).
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/godon-project/breeder-worker/internal/domain"
	"github.com/godon-project/breeder-worker/internal/sampler"
)

// PgxPool is a minimal subset of pgxpool used by the store for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// NewPool creates a pgx connection pool from the provided DSN, configured
// the same way the Study Store needs it: small pool, OpenTelemetry tracing.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.NewPool: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName())

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.NewPool: %w", err)
	}
	if err := otelpgx.RecordStats(pool); err != nil {
		slog.Warn("failed to record pgx stats", slog.Any("error", err))
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS studies (
	name TEXT PRIMARY KEY,
	directions TEXT[] NOT NULL,
	sampler_kind TEXT NOT NULL,
	sampler_crossover TEXT NOT NULL DEFAULT '',
	sampler_population INT NOT NULL DEFAULT 0,
	sampler_seed BIGINT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trials (
	id BIGSERIAL PRIMARY KEY,
	study_name TEXT NOT NULL REFERENCES studies(name),
	number INT NOT NULL,
	state TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	UNIQUE (study_name, number)
);

CREATE TABLE IF NOT EXISTS trial_values (
	trial_id BIGINT NOT NULL REFERENCES trials(id) ON DELETE CASCADE,
	objective_index INT NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (trial_id, objective_index)
);

CREATE TABLE IF NOT EXISTS trial_params (
	trial_id BIGINT NOT NULL REFERENCES trials(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	int_value BIGINT,
	float_value DOUBLE PRECISION,
	str_value TEXT,
	list_value JSONB,
	PRIMARY KEY (trial_id, name)
);

CREATE TABLE IF NOT EXISTS study_user_attrs (
	study_name TEXT NOT NULL REFERENCES studies(name),
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	version BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (study_name, key)
);
`

// EnsureSchema idempotently creates the tables the store needs.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("op=postgres.EnsureSchema: %w", err)
	}
	return nil
}

var tracer = otel.Tracer("repo.study")

// Registry implements domain.StudyRegistry over the shared pool.
type Registry struct {
	Pool PgxPool
}

// NewRegistry constructs a Registry.
func NewRegistry(pool PgxPool) *Registry { return &Registry{Pool: pool} }

// AllStudyNames implements domain.StudyRegistry.
func (r *Registry) AllStudyNames(ctx domain.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "study.AllStudyNames")
	defer span.End()

	rows, err := r.Pool.Query(ctx, `SELECT name FROM studies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("op=study.all_names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("op=study.all_names_scan: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// OpenStudy implements domain.StudyRegistry.
func (r *Registry) OpenStudy(ctx domain.Context, name string) (domain.Study, error) {
	ctx, span := tracer.Start(ctx, "study.OpenStudy")
	defer span.End()
	span.SetAttributes(attribute.String("study.name", name))

	row := r.Pool.QueryRow(ctx, `SELECT directions, sampler_kind, sampler_crossover, sampler_population, sampler_seed FROM studies WHERE name=$1`, name)
	var directions []string
	var kind, crossover string
	var population int
	var seed *int64
	if err := row.Scan(&directions, &kind, &crossover, &population, &seed); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("op=study.open: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=study.open: %w", err)
	}

	return &Study{
		pool:       r.Pool,
		name:       name,
		directions: toDirections(directions),
		samplerCfg: domain.SamplerConfig{
			Kind:           domain.SamplerKind(kind),
			Crossover:      domain.CrossoverKind(crossover),
			PopulationSize: population,
			Seed:           seed,
		},
	}, nil
}

// CreateStudy creates a new study row (or returns the existing one
// unmodified, per the spec's "never silently switch a running study's
// sampler" rule) and returns a ready-to-use domain.Study.
func (r *Registry) CreateStudy(ctx domain.Context, name string, directions []domain.Direction, samplerCfg domain.SamplerConfig) (domain.Study, error) {
	ctx, span := tracer.Start(ctx, "study.CreateStudy")
	defer span.End()
	span.SetAttributes(attribute.String("study.name", name))

	if existing, err := r.OpenStudy(ctx, name); err == nil {
		return existing, nil
	}

	dirs := fromDirections(directions)
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO studies (name, directions, sampler_kind, sampler_crossover, sampler_population, sampler_seed)
		 VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (name) DO NOTHING`,
		name, dirs, string(samplerCfg.Kind), string(samplerCfg.Crossover), samplerCfg.PopulationSize, samplerCfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("op=study.create: %w", err)
	}

	return &Study{pool: r.Pool, name: name, directions: directions, samplerCfg: samplerCfg}, nil
}

func toDirections(raw []string) []domain.Direction {
	out := make([]domain.Direction, len(raw))
	for i, v := range raw {
		out[i] = domain.Direction(v)
	}
	return out
}

func fromDirections(in []domain.Direction) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

// Study implements domain.Study against the pool.
type Study struct {
	pool       PgxPool
	name       string
	directions []domain.Direction
	samplerCfg domain.SamplerConfig
}

// Name implements domain.Study.
func (s *Study) Name() string { return s.name }

// Directions implements domain.Study.
func (s *Study) Directions() []domain.Direction { return s.directions }

// Ask implements domain.Study: allocates the next trial number, snapshots
// history for the sampler, and returns a handle bound to both.
func (s *Study) Ask(ctx domain.Context) (domain.AskHandle, error) {
	ctx, span := tracer.Start(ctx, "study.Ask")
	defer span.End()

	history, err := s.Trials(ctx)
	if err != nil {
		return nil, fmt.Errorf("op=study.ask.history: %w", err)
	}

	var number int
	row := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(number), -1) + 1 FROM trials WHERE study_name=$1`, s.name)
	if err := row.Scan(&number); err != nil {
		return nil, fmt.Errorf("op=study.ask.number: %w", err)
	}

	var trialID int64
	row = s.pool.QueryRow(ctx,
		`INSERT INTO trials (study_name, number, state) VALUES ($1,$2,$3) RETURNING id`,
		s.name, number, domain.TrialStateRunning.String())
	if err := row.Scan(&trialID); err != nil {
		return nil, fmt.Errorf("op=study.ask.insert: %w", err)
	}

	return &handle{
		pool:    s.pool,
		trialID: trialID,
		number:  number,
		impl:    sampler.New(s.samplerCfg),
		history: history,
		dirs:    s.directions,
	}, nil
}

// Tell implements domain.Study.
func (s *Study) Tell(ctx domain.Context, trialNumber int, values []float64, state domain.TrialState) error {
	ctx, span := tracer.Start(ctx, "study.Tell")
	defer span.End()

	var trialID int64
	row := s.pool.QueryRow(ctx, `SELECT id FROM trials WHERE study_name=$1 AND number=$2`, s.name, trialNumber)
	if err := row.Scan(&trialID); err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("op=study.tell: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("op=study.tell.lookup: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("op=study.tell.begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rerr := tx.Rollback(ctx); rerr != nil {
				slog.Error("rollback tell transaction failed", slog.Any("error", rerr))
			}
		}
	}()

	if _, err := tx.Exec(ctx, `UPDATE trials SET state=$2, completed_at=now() WHERE id=$1`, trialID, state.String()); err != nil {
		return fmt.Errorf("op=study.tell.update: %w", err)
	}
	for i, v := range values {
		if _, err := tx.Exec(ctx,
			`INSERT INTO trial_values (trial_id, objective_index, value) VALUES ($1,$2,$3)
			 ON CONFLICT (trial_id, objective_index) DO UPDATE SET value=EXCLUDED.value`,
			trialID, i, v); err != nil {
			return fmt.Errorf("op=study.tell.value: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=study.tell.commit: %w", err)
	}
	committed = true
	return nil
}

// AddTrial implements domain.Study: inserts a fully-formed trial (used by
// cooperation sharing) without going through Ask/Tell.
func (s *Study) AddTrial(ctx domain.Context, trial domain.FrozenTrial) error {
	ctx, span := tracer.Start(ctx, "study.AddTrial")
	defer span.End()

	var number int
	row := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(number), -1) + 1 FROM trials WHERE study_name=$1`, s.name)
	if err := row.Scan(&number); err != nil {
		return fmt.Errorf("op=study.add_trial.number: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("op=study.add_trial.begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rerr := tx.Rollback(ctx); rerr != nil {
				slog.Error("rollback add_trial transaction failed", slog.Any("error", rerr))
			}
		}
	}()

	var trialID int64
	completedAt := interface{}(nil)
	if trial.State == domain.TrialStateComplete {
		completedAt = time.Now().UTC()
	}
	row = tx.QueryRow(ctx,
		`INSERT INTO trials (study_name, number, state, completed_at) VALUES ($1,$2,$3,$4) RETURNING id`,
		s.name, number, trial.State.String(), completedAt)
	if err := row.Scan(&trialID); err != nil {
		return fmt.Errorf("op=study.add_trial.insert: %w", err)
	}

	for i, v := range trial.Values {
		if _, err := tx.Exec(ctx, `INSERT INTO trial_values (trial_id, objective_index, value) VALUES ($1,$2,$3)`, trialID, i, v); err != nil {
			return fmt.Errorf("op=study.add_trial.value: %w", err)
		}
	}
	for name, pv := range trial.Params {
		if err := insertParam(ctx, tx, trialID, name, pv); err != nil {
			return fmt.Errorf("op=study.add_trial.param: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=study.add_trial.commit: %w", err)
	}
	committed = true
	return nil
}

func insertParam(ctx context.Context, tx pgx.Tx, trialID int64, name string, pv domain.ParamValue) error {
	var listJSON []byte
	if pv.Kind == domain.KindList {
		b, err := json.Marshal(pv.List)
		if err != nil {
			return err
		}
		listJSON = b
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO trial_params (trial_id, name, kind, int_value, float_value, str_value, list_value)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (trial_id, name) DO UPDATE SET
		   kind=EXCLUDED.kind, int_value=EXCLUDED.int_value, float_value=EXCLUDED.float_value,
		   str_value=EXCLUDED.str_value, list_value=EXCLUDED.list_value`,
		trialID, name, kindName(pv.Kind), nullableInt(pv), nullableFloat(pv), nullableStr(pv), listJSON)
	return err
}

func kindName(k domain.ParamKind) string {
	switch k {
	case domain.KindInt:
		return "int"
	case domain.KindFloat:
		return "float"
	case domain.KindCategorical:
		return "categorical"
	case domain.KindList:
		return "list"
	default:
		return "unknown"
	}
}

func nullableInt(pv domain.ParamValue) interface{} {
	if pv.Kind == domain.KindInt {
		return pv.Int
	}
	return nil
}

func nullableFloat(pv domain.ParamValue) interface{} {
	if pv.Kind == domain.KindFloat {
		return pv.Float
	}
	return nil
}

func nullableStr(pv domain.ParamValue) interface{} {
	if pv.Kind == domain.KindCategorical {
		return pv.Str
	}
	return nil
}

// Trials implements domain.Study.
func (s *Study) Trials(ctx domain.Context) ([]domain.Trial, error) {
	ctx, span := tracer.Start(ctx, "study.Trials")
	defer span.End()
	return s.loadTrials(ctx)
}

func (s *Study) loadTrials(ctx domain.Context) ([]domain.Trial, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, number, state, created_at, completed_at FROM trials WHERE study_name=$1 ORDER BY number`, s.name)
	if err != nil {
		return nil, fmt.Errorf("op=study.load_trials: %w", err)
	}
	defer rows.Close()

	var trials []domain.Trial
	ids := map[int64]int{}
	for rows.Next() {
		var id int64
		var number int
		var stateStr string
		var createdAt time.Time
		var completedAt *time.Time
		if err := rows.Scan(&id, &number, &stateStr, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("op=study.load_trials_scan: %w", err)
		}
		t := domain.Trial{Number: number, State: parseTrialState(stateStr), CreatedAt: createdAt}
		if completedAt != nil {
			t.CompletedAt = *completedAt
		}
		ids[id] = len(trials)
		trials = append(trials, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=study.load_trials_rows: %w", err)
	}

	if err := s.loadValues(ctx, ids, trials); err != nil {
		return nil, err
	}
	if err := s.loadParams(ctx, ids, trials); err != nil {
		return nil, err
	}
	return trials, nil
}

func (s *Study) loadValues(ctx context.Context, ids map[int64]int, trials []domain.Trial) error {
	rows, err := s.pool.Query(ctx,
		`SELECT trial_id, objective_index, value FROM trial_values WHERE trial_id = ANY($1) ORDER BY objective_index`,
		idList(ids))
	if err != nil {
		return fmt.Errorf("op=study.load_values: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var trialID int64
		var idx int
		var value float64
		if err := rows.Scan(&trialID, &idx, &value); err != nil {
			return fmt.Errorf("op=study.load_values_scan: %w", err)
		}
		i := ids[trialID]
		for len(trials[i].Values) <= idx {
			trials[i].Values = append(trials[i].Values, 0)
		}
		trials[i].Values[idx] = value
	}
	return rows.Err()
}

func (s *Study) loadParams(ctx context.Context, ids map[int64]int, trials []domain.Trial) error {
	rows, err := s.pool.Query(ctx,
		`SELECT trial_id, name, kind, int_value, float_value, str_value, list_value FROM trial_params WHERE trial_id = ANY($1)`,
		idList(ids))
	if err != nil {
		return fmt.Errorf("op=study.load_params: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var trialID int64
		var name, kind string
		var intVal *int64
		var floatVal *float64
		var strVal *string
		var listJSON []byte
		if err := rows.Scan(&trialID, &name, &kind, &intVal, &floatVal, &strVal, &listJSON); err != nil {
			return fmt.Errorf("op=study.load_params_scan: %w", err)
		}
		i := ids[trialID]
		if trials[i].Params == nil {
			trials[i].Params = domain.ParamAssignment{}
		}
		trials[i].Params[name] = paramFromRow(kind, intVal, floatVal, strVal, listJSON)
	}
	return rows.Err()
}

func paramFromRow(kind string, intVal *int64, floatVal *float64, strVal *string, listJSON []byte) domain.ParamValue {
	switch kind {
	case "int":
		if intVal != nil {
			return domain.NewIntValue(*intVal)
		}
	case "float":
		if floatVal != nil {
			return domain.NewFloatValue(*floatVal)
		}
	case "categorical":
		if strVal != nil {
			return domain.NewCategoricalValue(*strVal)
		}
	case "list":
		var list []int64
		_ = json.Unmarshal(listJSON, &list)
		return domain.NewListValue(list)
	}
	return domain.ParamValue{}
}

func idList(ids map[int64]int) []int64 {
	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

func parseTrialState(s string) domain.TrialState {
	switch s {
	case "complete":
		return domain.TrialStateComplete
	case "pruned":
		return domain.TrialStatePruned
	case "fail":
		return domain.TrialStateFail
	default:
		return domain.TrialStateRunning
	}
}

// BestTrials implements domain.Study via client-side Pareto-dominance
// filtering over all completed trials (study sizes here are small enough
// that this is simpler and safer than an equivalent SQL window query).
func (s *Study) BestTrials(ctx domain.Context) ([]domain.Trial, error) {
	all, err := s.loadTrials(ctx)
	if err != nil {
		return nil, err
	}
	var completed []domain.Trial
	for _, t := range all {
		if t.State == domain.TrialStateComplete {
			completed = append(completed, t)
		}
	}
	var best []domain.Trial
	for i, a := range completed {
		dominated := false
		for j, b := range completed {
			if i == j {
				continue
			}
			if dominates(b, a, s.directions) {
				dominated = true
				break
			}
		}
		if !dominated {
			best = append(best, a)
		}
	}
	return best, nil
}

func dominates(a, b domain.Trial, directions []domain.Direction) bool {
	betterOrEqual, strictlyBetter := true, false
	for i := range a.Values {
		if i >= len(b.Values) {
			break
		}
		maximize := i < len(directions) && directions[i] == domain.DirectionMaximize
		av, bv := a.Values[i], b.Values[i]
		if maximize {
			if av < bv {
				betterOrEqual = false
				break
			}
			if av > bv {
				strictlyBetter = true
			}
		} else {
			if av > bv {
				betterOrEqual = false
				break
			}
			if av < bv {
				strictlyBetter = true
			}
		}
	}
	return betterOrEqual && strictlyBetter
}

// SetUserAttr implements domain.Study as last-write-wins, matching the
// original's unconditional write-through (it increments a version counter
// but never rejects on a stale read, so this does the same rather than
// inventing a compare-and-swap that was never actually enforced).
func (s *Study) SetUserAttr(ctx domain.Context, key, value string) error {
	ctx, span := tracer.Start(ctx, "study.SetUserAttr")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO study_user_attrs (study_name, key, value, version, updated_at)
		 VALUES ($1,$2,$3,1,now())
		 ON CONFLICT (study_name, key) DO UPDATE SET
		   value=EXCLUDED.value, version=study_user_attrs.version+1, updated_at=now()`,
		s.name, key, value)
	if err != nil {
		return fmt.Errorf("op=study.set_user_attr: %w", err)
	}
	return nil
}

// GetUserAttrs implements domain.Study.
func (s *Study) GetUserAttrs(ctx domain.Context) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "study.GetUserAttrs")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT key, value FROM study_user_attrs WHERE study_name=$1`, s.name)
	if err != nil {
		return nil, fmt.Errorf("op=study.get_user_attrs: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("op=study.get_user_attrs_scan: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// handle implements domain.AskHandle.
type handle struct {
	pool    PgxPool
	trialID int64
	number  int
	impl    sampler.Sampler
	history []domain.Trial
	dirs    []domain.Direction
}

func (h *handle) TrialNumber() int { return h.number }

func (h *handle) SuggestFloat(name string, low, high, step float64) (float64, error) {
	return h.impl.SuggestFloat(h.history, h.dirs, name, low, high, step), nil
}

func (h *handle) SuggestInt(name string, low, high, step int64) (int64, error) {
	return h.impl.SuggestInt(h.history, h.dirs, name, low, high, step), nil
}

func (h *handle) SuggestCategorical(name string, choices []string) (string, error) {
	return h.impl.SuggestCategorical(h.history, h.dirs, name, choices), nil
}

func (h *handle) ReportParams(ctx domain.Context, params domain.ParamAssignment) error {
	tx, err := h.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("op=study.report_params.begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rerr := tx.Rollback(ctx); rerr != nil {
				slog.Error("rollback report_params transaction failed", slog.Any("error", rerr))
			}
		}
	}()

	for name, pv := range params {
		if err := insertParam(ctx, tx, h.trialID, name, pv); err != nil {
			return fmt.Errorf("op=study.report_params: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=study.report_params.commit: %w", err)
	}
	committed = true
	return nil
}
