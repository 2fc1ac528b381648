package domain

// SamplerKind names the supported optimization algorithms. A worker is
// assigned one deterministically from md5(worker_id) mod the available set,
// so that a fleet of workers targeting the same study spreads across
// samplers instead of racing on an identical one.
type SamplerKind string

const (
	SamplerTPE    SamplerKind = "tpe"
	SamplerNSGA2  SamplerKind = "nsga2"
	SamplerNSGA3  SamplerKind = "nsga3"
	SamplerRandom SamplerKind = "random"
	SamplerQMC    SamplerKind = "qmc"
)

// AllSamplerKinds is the default available-sampler list used for worker-id
// hash assignment, in the fixed order the hash space is partitioned over.
var AllSamplerKinds = []SamplerKind{SamplerTPE, SamplerNSGA2, SamplerRandom, SamplerNSGA3, SamplerQMC}

// CrossoverKind names the NSGA-II crossover operator variants.
type CrossoverKind string

const (
	CrossoverUNDX    CrossoverKind = "undx"
	CrossoverSPX     CrossoverKind = "spx"
	CrossoverBLXAlpha CrossoverKind = "blx_alpha"
	CrossoverSBX     CrossoverKind = "sbx"
	CrossoverVSBX    CrossoverKind = "vsbx"
)

// NSGA2Profile is the per-crossover-kind hyperparameter profile applied
// when constructing an NSGA-II sampler. UNDX and SPX require a population
// of at least 3 to form the operator's simplex; the sampler constructor
// raises the configured population to 3 when a smaller one is requested.
type NSGA2Profile struct {
	Crossover      CrossoverKind
	PopulationSize int
	MinPopulation  int
}

// DefaultNSGA2Profiles mirrors the fixed per-crossover hyperparameter table
// the original sampler factory hard-codes.
var DefaultNSGA2Profiles = map[CrossoverKind]NSGA2Profile{
	CrossoverUNDX:     {Crossover: CrossoverUNDX, PopulationSize: 50, MinPopulation: 3},
	CrossoverSPX:      {Crossover: CrossoverSPX, PopulationSize: 50, MinPopulation: 3},
	CrossoverBLXAlpha: {Crossover: CrossoverBLXAlpha, PopulationSize: 50, MinPopulation: 2},
	CrossoverSBX:      {Crossover: CrossoverSBX, PopulationSize: 50, MinPopulation: 2},
	CrossoverVSBX:     {Crossover: CrossoverVSBX, PopulationSize: 50, MinPopulation: 2},
}

// SamplerConfig fully describes the sampler a study was created with,
// recorded so that a worker reopening an existing study reconstructs the
// same sampler configuration rather than silently switching it mid-run.
type SamplerConfig struct {
	Kind           SamplerKind
	PopulationSize int
	Crossover      CrossoverKind
	Seed           *int64
}
