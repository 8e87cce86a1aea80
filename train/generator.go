package train

import (
	"fmt"
	"math/rand"

	"github.com/kwv/rotsim/sim"
)

// NewGenerator returns the correspondence generator for cfg.Dataset.
// Static and dynamic datasets share the uniform generator; they differ only
// in how often it runs.
func NewGenerator(cfg *Config, rng *rand.Rand) (sim.Generator, error) {
	switch cfg.Dataset {
	case DatasetStatic, DatasetDynamic:
		return &sim.UniformGenerator{
			Noise:    sim.UniformNoise(cfg.SimSigma),
			MaxAngle: cfg.MaxAngleRadians(),
			RNG:      rng,
		}, nil
	case DatasetBeachball:
		return &sim.BeachballGenerator{
			Sigma:   cfg.SimSigma,
			Factors: cfg.BeachballSigmaFactors,
			RNG:     rng,
		}, nil
	case DatasetCloud:
		return &sim.CloudGenerator{
			Path:        cfg.Cloud.Path,
			Decimation:  cfg.Cloud.Decimation,
			NoiseStdDev: cfg.Cloud.Noise,
			RNG:         rng,
		}, nil
	case DatasetGrid:
		return &sim.GridGenerator{
			Noise:   sim.UniformNoise(cfg.SimSigma),
			GridDim: cfg.GridDim,
			RNG:     rng,
		}, nil
	default:
		return nil, fmt.Errorf("unknown dataset %q", cfg.Dataset)
	}
}

// dataSource hands out the train and test sets for each epoch, regenerating
// them unless the dataset is static.
type dataSource struct {
	cfg         *Config
	gen         sim.Generator
	train, test *sim.Dataset
}

func newDataSource(cfg *Config, rng *rand.Rand) (*dataSource, error) {
	gen, err := NewGenerator(cfg, rng)
	if err != nil {
		return nil, err
	}
	return &dataSource{cfg: cfg, gen: gen}, nil
}

// next returns the datasets for the coming epoch.
func (s *dataSource) next() (train, test *sim.Dataset, err error) {
	if s.train != nil && !s.cfg.Dynamic() {
		return s.train, s.test, nil
	}
	s.train, s.test, err = sim.AssembleFast(s.gen, s.cfg.NTrain, s.cfg.NTest, s.cfg.MatchesPerSample, s.cfg.Precision())
	if err != nil {
		return nil, nil, err
	}
	return s.train, s.test, nil
}
