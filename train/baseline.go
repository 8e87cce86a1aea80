package train

import (
	"fmt"

	"github.com/kwv/rotsim/sim"
)

// HornModel estimates each rotation in closed form with Horn's method.
// It has no parameters, so training leaves it unchanged.
type HornModel struct {
	Output TargetMode
}

// Forward implements Model.
func (m *HornModel) Forward(b sim.MiniBatch) ([]float64, error) {
	if m.Output == TargetPrior {
		return nil, fmt.Errorf("horn model cannot produce prior vectors")
	}
	out := make([]float64, 0, b.Size*m.Output.Width())
	for i := 0; i < b.Size; i++ {
		rot, err := sim.SolveHorn(b.Set(i))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out = appendRotation(out, rot, m.Output)
	}
	return out, nil
}

// SetTraining implements Model.
func (m *HornModel) SetTraining(bool) {}

// PriorModel builds the prior matrix of every sample with a fixed noise
// level and returns its minimum eigenvector, or the matrix itself in
// TargetPrior mode.
type PriorModel struct {
	Sigma  float64
	Output TargetMode
}

// Forward implements Model.
func (m *PriorModel) Forward(b sim.MiniBatch) ([]float64, error) {
	sigma := m.Sigma
	if sigma <= 0 {
		// The minimizer does not depend on a uniform scale.
		sigma = 1
	}
	variances := sim.UniformNoise(sigma).Variances(b.Points)

	out := make([]float64, 0, b.Size*m.Output.Width())
	for i := 0; i < b.Size; i++ {
		a := sim.BuildPrior(b.Set(i), variances)
		if m.Output == TargetPrior {
			v := sim.PriorVec(a)
			out = append(out, v[:]...)
			continue
		}
		q, err := sim.SolvePrior(a)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out = appendRotation(out, sim.QuatToRotation(q), m.Output)
	}
	return out, nil
}

// SetTraining implements Model.
func (m *PriorModel) SetTraining(bool) {}

func appendRotation(out []float64, rot sim.Rotation, mode TargetMode) []float64 {
	if mode == TargetRotmat {
		return append(out, rot[:]...)
	}
	q := sim.QuatXYZW(sim.RotationToQuat(rot))
	return append(out, q[:]...)
}

// NopOptimizer satisfies Optimizer for parameter-free models.
type NopOptimizer struct{}

// ZeroGrad implements Optimizer.
func (NopOptimizer) ZeroGrad() {}

// Step implements Optimizer.
func (NopOptimizer) Step(float64) error { return nil }

// NewModel returns the baseline model and loss selected by cfg.
func NewModel(cfg *Config) (Model, LossFunc, error) {
	mode := cfg.TargetMode()
	loss := LossFor(mode)
	switch cfg.Model {
	case "horn":
		return &HornModel{Output: mode}, loss, nil
	case "prior":
		return &PriorModel{Sigma: cfg.SimSigma, Output: mode}, loss, nil
	default:
		return nil, nil, fmt.Errorf("unknown model %q", cfg.Model)
	}
}
