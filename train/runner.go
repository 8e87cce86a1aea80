package train

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/kwv/rotsim/sim"
	"gonum.org/v1/gonum/floats"
)

// Sink series written by Runner.
const (
	SeriesTrainLoss = "training/loss"
	SeriesTrainErr  = "training/mean_err"
	SeriesTestLoss  = "validation/loss"
	SeriesTestErr   = "validation/mean_err"
)

// StepResult is the outcome of one minibatch.
type StepResult struct {
	Loss float64
	Err  float64 // mean angular error in degrees, 0 without an angle metric
}

// EpochStats is the mean of the step results of one pass over a dataset.
type EpochStats struct {
	Loss    float64
	MeanErr float64
	Batches int
}

// Fold averages step results. No steps yield zero stats.
func Fold(results []StepResult) EpochStats {
	if len(results) == 0 {
		return EpochStats{}
	}
	losses := make([]float64, len(results))
	errs := make([]float64, len(results))
	for i, r := range results {
		losses[i] = r.Loss
		errs[i] = r.Err
	}
	n := float64(len(results))
	return EpochStats{
		Loss:    floats.Sum(losses) / n,
		MeanErr: floats.Sum(errs) / n,
		Batches: len(results),
	}
}

// History holds one EpochStats per epoch for each phase.
type History struct {
	Train []EpochStats
	Test  []EpochStats
}

// trainer runs minibatch steps of one model.
type trainer struct {
	model Model
	loss  LossFunc
	opt   Optimizer
	mode  TargetMode
}

func (t *trainer) step(b sim.MiniBatch, training bool) (StepResult, error) {
	t.model.SetTraining(training)
	if training {
		t.opt.ZeroGrad()
	}

	out, err := t.model.Forward(b)
	if err != nil {
		return StepResult{}, fmt.Errorf("forward: %w", err)
	}
	targets, err := t.mode.Targets(b)
	if err != nil {
		return StepResult{}, err
	}
	if len(out) != len(targets) {
		return StepResult{}, fmt.Errorf("model returned %d values, want %d", len(out), len(targets))
	}

	res := StepResult{Loss: t.loss(out, targets)}
	if training {
		if err := t.opt.Step(res.Loss); err != nil {
			return StepResult{}, fmt.Errorf("optimizer step: %w", err)
		}
	}
	if angle := t.mode.Angle(); angle != nil {
		res.Err = angle(out, targets)
	}
	return res, nil
}

// runEpoch makes one pass over floor(N/batchSize) minibatches of d.
func (t *trainer) runEpoch(ctx context.Context, d *sim.Dataset, batchSize int, training bool) (EpochStats, error) {
	n := d.NumBatches(batchSize)
	results := make([]StepResult, 0, n)
	for k := 0; k < n; k++ {
		if err := ctx.Err(); err != nil {
			return EpochStats{}, err
		}
		res, err := t.step(d.Slice(k*batchSize, (k+1)*batchSize), training)
		if err != nil {
			return EpochStats{}, fmt.Errorf("batch %d: %w", k, err)
		}
		results = append(results, res)
	}
	return Fold(results), nil
}

// Runner trains and evaluates one model for a fixed number of epochs.
type Runner struct {
	cfg     *Config
	data    *dataSource
	trainer *trainer
	sink    Sink
}

// NewRunner validates cfg and selects the data generator.
// A nil sink discards progress values.
func NewRunner(cfg *Config, model Model, loss LossFunc, opt Optimizer, sink Sink, rng *rand.Rand) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	data, err := newDataSource(cfg, rng)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NopSink{}
	}
	if opt == nil {
		opt = NopOptimizer{}
	}
	return &Runner{
		cfg:     cfg,
		data:    data,
		trainer: &trainer{model: model, loss: loss, opt: opt, mode: cfg.TargetMode()},
		sink:    sink,
	}, nil
}

// UseData fixes the datasets of a static run instead of generating them.
func (r *Runner) UseData(train, test *sim.Dataset) {
	r.data.train, r.data.test = train, test
}

// Run executes exactly cfg.Epochs epochs. Cancelling ctx stops the run
// between minibatches and returns ctx.Err().
func (r *Runner) Run(ctx context.Context) (*History, error) {
	h := &History{
		Train: make([]EpochStats, 0, r.cfg.Epochs),
		Test:  make([]EpochStats, 0, r.cfg.Epochs),
	}

	for e := 0; e < r.cfg.Epochs; e++ {
		start := time.Now()

		trainData, testData, err := r.data.next()
		if err != nil {
			return h, fmt.Errorf("epoch %d: %w", e+1, err)
		}

		trainStats, err := r.trainer.runEpoch(ctx, trainData, r.cfg.BatchSizeTrain, true)
		if err != nil {
			return h, fmt.Errorf("epoch %d training: %w", e+1, err)
		}
		testStats, err := r.trainer.runEpoch(ctx, testData, r.cfg.BatchSizeTest, false)
		if err != nil {
			return h, fmt.Errorf("epoch %d testing: %w", e+1, err)
		}

		r.emit(SeriesTrainLoss, trainStats.Loss, e)
		r.emit(SeriesTrainErr, trainStats.MeanErr, e)
		r.emit(SeriesTestLoss, testStats.Loss, e)
		r.emit(SeriesTestErr, testStats.MeanErr, e)

		h.Train = append(h.Train, trainStats)
		h.Test = append(h.Test, testStats)

		log.Printf("Epoch: %d/%d. Train: Loss %.3E / Error %.3f (deg) | Test: Loss %.3E / Error %.3f (deg). Epoch time: %.3f sec.",
			e+1, r.cfg.Epochs, trainStats.Loss, trainStats.MeanErr, testStats.Loss, testStats.MeanErr, time.Since(start).Seconds())
	}
	return h, nil
}

func (r *Runner) emit(series string, value float64, step int) {
	emitScalar(r.sink, series, value, step)
}

// emitScalar reports sink failures without stopping the run.
func emitScalar(sink Sink, series string, value float64, step int) {
	if err := sink.AddScalar(series, value, step); err != nil {
		log.Printf("Warning: could not record %s at step %d: %v", series, step, err)
	}
}

// CompareEntry is one model taking part in Compare.
type CompareEntry struct {
	Name  string
	Model Model
	Loss  LossFunc
	Opt   Optimizer
	Mode  TargetMode
}

// Compare trains several models on the same data each epoch and records
// their mean errors as train_<name> and test_<name>. The returned map is
// keyed by entry name.
func Compare(ctx context.Context, cfg *Config, entries []CompareEntry, sink Sink, rng *rand.Rand) (map[string]*History, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no models to compare")
	}
	if sink == nil {
		sink = NopSink{}
	}

	trainers := make([]*trainer, len(entries))
	histories := make(map[string]*History, len(entries))
	for i, en := range entries {
		if en.Name == "" {
			return nil, fmt.Errorf("entry %d has no name", i)
		}
		if _, dup := histories[en.Name]; dup {
			return nil, fmt.Errorf("duplicate model name %q", en.Name)
		}
		opt := en.Opt
		if opt == nil {
			opt = NopOptimizer{}
		}
		loss := en.Loss
		if loss == nil {
			loss = LossFor(en.Mode)
		}
		trainers[i] = &trainer{model: en.Model, loss: loss, opt: opt, mode: en.Mode}
		histories[en.Name] = &History{}
	}

	data, err := newDataSource(cfg, rng)
	if err != nil {
		return nil, err
	}

	for e := 0; e < cfg.Epochs; e++ {
		trainData, testData, err := data.next()
		if err != nil {
			return histories, fmt.Errorf("epoch %d: %w", e+1, err)
		}

		trainStats := make([]EpochStats, len(entries))
		for i, t := range trainers {
			if trainStats[i], err = t.runEpoch(ctx, trainData, cfg.BatchSizeTrain, true); err != nil {
				return histories, fmt.Errorf("epoch %d training %s: %w", e+1, entries[i].Name, err)
			}
		}
		for i, t := range trainers {
			testStats, err := t.runEpoch(ctx, testData, cfg.BatchSizeTest, false)
			if err != nil {
				return histories, fmt.Errorf("epoch %d testing %s: %w", e+1, entries[i].Name, err)
			}

			name := entries[i].Name
			h := histories[name]
			h.Train = append(h.Train, trainStats[i])
			h.Test = append(h.Test, testStats)
			emitScalar(sink, "train_"+name, trainStats[i].MeanErr, e)
			emitScalar(sink, "test_"+name, testStats.MeanErr, e)

			log.Printf("Epoch: %d/%d. %s Train: Error %.3f (deg) | Test: Error %.3f (deg)",
				e+1, cfg.Epochs, name, trainStats[i].MeanErr, testStats.MeanErr)
		}
	}
	return histories, nil
}

// PretrainOptions controls Pretrain. Zero values select 500 epochs and
// batches of 50.
type PretrainOptions struct {
	Epochs    int
	BatchSize int
}

// Pretrain fits a model that outputs prior vectors to the prior matrices
// stored in the datasets, using mean squared error.
func Pretrain(ctx context.Context, model Model, opt Optimizer, train, test *sim.Dataset, opts PretrainOptions) (*History, error) {
	if train.APrior == nil || test.APrior == nil {
		return nil, fmt.Errorf("pretraining needs datasets with prior matrices")
	}
	if opts.Epochs <= 0 {
		opts.Epochs = 500
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opt == nil {
		opt = NopOptimizer{}
	}

	t := &trainer{model: model, loss: MSELoss, opt: opt, mode: TargetPrior}
	h := &History{}

	log.Println("Pre-training prior network...")
	for e := 0; e < opts.Epochs; e++ {
		start := time.Now()
		trainStats, err := t.runEpoch(ctx, train, opts.BatchSize, true)
		if err != nil {
			return h, fmt.Errorf("pretrain epoch %d: %w", e+1, err)
		}
		elapsed := time.Since(start)

		testStats, err := t.runEpoch(ctx, test, opts.BatchSize, false)
		if err != nil {
			return h, fmt.Errorf("pretrain epoch %d testing: %w", e+1, err)
		}
		h.Train = append(h.Train, trainStats)
		h.Test = append(h.Test, testStats)

		log.Printf("Epoch: %d/%d. Train: Loss %.3E | Test: Loss %.3E. Epoch time: %.3f sec.",
			e+1, opts.Epochs, trainStats.Loss, testStats.Loss, elapsed.Seconds())
	}
	return h, nil
}
