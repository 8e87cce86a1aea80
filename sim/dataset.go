package sim

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Precision selects the floating point precision of dataset values.
type Precision int

const (
	Double Precision = iota
	Single
)

func (p Precision) String() string {
	if p == Single {
		return "single"
	}
	return "double"
}

func (p Precision) round(v float64) float64 {
	if p == Single {
		return float64(float32(v))
	}
	return v
}

// Dataset packs correspondence sets and ground truth in fixed layout:
//
//	X      (N, 2, Points, 3)  x_1 at index 0, x_2 at index 1
//	Q      (N, 4)             xyzw quaternions
//	APrior (N, 4, 4)          optional prior matrices
//
// A Dataset is written once and then only read through Slice.
type Dataset struct {
	N         int
	Points    int
	X         []float64
	Q         []float64
	APrior    []float64
	Precision Precision
}

// NewDataset allocates an empty dataset.
func NewDataset(n, points int, withPrior bool, prec Precision) *Dataset {
	d := &Dataset{
		N:         n,
		Points:    points,
		X:         make([]float64, n*2*points*3),
		Q:         make([]float64, n*4),
		Precision: prec,
	}
	if withPrior {
		d.APrior = make([]float64, n*16)
	}
	return d
}

// SetSample writes sample i.
func (d *Dataset) SetSample(i int, set CorrespondenceSet, q Quaternion) {
	writePairs(d.X[i*2*d.Points*3:], d.Points, set, d.Precision)
	v := QuatXYZW(q)
	for k := range v {
		d.Q[4*i+k] = d.Precision.round(v[k])
	}
}

// SetPrior writes the prior matrix of sample i.
func (d *Dataset) SetPrior(i int, a mat.Symmetric) {
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			d.APrior[16*i+4*r+c] = d.Precision.round(a.At(r, c))
		}
	}
}

// Set reads back sample i.
func (d *Dataset) Set(i int) CorrespondenceSet {
	return readPairs(d.X[i*2*d.Points*3:], d.Points)
}

// Slice returns a read-only view of samples [start, end).
func (d *Dataset) Slice(start, end int) MiniBatch {
	b := MiniBatch{
		Size:   end - start,
		Points: d.Points,
		X:      d.X[start*2*d.Points*3 : end*2*d.Points*3],
		Q:      d.Q[4*start : 4*end],
	}
	if d.APrior != nil {
		b.APrior = d.APrior[16*start : 16*end]
	}
	return b
}

// NumBatches returns floor(N / batchSize); trailing samples are dropped.
func (d *Dataset) NumBatches(batchSize int) int {
	if batchSize <= 0 {
		return 0
	}
	return d.N / batchSize
}

// MiniBatch is a contiguous view into a Dataset with the same layout.
type MiniBatch struct {
	Size   int
	Points int
	X      []float64
	Q      []float64
	APrior []float64
}

// Set returns correspondence set i of the minibatch.
func (b MiniBatch) Set(i int) CorrespondenceSet {
	return readPairs(b.X[i*2*b.Points*3:], b.Points)
}

func writePairs(dst []float64, points int, set CorrespondenceSet, prec Precision) {
	for k, xs := range [2][]r3.Vec{set.X1, set.X2} {
		for p, v := range xs {
			off := (k*points + p) * 3
			dst[off] = prec.round(v.X)
			dst[off+1] = prec.round(v.Y)
			dst[off+2] = prec.round(v.Z)
		}
	}
}

func readPairs(src []float64, points int) CorrespondenceSet {
	set := CorrespondenceSet{
		X1: make([]r3.Vec, points),
		X2: make([]r3.Vec, points),
	}
	for k, xs := range [2][]r3.Vec{set.X1, set.X2} {
		for p := range xs {
			off := (k*points + p) * 3
			xs[p] = r3.Vec{X: src[off], Y: src[off+1], Z: src[off+2]}
		}
	}
	return set
}

// Pack converts a generated batch into a Dataset without prior matrices.
func Pack(b *Batch, prec Precision) *Dataset {
	points := 0
	if b.Len() > 0 {
		points = len(b.X1[0])
	}
	d := NewDataset(b.Len(), points, false, prec)
	for i := range b.R {
		d.SetSample(i, b.Set(i), RotationToQuat(b.R[i]))
	}
	return d
}

// AssembleFast generates train and test datasets with gen and packs them
// directly, without prior matrices.
func AssembleFast(gen Generator, nTrain, nTest, points int, prec Precision) (train, test *Dataset, err error) {
	trainBatch, err := gen.Generate(nTrain, points)
	if err != nil {
		return nil, nil, fmt.Errorf("generating %s train data: %w", gen.Name(), err)
	}
	testBatch, err := gen.Generate(nTest, points)
	if err != nil {
		return nil, nil, fmt.Errorf("generating %s test data: %w", gen.Name(), err)
	}
	return Pack(trainBatch, prec), Pack(testBatch, prec), nil
}

// AssembleWithPrior generates one correspondence set per sample with uniform
// noise sigma and stores the prior matrix built with variance sigma².
func AssembleWithPrior(rng *rand.Rand, nTrain, nTest, points int, sigma float64, prec Precision) (train, test *Dataset) {
	noise := UniformNoise(sigma)
	variances := noise.Variances(points)

	build := func(n int) *Dataset {
		d := NewDataset(n, points, true, prec)
		for i := 0; i < n; i++ {
			rot, set := GenerateSet(rng, points, noise, false)
			d.SetSample(i, set, RotationToQuat(rot))
			d.SetPrior(i, BuildPrior(set, variances))
		}
		return d
	}
	return build(nTrain), build(nTest)
}
