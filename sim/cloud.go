package sim

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r3"
)

// Defaults for the external point cloud variant.
const (
	DefaultCloudDecimation = 20
	DefaultCloudNoise      = 1e-5
)

// CloudGenerator samples reference points from a fixed point cloud on disk.
// The same point subset is reused for every rotation in a batch.
type CloudGenerator struct {
	Path        string
	Decimation  int     // keep every Decimation-th point, default 20
	NoiseStdDev float64 // default 1e-5
	RNG         *rand.Rand
}

// Name implements Generator.
func (g *CloudGenerator) Name() string { return "cloud" }

// Generate implements Generator. The cloud is read on every call.
func (g *CloudGenerator) Generate(rotations, points int) (*Batch, error) {
	cloud, err := LoadPointCloud(g.Path)
	if err != nil {
		return nil, err
	}

	decimation := g.Decimation
	if decimation <= 0 {
		decimation = DefaultCloudDecimation
	}
	noise := g.NoiseStdDev
	if noise <= 0 {
		noise = DefaultCloudNoise
	}

	cloud = UniformDownSample(cloud, decimation)
	if len(cloud) < points {
		return nil, fmt.Errorf("point cloud %s has %d points after decimation, need %d", g.Path, len(cloud), points)
	}

	// A flat footprint means the quadrant split and rotations are ill posed.
	bound := CloudFootprint(cloud)
	if bound.Max.X()-bound.Min.X() <= 0 || bound.Max.Y()-bound.Min.Y() <= 0 {
		return nil, fmt.Errorf("point cloud %s has a degenerate footprint %v to %v", g.Path, bound.Min, bound.Max)
	}
	log.Printf("Point cloud %s: %d points, footprint [%.3g, %.3g] x [%.3g, %.3g]",
		g.Path, len(cloud), bound.Min.X(), bound.Max.X(), bound.Min.Y(), bound.Max.Y())

	ids := g.RNG.Perm(len(cloud))[:points]
	subset := make([]r3.Vec, points)
	for p, id := range ids {
		subset[p] = r3.Unit(cloud[id])
	}

	b := &Batch{
		R:  SampleGaussianRotations(g.RNG, rotations),
		X1: make([][]r3.Vec, rotations),
		X2: make([][]r3.Vec, rotations),
	}
	for r := 0; r < rotations; r++ {
		x1 := make([]r3.Vec, points)
		copy(x1, subset)
		b.X1[r] = x1
		b.X2[r] = rotateAndPerturb(g.RNG, b.R[r], x1, func(int) float64 { return noise })
	}
	return b, nil
}

// UniformDownSample keeps every k-th point starting with the first.
func UniformDownSample(points []r3.Vec, k int) []r3.Vec {
	if k <= 1 {
		return points
	}
	out := make([]r3.Vec, 0, (len(points)+k-1)/k)
	for i := 0; i < len(points); i += k {
		out = append(out, points[i])
	}
	return out
}

// CloudFootprint returns the planar bounding box of a point cloud.
// CloudGenerator rejects clouds whose footprint has zero width or height.
func CloudFootprint(points []r3.Vec) orb.Bound {
	mp := make(orb.MultiPoint, len(points))
	for i, v := range points {
		mp[i] = PlanarProjection(v)
	}
	return mp.Bound()
}

// LoadPointCloud reads vertex positions from a PLY file (ascii or
// binary_little_endian) or a whitespace separated .xyz/.txt file.
func LoadPointCloud(path string) ([]r3.Vec, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("point cloud not found: %s", path)
		}
		return nil, fmt.Errorf("opening point cloud: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Warning: error closing point cloud %s: %v", path, err)
		}
	}()

	var points []r3.Vec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ply":
		points, err = readPLY(bufio.NewReader(f))
	case ".xyz", ".txt":
		points, err = readXYZ(f)
	default:
		return nil, fmt.Errorf("unsupported point cloud format: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing point cloud %s: %w", path, err)
	}
	return points, nil
}

// readXYZ parses one point per line; extra columns (normals, colors) are ignored.
func readXYZ(r io.Reader) ([]r3.Vec, error) {
	var points []r3.Vec
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: want at least 3 columns, got %d", line, len(fields))
		}
		v, err := parseVec(fields[:3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		points = append(points, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

type plyProperty struct {
	name     string
	typ      string
	isList   bool
	countTyp string
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

var plyTypeSize = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4,
	"float": 4, "float32": 4, "double": 8, "float64": 8,
}

// readPLY reads the x, y, z properties of the vertex element.
func readPLY(r *bufio.Reader) ([]r3.Vec, error) {
	magic, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(magic) != "ply" {
		return nil, fmt.Errorf("missing ply magic")
	}

	var format string
	var elements []*plyElement
	for {
		raw, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading ply header: %w", err)
		}
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return nil, fmt.Errorf("malformed format line")
			}
			format = fields[1]
		case "element":
			if len(fields) < 3 {
				return nil, fmt.Errorf("malformed element line: %q", strings.TrimSpace(raw))
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("element %s count: %w", fields[1], err)
			}
			elements = append(elements, &plyElement{name: fields[1], count: n})
		case "property":
			if len(elements) == 0 {
				return nil, fmt.Errorf("property before element")
			}
			el := elements[len(elements)-1]
			if len(fields) >= 5 && fields[1] == "list" {
				el.props = append(el.props, plyProperty{name: fields[4], typ: fields[3], isList: true, countTyp: fields[2]})
			} else if len(fields) >= 3 {
				el.props = append(el.props, plyProperty{name: fields[2], typ: fields[1]})
			} else {
				return nil, fmt.Errorf("malformed property line: %q", strings.TrimSpace(raw))
			}
		}
		if fields[0] == "end_header" {
			break
		}
	}

	switch format {
	case "ascii":
		return readPLYASCII(r, elements)
	case "binary_little_endian":
		return readPLYBinary(r, elements)
	default:
		return nil, fmt.Errorf("unsupported ply format %q", format)
	}
}

func vertexColumns(el *plyElement) ([3]int, error) {
	cols := [3]int{-1, -1, -1}
	for i, p := range el.props {
		switch p.name {
		case "x":
			cols[0] = i
		case "y":
			cols[1] = i
		case "z":
			cols[2] = i
		}
	}
	for _, c := range cols {
		if c < 0 {
			return cols, fmt.Errorf("vertex element lacks x, y or z")
		}
	}
	return cols, nil
}

func readPLYASCII(r *bufio.Reader, elements []*plyElement) ([]r3.Vec, error) {
	sc := bufio.NewScanner(r)
	for _, el := range elements {
		if el.name != "vertex" {
			for i := 0; i < el.count; i++ {
				if !sc.Scan() {
					return nil, fmt.Errorf("unexpected end of %s data", el.name)
				}
			}
			continue
		}

		cols, err := vertexColumns(el)
		if err != nil {
			return nil, err
		}
		points := make([]r3.Vec, 0, el.count)
		for i := 0; i < el.count; i++ {
			if !sc.Scan() {
				return nil, fmt.Errorf("unexpected end of vertex data at %d/%d", i, el.count)
			}
			fields := strings.Fields(sc.Text())
			if len(fields) < len(el.props) {
				return nil, fmt.Errorf("vertex %d: want %d values, got %d", i, len(el.props), len(fields))
			}
			v, err := parseVec([]string{fields[cols[0]], fields[cols[1]], fields[cols[2]]})
			if err != nil {
				return nil, fmt.Errorf("vertex %d: %w", i, err)
			}
			points = append(points, v)
		}
		return points, nil
	}
	return nil, fmt.Errorf("no vertex element")
}

func readPLYBinary(r *bufio.Reader, elements []*plyElement) ([]r3.Vec, error) {
	for _, el := range elements {
		rowSize := 0
		offsets := make([]int, len(el.props))
		for i, p := range el.props {
			if p.isList {
				if el.name == "vertex" {
					return nil, fmt.Errorf("list property %s in vertex element", p.name)
				}
				return nil, fmt.Errorf("element %s with list properties precedes vertex data", el.name)
			}
			size, ok := plyTypeSize[p.typ]
			if !ok {
				return nil, fmt.Errorf("unknown ply type %q", p.typ)
			}
			offsets[i] = rowSize
			rowSize += size
		}

		if el.name != "vertex" {
			if _, err := r.Discard(rowSize * el.count); err != nil {
				return nil, fmt.Errorf("skipping %s data: %w", el.name, err)
			}
			continue
		}

		cols, err := vertexColumns(el)
		if err != nil {
			return nil, err
		}
		row := make([]byte, rowSize)
		points := make([]r3.Vec, 0, el.count)
		for i := 0; i < el.count; i++ {
			if _, err := io.ReadFull(r, row); err != nil {
				return nil, fmt.Errorf("vertex %d: %w", i, err)
			}
			var xyz [3]float64
			for k, c := range cols {
				xyz[k] = decodePLYScalar(row[offsets[c]:], el.props[c].typ)
			}
			points = append(points, r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]})
		}
		return points, nil
	}
	return nil, fmt.Errorf("no vertex element")
}

func decodePLYScalar(b []byte, typ string) float64 {
	le := binary.LittleEndian
	switch typ {
	case "char", "int8":
		return float64(int8(b[0]))
	case "uchar", "uint8":
		return float64(b[0])
	case "short", "int16":
		return float64(int16(le.Uint16(b)))
	case "ushort", "uint16":
		return float64(le.Uint16(b))
	case "int", "int32":
		return float64(int32(le.Uint32(b)))
	case "uint", "uint32":
		return float64(le.Uint32(b))
	case "float", "float32":
		return float64(math.Float32frombits(le.Uint32(b)))
	default:
		return math.Float64frombits(le.Uint64(b))
	}
}

func parseVec(fields []string) (r3.Vec, error) {
	var xyz [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("parsing coordinate %q: %w", f, err)
		}
		xyz[i] = v
	}
	return r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
