package providers

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const quantizedRange = 32767

// QuantizedMeshHeader is the fixed 88 byte header of a quantized-mesh tile.
type QuantizedMeshHeader struct {
	CenterX float64
	CenterY float64
	CenterZ float64

	MinimumHeight float32
	MaximumHeight float32

	BoundingSphereCenterX float64
	BoundingSphereCenterY float64
	BoundingSphereCenterZ float64
	BoundingSphereRadius  float64

	HorizonOcclusionPointX float64
	HorizonOcclusionPointY float64
	HorizonOcclusionPointZ float64
}

// QuantizedMesh is a decoded quantized-mesh-1.0 tile. U runs west to east,
// V south to north and both, like heights, span [0, 32767].
type QuantizedMesh struct {
	Header  QuantizedMeshHeader
	U       []uint16
	V       []uint16
	Heights []uint16
	Indices []uint32
}

// DecodeQuantizedMesh decodes the header, the vertex data and the triangle
// indices of a quantized-mesh tile. Edge indices and extensions are
// ignored.
func DecodeQuantizedMesh(data []byte) (*QuantizedMesh, error) {
	r := bytes.NewReader(data)

	var m QuantizedMesh
	if err := binary.Read(r, binary.LittleEndian, &m.Header); err != nil {
		return nil, decodeError("reading quantized mesh header failed", err)
	}

	var vertexCount uint32
	if err := binary.Read(r, binary.LittleEndian, &vertexCount); err != nil {
		return nil, decodeError("reading vertex count failed", err)
	}
	if int64(vertexCount)*6 > int64(r.Len()) {
		return nil, errors.New("vertex count exceeds payload").
			WithType(ErrTypeDecode).
			WithTag("vertex_count", vertexCount)
	}

	m.U = make([]uint16, vertexCount)
	m.V = make([]uint16, vertexCount)
	m.Heights = make([]uint16, vertexCount)
	for _, buf := range [][]uint16{m.U, m.V, m.Heights} {
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, decodeError("reading vertex data failed", err)
		}
	}

	var u, v, h int32
	for i := range m.U {
		u += zigZagDecode(m.U[i])
		v += zigZagDecode(m.V[i])
		h += zigZagDecode(m.Heights[i])
		m.U[i] = uint16(u)
		m.V[i] = uint16(v)
		m.Heights[i] = uint16(h)
	}

	large := vertexCount > 65536
	align := int64(2)
	if large {
		align = 4
	}
	offset := int64(len(data)) - int64(r.Len())
	if rem := offset % align; rem != 0 {
		if _, err := r.Seek(align-rem, io.SeekCurrent); err != nil {
			return nil, decodeError("aligning index data failed", err)
		}
	}

	var triangleCount uint32
	if err := binary.Read(r, binary.LittleEndian, &triangleCount); err != nil {
		return nil, decodeError("reading triangle count failed", err)
	}

	if int64(triangleCount)*3*align > int64(r.Len()) {
		return nil, errors.New("triangle count exceeds payload").
			WithType(ErrTypeDecode).
			WithTag("triangle_count", triangleCount)
	}

	indexCount := int(triangleCount) * 3
	m.Indices = make([]uint32, indexCount)
	if large {
		if err := binary.Read(r, binary.LittleEndian, m.Indices); err != nil {
			return nil, decodeError("reading triangle indices failed", err)
		}
	} else {
		small := make([]uint16, indexCount)
		if err := binary.Read(r, binary.LittleEndian, small); err != nil {
			return nil, decodeError("reading triangle indices failed", err)
		}
		for i, idx := range small {
			m.Indices[i] = uint32(idx)
		}
	}

	var highest uint32
	for i, code := range m.Indices {
		m.Indices[i] = highest - code
		if code == 0 {
			highest++
		}
		if m.Indices[i] >= vertexCount {
			return nil, errors.New("triangle index out of range").
				WithType(ErrTypeDecode).
				WithTag("index", m.Indices[i]).
				WithTag("vertex_count", vertexCount)
		}
	}

	return &m, nil
}

// HeightField rasterizes the mesh triangles onto a width x height grid.
func (m *QuantizedMesh) HeightField(width, height int, childMask uint8) *HeightField {
	minHeight := float64(m.Header.MinimumHeight)
	heightRange := float64(m.Header.MaximumHeight) - minHeight

	heights := make([]float32, width*height)
	covered := make([]bool, width*height)

	for t := 0; t+2 < len(m.Indices); t += 3 {
		var xs, ys, hs [3]float64
		for k := 0; k < 3; k++ {
			idx := m.Indices[t+k]
			xs[k] = float64(m.U[idx]) / quantizedRange * float64(width-1)
			ys[k] = (1 - float64(m.V[idx])/quantizedRange) * float64(height-1)
			hs[k] = minHeight + float64(m.Heights[idx])/quantizedRange*heightRange
		}

		denominator := (ys[1]-ys[2])*(xs[0]-xs[2]) + (xs[2]-xs[1])*(ys[0]-ys[2])
		if math.Abs(denominator) < 1e-12 {
			continue
		}

		minI := max(0, int(math.Floor(math.Min(xs[0], math.Min(xs[1], xs[2])))))
		maxI := min(width-1, int(math.Ceil(math.Max(xs[0], math.Max(xs[1], xs[2])))))
		minJ := max(0, int(math.Floor(math.Min(ys[0], math.Min(ys[1], ys[2])))))
		maxJ := min(height-1, int(math.Ceil(math.Max(ys[0], math.Max(ys[1], ys[2])))))

		for j := minJ; j <= maxJ; j++ {
			for i := minI; i <= maxI; i++ {
				x := float64(i)
				y := float64(j)
				a := ((ys[1]-ys[2])*(x-xs[2]) + (xs[2]-xs[1])*(y-ys[2])) / denominator
				b := ((ys[2]-ys[0])*(x-xs[2]) + (xs[0]-xs[2])*(y-ys[2])) / denominator
				c := 1 - a - b
				if a < -1e-9 || b < -1e-9 || c < -1e-9 {
					continue
				}

				heights[j*width+i] = float32(a*hs[0] + b*hs[1] + c*hs[2])
				covered[j*width+i] = true
			}
		}
	}

	for i := range heights {
		if !covered[i] {
			heights[i] = float32(minHeight)
		}
	}

	hf := &HeightField{
		Width:         width,
		Height:        height,
		Heights:       heights,
		ChildTileMask: childMask,
	}
	hf.ComputeMinMax()
	return hf
}

func zigZagDecode(v uint16) int32 {
	return int32(v>>1) ^ -int32(v&1)
}

func decodeError(msg string, err error) error {
	return errors.New(msg).
		WithType(ErrTypeDecode).
		Wrap(err)
}
