package providers

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

type testVertex struct {
	u, v, h uint16
}

// encodeQuantizedMesh builds a quantized-mesh payload with 16 bit indices.
// Triangles must reference new vertices in increasing order.
func encodeQuantizedMesh(t *testing.T, header QuantizedMeshHeader, vertices []testVertex, indices []uint16) []byte {
	var buf bytes.Buffer
	write := func(v any) {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}

	write(header)
	write(uint32(len(vertices)))

	zigZag := func(v int32) uint16 {
		return uint16((v << 1) ^ (v >> 31))
	}

	for _, component := range []func(testVertex) uint16{
		func(v testVertex) uint16 { return v.u },
		func(v testVertex) uint16 { return v.v },
		func(v testVertex) uint16 { return v.h },
	} {
		var prev int32
		for _, vertex := range vertices {
			value := int32(component(vertex))
			write(zigZag(value - prev))
			prev = value
		}
	}

	if buf.Len()%2 != 0 {
		buf.WriteByte(0)
	}

	write(uint32(len(indices) / 3))

	var highest uint16
	for _, idx := range indices {
		write(highest - idx)
		if idx == highest {
			highest++
		}
	}
	return buf.Bytes()
}

// twoTriangleMesh is a square whose heights rise from 100 on the west edge
// to 200 on the east edge.
func twoTriangleMesh(t *testing.T) []byte {
	return encodeQuantizedMesh(t,
		QuantizedMeshHeader{
			MinimumHeight: 100,
			MaximumHeight: 200,
		},
		[]testVertex{
			{u: 0, v: 0, h: 0},
			{u: quantizedRange, v: 0, h: quantizedRange},
			{u: 0, v: quantizedRange, h: 0},
			{u: quantizedRange, v: quantizedRange, h: quantizedRange},
		},
		[]uint16{0, 1, 2, 1, 3, 2},
	)
}

func TestDecodeQuantizedMesh(t *testing.T) {
	m, err := DecodeQuantizedMesh(twoTriangleMesh(t))
	require.NoError(t, err)
	require.Equal(t, float32(100), m.Header.MinimumHeight)
	require.Equal(t, float32(200), m.Header.MaximumHeight)
	require.Equal(t, []uint16{0, quantizedRange, 0, quantizedRange}, m.U)
	require.Equal(t, []uint16{0, 0, quantizedRange, quantizedRange}, m.V)
	require.Equal(t, []uint16{0, quantizedRange, 0, quantizedRange}, m.Heights)
	require.Equal(t, []uint32{0, 1, 2, 1, 3, 2}, m.Indices)
}

func TestDecodeQuantizedMeshErrors(t *testing.T) {
	valid := twoTriangleMesh(t)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated header", data: valid[:40]},
		{name: "truncated vertices", data: valid[:96]},
		{name: "truncated indices", data: valid[:len(valid)-2]},
		{
			name: "vertex count too large",
			data: func() []byte {
				b := append([]byte(nil), valid...)
				binary.LittleEndian.PutUint32(b[88:], 1<<20)
				return b
			}(),
		},
		{
			name: "triangle count too large",
			data: func() []byte {
				b := make([]byte, 96)
				binary.LittleEndian.PutUint32(b[92:], 0xffffffff)
				return b
			}(),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := DecodeQuantizedMesh(test.data)
			require.Error(t, err)
			require.Equal(t, ErrTypeDecode, errors.Type(err))
		})
	}
}

func TestDecodeQuantizedMeshIndexOutOfRange(t *testing.T) {
	data := encodeQuantizedMesh(t,
		QuantizedMeshHeader{},
		[]testVertex{{}, {u: 1}, {v: 1}},
		[]uint16{0, 1, 2},
	)

	// Rewrite the last index code so it points past the vertex count.
	binary.LittleEndian.PutUint16(data[len(data)-2:], 0xffff)

	_, err := DecodeQuantizedMesh(data)
	require.Error(t, err)
	require.Equal(t, ErrTypeDecode, errors.Type(err))
}

func TestQuantizedMeshHeightField(t *testing.T) {
	m, err := DecodeQuantizedMesh(twoTriangleMesh(t))
	require.NoError(t, err)

	hf := m.HeightField(3, 3, ChildNorthwest)
	require.NoError(t, hf.Validate())
	require.Equal(t, ChildNorthwest, hf.ChildTileMask)
	require.InDelta(t, 100, hf.MinimumHeight, 1e-3)
	require.InDelta(t, 200, hf.MaximumHeight, 1e-3)

	for j := 0; j < 3; j++ {
		require.InDelta(t, 100, hf.At(0, j), 1e-3)
		require.InDelta(t, 150, hf.At(1, j), 1e-3)
		require.InDelta(t, 200, hf.At(2, j), 1e-3)
	}
}

func TestZigZagDecode(t *testing.T) {
	require.Equal(t, int32(0), zigZagDecode(0))
	require.Equal(t, int32(-1), zigZagDecode(1))
	require.Equal(t, int32(1), zigZagDecode(2))
	require.Equal(t, int32(-2), zigZagDecode(3))
}
