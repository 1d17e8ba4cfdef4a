package codec

import (
	"testing"
	"time"

	"github.com/ecowatt/gateway/internal/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(i int, base time.Time) buffer.Sample {
	return buffer.Sample{
		Timestamp:       base.Add(time.Duration(i) * time.Second),
		RegisterAddress: uint8(i % 10),
		RegisterName:    "reg",
		RawValue:        int32(i * 3),
		ScaledValue:     float64(i) / 10,
		Unit:            "V",
	}
}

func TestCompress_EmptyInput(t *testing.T) {
	assert.Equal(t, []byte{}, Compress(nil))
	assert.Equal(t, []byte{}, Compress([]buffer.Sample{}))
}

func TestDecompress_EmptyInput(t *testing.T) {
	decoded, err := Decompress(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)

	decoded, err = Decompress([]byte{})
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestRoundTrip_VariedSamples(t *testing.T) {
	base := time.Now()
	samples := make([]buffer.Sample, 50)
	for i := range samples {
		samples[i] = sampleAt(i, base)
	}

	compressed := Compress(samples)
	decoded, err := Decompress(compressed)
	require.NoError(t, err)
	require.Len(t, decoded, len(samples))

	for i := range samples {
		assert.Equal(t, samples[i].RegisterAddress, decoded[i].RegisterAddress)
		assert.Equal(t, samples[i].RawValue, decoded[i].RawValue)
		assert.Equal(t, samples[i].RegisterName, decoded[i].RegisterName)
		assert.Equal(t, samples[i].Unit, decoded[i].Unit)
		assert.InDelta(t, samples[i].ScaledValue, decoded[i].ScaledValue, 1e-6)
		assert.WithinDuration(t, samples[i].Timestamp, decoded[i].Timestamp, time.Microsecond)
	}
}

func TestCompress_Deterministic(t *testing.T) {
	base := time.Now()
	samples := make([]buffer.Sample, 20)
	for i := range samples {
		samples[i] = sampleAt(i, base)
	}

	assert.Equal(t, Compress(samples), Compress(samples))
}

func TestCompress_ConstantRunProducesSingleRLERun(t *testing.T) {
	base := time.Now()
	samples := make([]buffer.Sample, 10)
	for i := range samples {
		samples[i] = buffer.Sample{
			Timestamp:       base,
			RegisterAddress: 0,
			RegisterName:    "P",
			RawValue:        0,
			ScaledValue:     3.141593,
			Unit:            "W",
		}
	}

	compressed := Compress(samples)
	decoded, err := Decompress(compressed)
	require.NoError(t, err)
	require.Len(t, decoded, len(samples))

	for i := range samples {
		assert.Equal(t, samples[i].RegisterAddress, decoded[i].RegisterAddress)
		assert.Equal(t, samples[i].RawValue, decoded[i].RawValue)
		assert.Equal(t, samples[i].RegisterName, decoded[i].RegisterName)
		assert.Equal(t, samples[i].Unit, decoded[i].Unit)
		assert.InDelta(t, samples[i].ScaledValue, decoded[i].ScaledValue, 1e-6)
	}

	// Four delta arrays, each a single run of length 9: count varint (1) +
	// the full first sample + 4 * (N-varint + marked-delta-varint +
	// run-length-varint) + 9 * 2 flag bytes.
	c := newCursor(compressed)
	_, err = c.readUvarint() // count
	require.NoError(t, err)
	_, err = c.readUvarint() // timestamp ticks
	require.NoError(t, err)
	_, err = c.readUvarint() // address
	require.NoError(t, err)
	_, err = c.readUvarint() // raw
	require.NoError(t, err)
	_, err = c.readUvarint() // scaled
	require.NoError(t, err)
	_, err = c.readString() // name
	require.NoError(t, err)
	_, err = c.readString() // unit
	require.NoError(t, err)

	for arr := 0; arr < 4; arr++ {
		n, err := c.readUvarint()
		require.NoError(t, err)
		assert.Equal(t, uint64(9), n)

		first, err := c.readUvarint()
		require.NoError(t, err)
		require.NotZero(t, first&runLengthMarker, "expected a multi-element run marker")

		runLen, err := c.readUvarint()
		require.NoError(t, err)
		assert.Equal(t, uint64(9), runLen)
	}
}

func TestDecompress_RejectsTruncatedInput(t *testing.T) {
	base := time.Now()
	samples := []buffer.Sample{sampleAt(0, base), sampleAt(1, base), sampleAt(2, base)}
	compressed := Compress(samples)

	_, err := Decompress(compressed[:len(compressed)-2])
	assert.Error(t, err)
}

func TestVarint_RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 32, ^uint64(0)}
	for _, v := range values {
		buf := appendUvarint(nil, v)
		c := newCursor(buf)
		got, err := c.readUvarint()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestZigzag_RoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 1000, -1000, 1 << 40, -(1 << 40)}
	for _, v := range values {
		assert.Equal(t, v, zigzagDecode(zigzagEncode(v)))
	}
}
