package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchUnbatchRoundTrip(t *testing.T) {
	records := []Record{
		{PacketID: 1, Body: []byte("hello")},
		{PacketID: 700, SenderSubclient: 2, TargetSubclient: 3, Body: []byte("world")},
	}
	payload := Batch(records)

	got, err := Unbatch(payload)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, records[0].PacketID, got[0].PacketID)
	assert.Equal(t, records[0].Body, got[0].Body)
	assert.Equal(t, records[1].PacketID, got[1].PacketID)
	assert.Equal(t, records[1].SenderSubclient, got[1].SenderSubclient)
	assert.Equal(t, records[1].TargetSubclient, got[1].TargetSubclient)
	assert.Equal(t, records[1].Body, got[1].Body)
}

func TestCompressBelowThresholdIsNoop(t *testing.T) {
	payload := []byte("short")
	out, err := Compress(payload, AlgorithmDeflate, 100)
	require.NoError(t, err)

	back, err := Decompress(out)
	require.NoError(t, err)
	assert.Equal(t, payload, back)
}

func TestCompressZeroThresholdDisables(t *testing.T) {
	payload := make([]byte, 500)
	out, err := Compress(payload, AlgorithmDeflate, 0)
	require.NoError(t, err)

	back, err := Decompress(out)
	require.NoError(t, err)
	assert.Equal(t, payload, back)
}

func TestDeflateRoundTrip(t *testing.T) {
	payload := []byte("a reasonably compressible payload a reasonably compressible payload")
	compressed, err := Compress(payload, AlgorithmDeflate, 1)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload))

	out, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDecompressHandlesMixedThresholdPayloads(t *testing.T) {
	small := []byte("hi")
	large := []byte("a reasonably compressible payload a reasonably compressible payload")

	smallOut, err := Compress(small, AlgorithmDeflate, 16)
	require.NoError(t, err)
	largeOut, err := Compress(large, AlgorithmDeflate, 16)
	require.NoError(t, err)

	smallBack, err := Decompress(smallOut)
	require.NoError(t, err)
	assert.Equal(t, small, smallBack)

	largeBack, err := Decompress(largeOut)
	require.NoError(t, err)
	assert.Equal(t, large, largeBack)
}

func TestSnappyRoundTrip(t *testing.T) {
	payload := []byte("a reasonably compressible payload a reasonably compressible payload")
	compressed, err := Compress(payload, AlgorithmSnappy, 1)
	require.NoError(t, err)

	out, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}
