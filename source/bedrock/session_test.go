package bedrock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedrockd/source/codec"
	"bedrockd/source/compress"
)

func newTestSession() (*Session, *[][]byte, *[]string) {
	var sent [][]byte
	var disconnects []string
	deps := Dependencies{
		Send:                 func(b []byte) error { sent = append(sent, b); return nil },
		Disconnect:           func(reason string) { disconnects = append(disconnects, reason) },
		MaxChunkRadius:       16,
		CompressionThreshold: 256,
	}
	return NewSession("127.0.0.1:1", deps), &sent, &disconnects
}

func requestNetworkSettingsBody(version uint32) []byte {
	w := codec.NewWriter()
	w.Uint32BE(version)
	return w.Bytes()
}

func TestNetworkSettingsVersionMismatchDisconnectsNewerClient(t *testing.T) {
	s, sent, disconnects := newTestSession()
	err := s.HandleGamePacket(IDRequestNetworkSettings, requestNetworkSettingsBody(CurrentProtocolVersion+1))
	require.NoError(t, err)
	assert.Equal(t, StageRequestNetworkSettings, s.Stage())
	require.Len(t, *disconnects, 1)
	require.Len(t, *sent, 1)
}

func TestNetworkSettingsMatchAdvancesToLogin(t *testing.T) {
	s, sent, disconnects := newTestSession()
	err := s.HandleGamePacket(IDRequestNetworkSettings, requestNetworkSettingsBody(CurrentProtocolVersion))
	require.NoError(t, err)
	assert.Equal(t, StageLogin, s.Stage())
	assert.True(t, s.Compressed)
	assert.Empty(t, *disconnects)
	require.Len(t, *sent, 1)
}

func TestWrongPacketAtLoginStageIsViolation(t *testing.T) {
	s, _, disconnects := newTestSession()
	s.stage = StageLogin
	err := s.HandleGamePacket(IDCacheStatus, nil)
	require.Error(t, err)
	require.Len(t, *disconnects, 1)
}

func TestChunkRadiusClampedToConfiguredMax(t *testing.T) {
	s, sent, _ := newTestSession()
	s.stage = StageOpen

	w := codec.NewWriter()
	w.Varint32(9999)
	err := s.HandleGamePacket(IDChunkRadiusRequest, w.Bytes())
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	records, err := compress.Unbatch((*sent)[0][1:]) // strip the connected-packet envelope byte
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint32(IDChunkRadiusReply), records[0].PacketID)

	r := codec.NewReader(records[0].Body)
	radius, err := r.Varint32()
	require.NoError(t, err)
	assert.Equal(t, int32(16), radius)
}

func TestChunkRadiusRejectsNonPositive(t *testing.T) {
	s, _, _ := newTestSession()
	s.stage = StageOpen

	w := codec.NewWriter()
	w.Varint32(0)
	err := s.HandleGamePacket(IDChunkRadiusRequest, w.Bytes())
	assert.Error(t, err)
}

func TestViolationWarningClosesConnectionFromAnyStage(t *testing.T) {
	s, _, disconnects := newTestSession()
	s.stage = StageOpen
	err := s.HandleGamePacket(IDViolationWarning, nil)
	assert.Error(t, err)
	require.Len(t, *disconnects, 1)
}

func TestSetLocalPlayerAsInitializedBroadcastsJoin(t *testing.T) {
	var broadcasted []string
	deps := Dependencies{
		Send:       func([]byte) error { return nil },
		Disconnect: func(string) {},
		Broadcast:  func(text string) { broadcasted = append(broadcasted, text) },
	}
	s := NewSession("127.0.0.1:2", deps)
	s.stage = StageSetLocalPlayerAsInitialized
	s.Identity.DisplayName = "Steve"

	err := s.HandleGamePacket(IDSetLocalPlayerAsInitialized, nil)
	require.NoError(t, err)
	assert.Equal(t, StageOpen, s.Stage())
	require.Len(t, broadcasted, 1)
	assert.Contains(t, broadcasted[0], "Steve")
}
