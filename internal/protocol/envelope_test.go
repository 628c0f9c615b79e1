package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_Validate(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "missing type", env: Envelope{}, wantErr: true},
		{name: "start", env: Envelope{Type: TypeStart}},
		{name: "join without room", env: Envelope{Type: TypeJoin}, wantErr: true},
		{name: "join", env: Envelope{Type: TypeJoin, RoomID: "ABCD1234"}},
		{name: "blank username", env: Envelope{Type: TypeUsername, Username: "  "}, wantErr: true},
		{name: "offer without sdp", env: Envelope{Type: TypeOffer, Offer: &SessionDescription{Type: "offer"}}, wantErr: true},
		{name: "answer", env: Envelope{Type: TypeAnswer, Answer: &SessionDescription{Type: "answer", SDP: "v=0"}}},
		{name: "ice without candidate", env: Envelope{Type: TypeICE}, wantErr: true},
		{name: "bad media kind", env: Envelope{Type: TypeICE, ICE: &ICECandidate{}, MediaKind: "hologram"}, wantErr: true},
		{name: "unknown type is relayed", env: Envelope{Type: "whiteboard"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogicalPeerID(t *testing.T) {
	assert.Equal(t, "abc", LogicalPeerID("abc", MediaVideo))
	assert.Equal(t, "abc", LogicalPeerID("abc", MediaAudio))
	assert.Equal(t, "abc-screenshare", LogicalPeerID("abc", MediaScreenshare))
	assert.Equal(t, "abc-screenshare", LogicalPeerID("abc-screenshare", MediaScreenshare))
	assert.Equal(t, "abc", BaseClientID("abc-screenshare"))
	assert.Equal(t, "abc", BaseClientID("abc"))
}

func TestDecode_MsgpackKeepsFieldsAcrossCodecs(t *testing.T) {
	mline := uint16(1)
	in := &Envelope{
		Type:      TypeICE,
		To:        "peer",
		MediaKind: MediaScreenshare,
		ICE:       &ICECandidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMLineIndex: &mline},
	}

	data, err := Msgpack.Marshal(in)
	require.NoError(t, err)

	out, err := Decode(Msgpack, data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	text, err := JSON.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ice","to":"peer","mediaKind":"screenshare","ice":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMLineIndex":1}}`, string(text))
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{"", "not json", "[1,2]", `{"type":5}`, `{"roomId":"X"}`} {
		_, err := Decode(JSON, []byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, "input %q", raw)
	}

	_, err := Decode(Msgpack, []byte{0xc1})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())

	c, err = CodecByName("msgpack")
	require.NoError(t, err)
	assert.True(t, c.Binary())

	_, err = CodecByName("xml")
	assert.Error(t, err)
}

func TestValidRoomID(t *testing.T) {
	assert.True(t, ValidRoomID("ABCD1234"))
	assert.False(t, ValidRoomID("abcd1234"))
	assert.False(t, ValidRoomID("ABC"))
	assert.False(t, ValidRoomID("ABCD-234"))
	assert.Equal(t, "ABCD1234", NormalizeRoomID(" abcd1234 "))
}
