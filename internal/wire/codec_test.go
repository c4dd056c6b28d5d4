package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zde37/ringkv/internal/chord"
	"github.com/zde37/ringkv/pkg/hash"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		msg  *chord.Message
	}{
		{
			name: "client put",
			msg: &chord.Message{
				ID:      chord.NewRequestID(),
				Command: chord.CmdPut,
				Key:     []byte("color"),
				Value:   []byte("blue"),
			},
		},
		{
			name: "success reply with empty body",
			msg:  &chord.Message{ID: chord.NewRequestID(), Command: chord.CodeSuccess},
		},
		{
			name: "liveness reply with placeholder predecessor",
			msg: &chord.Message{
				ID:      chord.NewRequestID(),
				Command: chord.CodeSuccAliveReply,
				Nodes: []chord.Node{
					chord.NoNode,
					chord.NewNode("10.0.0.1", 4000, 12),
					chord.NewNode("node-b.local", 4001, 1<<23),
				},
			},
		},
		{
			name: "forwarded response",
			msg: &chord.Message{
				ID:      chord.NewRequestID(),
				Command: chord.CodeClientForwardResponse,
				Status:  chord.CodeNonExistentKey,
				Client:  "10.0.0.9:5555",
			},
		},
		{
			name: "potential get with relay",
			msg: &chord.Message{
				ID:      chord.NewRequestID(),
				Command: chord.CmdPotentialGet,
				Key:     bytes.Repeat([]byte("k"), MaxKeyLength),
				Relay:   "10.0.0.1:4000",
				Client:  "10.0.0.9:5555",
			},
		},
		{
			name: "largest value",
			msg: &chord.Message{
				ID:      chord.NewRequestID(),
				Command: chord.CmdReplicaPut,
				Key:     []byte("k"),
				Value:   bytes.Repeat([]byte{0xAB}, MaxValueLength),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(data), MaxDatagramSize)
			assert.Equal(t, tt.msg.ID[:], data[:IDLength], "the request ID leads the datagram")

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestEncodeLimits(t *testing.T) {
	_, err := Encode(&chord.Message{Key: bytes.Repeat([]byte("k"), MaxKeyLength+1)})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Encode(&chord.Message{Value: make([]byte, MaxValueLength+1)})
	assert.ErrorIs(t, err, ErrBadValueLength)
}

func TestDecodeErrors(t *testing.T) {
	id := chord.NewRequestID()
	header := id[:]

	withBody := func(body []byte) []byte {
		return append(append([]byte(nil), header...), body...)
	}

	oversizedValue := protowire.AppendTag(nil, fieldValue, protowire.BytesType)
	oversizedValue = protowire.AppendBytes(oversizedValue, make([]byte, MaxValueLength+1))

	truncatedKey := protowire.AppendTag(nil, fieldKey, protowire.BytesType)
	truncatedKey = protowire.AppendVarint(truncatedKey, 10)
	truncatedKey = append(truncatedKey, 'a', 'b')

	badCode := protowire.AppendTag(nil, fieldCommand, protowire.VarintType)
	badCode = protowire.AppendVarint(badCode, 300)

	nodeOutsideRing := protowire.AppendTag(nil, fieldNode, protowire.BytesType)
	nodeOutsideRing = protowire.AppendBytes(nodeOutsideRing, encodeNode(chord.NewNode("10.0.0.1", 9000, hash.RingSize)))

	negativeNode := protowire.AppendTag(nil, fieldNode, protowire.BytesType)
	negativeNode = protowire.AppendBytes(negativeNode, encodeNode(chord.NewNode("10.0.0.1", 9000, -2)))

	tests := []struct {
		name     string
		data     []byte
		wantErr  error
		wantCode chord.Command
		hasID    bool
	}{
		{name: "short header", data: []byte{1, 2, 3}, wantErr: ErrMalformed},
		{name: "value too long", data: withBody(oversizedValue), wantErr: ErrBadValueLength, wantCode: chord.CodeBadValueLength, hasID: true},
		{name: "truncated field", data: withBody(truncatedKey), wantErr: ErrMalformed, wantCode: chord.CodeInternalFailure, hasID: true},
		{name: "command out of range", data: withBody(badCode), wantErr: ErrMalformed, wantCode: chord.CodeInternalFailure, hasID: true},
		{name: "node id outside ring", data: withBody(nodeOutsideRing), wantErr: ErrMalformed, wantCode: chord.CodeInternalFailure, hasID: true},
		{name: "negative node id", data: withBody(negativeNode), wantErr: ErrMalformed, wantCode: chord.CodeInternalFailure, hasID: true},
		{name: "garbage tag", data: withBody([]byte{0xFF}), wantErr: ErrMalformed, wantCode: chord.CodeInternalFailure, hasID: true},
		{name: "too large", data: withBody(make([]byte, MaxDatagramSize)), wantErr: ErrTooLarge, wantCode: chord.CodeInternalFailure, hasID: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.data)
			assert.ErrorIs(t, err, tt.wantErr)
			if !tt.hasID {
				assert.Nil(t, msg)
				return
			}
			require.NotNil(t, msg)
			assert.Equal(t, id, msg.ID)
			assert.Equal(t, tt.wantCode, ErrorCode(err))
		})
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	msg := &chord.Message{ID: chord.NewRequestID(), Command: chord.CmdGet, Key: []byte("k")}
	data, err := Encode(msg)
	require.NoError(t, err)

	data = protowire.AppendTag(data, 42, protowire.VarintType)
	data = protowire.AppendVarint(data, 7)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}
