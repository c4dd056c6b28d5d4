// Package wire frames chord messages as datagrams: a 16-byte request ID
// followed by protobuf-encoded fields.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zde37/ringkv/internal/chord"
	"github.com/zde37/ringkv/pkg/hash"
)

const (
	// IDLength is the size of the request ID header.
	IDLength = 16

	// MaxKeyLength is the longest key accepted, in bytes.
	MaxKeyLength = 32

	// MaxValueLength is the longest value accepted, in bytes.
	MaxValueLength = 15000

	// MaxDatagramSize bounds an encoded message and sizes receive buffers.
	MaxDatagramSize = 17000
)

// Field numbers of the message body.
const (
	fieldCommand protowire.Number = 1
	fieldKey     protowire.Number = 2
	fieldValue   protowire.Number = 3
	fieldNode    protowire.Number = 4
	fieldRelay   protowire.Number = 5
	fieldClient  protowire.Number = 6
	fieldStatus  protowire.Number = 7
)

// Field numbers of an embedded node.
const (
	nodeFieldHost protowire.Number = 1
	nodeFieldPort protowire.Number = 2
	nodeFieldID   protowire.Number = 3
)

var (
	// ErrMalformed is returned for datagrams that cannot be decoded.
	ErrMalformed = errors.New("malformed datagram")

	// ErrBadValueLength is returned when a value exceeds MaxValueLength.
	ErrBadValueLength = errors.New("value too long")

	// ErrTooLarge is returned when an encoded message exceeds MaxDatagramSize.
	ErrTooLarge = errors.New("datagram too large")
)

// Encode serialises msg into a single datagram.
func Encode(msg *chord.Message) ([]byte, error) {
	if len(msg.Key) > MaxKeyLength {
		return nil, fmt.Errorf("%w: key of %d bytes", ErrMalformed, len(msg.Key))
	}
	if len(msg.Value) > MaxValueLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadValueLength, len(msg.Value))
	}

	b := make([]byte, 0, IDLength+32+len(msg.Key)+len(msg.Value)+24*len(msg.Nodes))
	b = append(b, msg.ID[:]...)

	b = protowire.AppendTag(b, fieldCommand, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(msg.Command))

	if len(msg.Key) > 0 {
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendBytes(b, msg.Key)
	}
	if len(msg.Value) > 0 {
		b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
		b = protowire.AppendBytes(b, msg.Value)
	}
	for _, node := range msg.Nodes {
		b = protowire.AppendTag(b, fieldNode, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeNode(node))
	}
	if msg.Relay != "" {
		b = protowire.AppendTag(b, fieldRelay, protowire.BytesType)
		b = protowire.AppendString(b, msg.Relay)
	}
	if msg.Client != "" {
		b = protowire.AppendTag(b, fieldClient, protowire.BytesType)
		b = protowire.AppendString(b, msg.Client)
	}
	if msg.Command == chord.CodeClientForwardResponse {
		b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(msg.Status))
	}

	if len(b) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}
	return b, nil
}

func encodeNode(node chord.Node) []byte {
	var b []byte
	b = protowire.AppendTag(b, nodeFieldHost, protowire.BytesType)
	b = protowire.AppendString(b, node.Host)
	b = protowire.AppendTag(b, nodeFieldPort, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(node.Port))
	b = protowire.AppendTag(b, nodeFieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(node.ID)))
	return b
}

// Decode parses a datagram. When the header is intact but the body is not,
// the returned message still carries the request ID so that the sender can be
// told what went wrong.
func Decode(data []byte) (*chord.Message, error) {
	if len(data) < IDLength {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(data))
	}

	msg := &chord.Message{}
	copy(msg.ID[:], data[:IDLength])

	if len(data) > MaxDatagramSize {
		return msg, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	if err := decodeBody(msg, data[IDLength:]); err != nil {
		return msg, err
	}
	return msg, nil
}

func decodeBody(msg *chord.Message, b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldCommand && typ == protowire.VarintType,
			num == fieldStatus && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			if v > 0xFF {
				return fmt.Errorf("%w: code %d out of range", ErrMalformed, v)
			}
			if num == fieldCommand {
				msg.Command = chord.Command(v)
			} else {
				msg.Status = chord.Command(v)
			}
			b = b[n:]

		case typ == protowire.BytesType && num >= fieldKey && num <= fieldClient:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			if err := setBytesField(msg, num, v); err != nil {
				return err
			}
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func setBytesField(msg *chord.Message, num protowire.Number, v []byte) error {
	switch num {
	case fieldKey:
		if len(v) > MaxKeyLength {
			return fmt.Errorf("%w: key of %d bytes", ErrMalformed, len(v))
		}
		msg.Key = append([]byte(nil), v...)
	case fieldValue:
		if len(v) > MaxValueLength {
			return fmt.Errorf("%w: %d bytes", ErrBadValueLength, len(v))
		}
		msg.Value = append([]byte(nil), v...)
	case fieldNode:
		node, err := decodeNode(v)
		if err != nil {
			return err
		}
		msg.Nodes = append(msg.Nodes, node)
	case fieldRelay:
		msg.Relay = string(v)
	case fieldClient:
		msg.Client = string(v)
	}
	return nil
}

func decodeNode(b []byte) (chord.Node, error) {
	node := chord.Node{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return node, fmt.Errorf("%w: node: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == nodeFieldHost && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return node, fmt.Errorf("%w: node host: %v", ErrMalformed, protowire.ParseError(n))
			}
			node.Host = v
			b = b[n:]
		case num == nodeFieldPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 || v > 0xFFFF {
				return node, fmt.Errorf("%w: node port", ErrMalformed)
			}
			node.Port = int(v)
			b = b[n:]
		case num == nodeFieldID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return node, fmt.Errorf("%w: node id: %v", ErrMalformed, protowire.ParseError(n))
			}
			node.ID = int(protowire.DecodeZigZag(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return node, fmt.Errorf("%w: node: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if node.ID != chord.NoNodeID && !hash.IsValidID(node.ID) {
		return node, fmt.Errorf("%w: node id %d outside the ring", ErrMalformed, node.ID)
	}
	return node, nil
}

// ErrorCode picks the response code for a datagram that failed to decode.
func ErrorCode(err error) chord.Command {
	if errors.Is(err, ErrBadValueLength) {
		return chord.CodeBadValueLength
	}
	return chord.CodeInternalFailure
}
