package chord

import (
	"fmt"

	"github.com/google/uuid"
)

// RequestID is the 16-byte unique identifier carried by every datagram.
// Replies echo the request's ID; replicas and forwards reuse it.
type RequestID [16]byte

// NewRequestID returns a fresh random request ID.
func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

// String renders the ID in canonical UUID form.
func (id RequestID) String() string {
	return uuid.UUID(id).String()
}

// Command is the one-byte request or response code of a message.
type Command byte

// Client-facing requests.
const (
	CmdPut      Command = 0x01
	CmdGet      Command = 0x02
	CmdRemove   Command = 0x03
	CmdShutdown Command = 0x04
)

// Node-to-node requests.
const (
	CmdForwardPut       Command = 0x21
	CmdForwardGet       Command = 0x22
	CmdForwardRemove    Command = 0x23
	CmdPotentialPut     Command = 0x24
	CmdPotentialGet     Command = 0x25
	CmdPotentialRemove  Command = 0x26
	CmdReplicaPut       Command = 0x27
	CmdReplicaGet       Command = 0x28
	CmdReplicaRemove    Command = 0x29
	CmdJoin             Command = 0x2A
	CmdForwardJoin      Command = 0x2B
	CmdPotentialJoin    Command = 0x2C
	CmdPredAlive        Command = 0x2D
	CmdSuccAlive        Command = 0x2E
	CmdClaimPredecessor Command = 0x2F
	CmdNodeList         Command = 0x30
)

// Response codes.
const (
	CodeSuccess               Command = 0x00
	CodeNonExistentKey        Command = 0x01
	CodeOutOfSpace            Command = 0x02
	CodeSystemOverload        Command = 0x03
	CodeInternalFailure       Command = 0x04
	CodeUnrecognizedCommand   Command = 0x05
	CodeJoinOK                Command = 0x31
	CodePredAliveReply        Command = 0x32
	CodeSuccAliveReply        Command = 0x33
	CodeCannotShutdown        Command = 0x34
	CodeBadValueLength        Command = 0x35
	CodeClientForwardResponse Command = 0x36
	CodeNodeListResponse      Command = 0x37
)

var commandNames = map[Command]string{
	CmdForwardPut:             "FWD_PUT",
	CmdForwardGet:             "FWD_GET",
	CmdForwardRemove:          "FWD_REMOVE",
	CmdPotentialPut:           "POTENTIAL_PUT",
	CmdPotentialGet:           "POTENTIAL_GET",
	CmdPotentialRemove:        "POTENTIAL_REMOVE",
	CmdReplicaPut:             "REPLICA_PUT",
	CmdReplicaGet:             "REPLICA_GET",
	CmdReplicaRemove:          "REPLICA_REMOVE",
	CmdJoin:                   "JOIN",
	CmdForwardJoin:            "FWD_JOIN",
	CmdPotentialJoin:          "POTENTIAL_JOIN",
	CmdPredAlive:              "PRED_ALIVE",
	CmdSuccAlive:              "SUCC_ALIVE",
	CmdClaimPredecessor:       "CLAIM_PREDECESSOR",
	CmdNodeList:               "NODE_LIST",
	CodeJoinOK:                "JOIN_OK",
	CodePredAliveReply:        "PRED_ALIVE_REPLY",
	CodeSuccAliveReply:        "SUCC_ALIVE_REPLY",
	CodeCannotShutdown:        "CANNOT_SHUTDOWN",
	CodeBadValueLength:        "BAD_VALUE_LENGTH",
	CodeClientForwardResponse: "CLIENT_FWD_RESPONSE",
	CodeNodeListResponse:      "NODE_LIST_RESPONSE",
}

// String names node-to-node codes. The low codes are shared between
// client requests and responses, so they print as hex.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", byte(c))
}

// IsReply reports whether c can only appear as a response. Replies are never
// answered, so two nodes cannot bounce errors back and forth.
func (c Command) IsReply() bool {
	return c == CodeSuccess || c == CodeUnrecognizedCommand || c >= CodeJoinOK
}

// Message is the decoded form of one datagram.
type Message struct {
	ID      RequestID
	Command Command

	Key   []byte
	Value []byte

	// Nodes carries join candidates, JOIN-OK successor lists and
	// liveness replies of the form [predecessor|NoNode, self, successors...].
	Nodes []Node

	// Relay is the node that first received the client request and
	// owes the client its reply. Client is where that reply goes.
	Relay  string
	Client string

	// Status is the inner response code of a CLIENT_FWD_RESPONSE.
	Status Command
}

// Reply builds a response echoing m's request ID.
func (m *Message) Reply(code Command) *Message {
	return &Message{ID: m.ID, Command: code}
}

// Clone returns a copy of m with its own node slice.
func (m *Message) Clone() *Message {
	c := *m
	if m.Nodes != nil {
		c.Nodes = append([]Node(nil), m.Nodes...)
	}
	return &c
}
