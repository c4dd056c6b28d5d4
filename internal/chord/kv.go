package chord

import (
	"context"

	"github.com/zde37/ringkv/pkg/hash"
)

type kvOp int

const (
	opPut kvOp = iota
	opGet
	opRemove
)

func (op kvOp) String() string {
	switch op {
	case opPut:
		return "put"
	case opGet:
		return "get"
	default:
		return "remove"
	}
}

var (
	forwardCommands   = map[kvOp]Command{opPut: CmdForwardPut, opGet: CmdForwardGet, opRemove: CmdForwardRemove}
	potentialCommands = map[kvOp]Command{opPut: CmdPotentialPut, opGet: CmdPotentialGet, opRemove: CmdPotentialRemove}
)

// handleClientKV accepts a PUT, GET or REMOVE straight from a client. This node
// becomes the relay that owes the client its reply.
func (n *ChordNode) handleClientKV(ctx context.Context, from string, msg *Message, op kvOp) {
	msg.Client = from
	msg.Relay = n.self.Address()
	n.routeKV(ctx, msg, op, false)
}

// routeKV serves msg locally or passes it on. potential marks a request that was
// addressed to this node as the likely owner; such requests only ever move back
// to the predecessor.
func (n *ChordNode) routeKV(ctx context.Context, msg *Message, op kvOp, potential bool) {
	keyID := hash.HashKey(msg.Key)
	snap := n.view.Snapshot()

	var (
		d   Decision
		err error
	)
	if potential {
		d, err = DecidePotentialRoute(keyID, n.self.ID, snap.PredecessorID(), len(snap.Successors) > 0)
	} else {
		d, err = DecideKeyRoute(keyID, n.self.ID, snap.PredecessorID(), snap.SuccessorIDs())
	}

	log := n.logger.Debug().
		Str("request_id", msg.ID.String()).
		Stringer("op", op).
		Int("key_id", keyID).
		Stringer("action", d.Action)
	if err != nil {
		log = log.Err(err)
	}

	switch d.Action {
	case ActionLocal:
		log.Msg("Serving key request")
		n.applyKV(ctx, msg, op)
		return
	case ActionPotential, ActionForward:
		var (
			target Node
			ok     bool
		)
		out := msg.Clone()
		if d.Action == ActionPotential {
			target, ok = snap.Lookup(d.TargetID)
			out.Command = potentialCommands[op]
		} else {
			target, ok = n.view.LastSuccessor()
			out.Command = forwardCommands[op]
		}
		if !ok {
			break
		}
		log.Int("target_id", target.ID).Msg("Routing key request")
		n.send(ctx, target.Address(), out)
		return
	}

	log.Msg("Key request cannot be routed")
	n.respond(ctx, msg, msg.Reply(CodeInternalFailure))
}

// applyKV runs op against the local store and answers the client. A PUT whose
// request ID was recently applied is ignored entirely.
func (n *ChordNode) applyKV(ctx context.Context, msg *Message, op kvOp) {
	key := string(msg.Key)

	switch op {
	case opPut:
		if n.seen.Seen(msg.ID) {
			n.logger.Debug().Str("request_id", msg.ID.String()).Msg("Duplicate put ignored")
			return
		}
		err := n.store.Put(key, msg.Value)
		n.respond(ctx, msg, msg.Reply(statusFor(err)))
		if err == nil {
			n.replicate(ctx, msg)
		}

	case opGet:
		value, err := n.store.Get(key)
		reply := msg.Reply(statusFor(err))
		reply.Value = value
		n.respond(ctx, msg, reply)

	case opRemove:
		err := n.store.Remove(key)
		n.respond(ctx, msg, msg.Reply(statusFor(err)))
	}
}

// respond delivers reply to the client of req, through the relay node when the
// request was served somewhere else.
func (n *ChordNode) respond(ctx context.Context, req, reply *Message) {
	if req.Client == "" {
		return
	}
	if req.Relay == "" || req.Relay == n.self.Address() {
		n.send(ctx, req.Client, reply)
		return
	}

	n.send(ctx, req.Relay, &Message{
		ID:      reply.ID,
		Command: CodeClientForwardResponse,
		Status:  reply.Command,
		Value:   reply.Value,
		Client:  req.Client,
	})
}

// handleClientForwardResponse unwraps an owner's answer and passes it to the client.
func (n *ChordNode) handleClientForwardResponse(ctx context.Context, msg *Message) {
	if msg.Client == "" {
		n.logger.Debug().Str("request_id", msg.ID.String()).Msg("Forwarded response without client dropped")
		return
	}
	reply := msg.Reply(msg.Status)
	reply.Value = msg.Value
	n.send(ctx, msg.Client, reply)
}
