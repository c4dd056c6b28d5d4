package chord

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// handleJoin routes JOIN, FWD_JOIN and POTENTIAL_JOIN. The joining node travels
// as Nodes[0]; Client is the socket awaiting JOIN-OK.
func (n *ChordNode) handleJoin(ctx context.Context, from string, msg *Message) {
	if len(msg.Nodes) == 0 || msg.Nodes[0].IsNone() {
		n.logger.Debug().Str("from", from).Msg("Join without joining node dropped")
		return
	}
	joining := msg.Nodes[0]
	if msg.Command == CmdJoin {
		msg.Client = from
	}

	if n.view.Contains(joining.ID) {
		n.logger.Debug().Int("joining_id", joining.ID).Msg("Duplicate join dropped")
		return
	}

	snap := n.view.Snapshot()
	var (
		d   Decision
		err error
	)
	if msg.Command == CmdPotentialJoin {
		d, err = DecidePotentialRoute(joining.ID, n.self.ID, snap.PredecessorID(), len(snap.Successors) > 0)
	} else {
		d, err = DecideJoinRoute(joining.ID, n.self.ID, snap.PredecessorID(), snap.SuccessorIDs())
	}
	if err != nil {
		n.logger.Warn().Err(err).Int("joining_id", joining.ID).Msg("Join routing failed")
		return
	}

	switch d.Action {
	case ActionLocal:
		n.admit(ctx, joining, msg)
	case ActionPotential:
		n.relayJoin(ctx, snap, d.TargetID, CmdPotentialJoin, msg)
	case ActionForward:
		n.relayJoin(ctx, snap, d.TargetID, CmdForwardJoin, msg)
	default:
		n.logger.Debug().
			Int("joining_id", joining.ID).
			Stringer("command", msg.Command).
			Msg("Join dropped")
	}
}

func (n *ChordNode) relayJoin(ctx context.Context, snap Snapshot, targetID int, cmd Command, msg *Message) {
	target, ok := snap.Lookup(targetID)
	if !ok {
		n.logger.Warn().Int("target_id", targetID).Msg("Join target not in view")
		return
	}

	out := msg.Clone()
	out.Command = cmd
	n.logger.Debug().
		Int("joining_id", msg.Nodes[0].ID).
		Int("target_id", targetID).
		Stringer("command", cmd).
		Msg("Relaying join")
	n.send(ctx, target.Address(), out)
}

// admit takes joining as predecessor and answers it with [self, successors...].
// The first node ever admitted also becomes the first successor, which is how
// a lone node closes a two-node ring.
func (n *ChordNode) admit(ctx context.Context, joining Node, msg *Message) {
	n.view.SetPredecessor(joining)
	n.hasJoined.Store(true)

	reply := msg.Reply(CodeJoinOK)
	reply.Nodes = n.view.WithSelf()
	n.send(ctx, msg.Client, reply)

	if n.admittedBefore.CompareAndSwap(false, true) {
		n.view.AddFirstSuccessor(joining)
	}

	n.logger.Info().
		Int("joining_id", joining.ID).
		Str("joining_addr", joining.Address()).
		Msg("Admitted node as predecessor")
	n.publish(EventNodeJoin, joining, fmt.Sprintf("node %d joined as predecessor", joining.ID))
}

// handleJoinResponse adopts the successor list carried by JOIN-OK.
func (n *ChordNode) handleJoinResponse(reply *Message) {
	accepted := n.view.SetSuccessorList(reply.Nodes)
	n.hasJoined.Store(true)

	n.logger.Info().
		Ints("successors", nodeIDs(accepted)).
		Msg("Joined ring")
	n.publish(EventNodeJoin, n.self, fmt.Sprintf("joined ring with %d successors", len(accepted)))
}

// joinLoop asks contact to admit this node until a JOIN-OK arrives, the node
// is joined some other way, or the node shuts down.
func (n *ChordNode) joinLoop(contact string) {
	defer n.wg.Done()

	attempt := func() error {
		if n.hasJoined.Load() {
			return nil
		}

		transport := n.peer()
		if transport == nil {
			return backoff.Permanent(ErrNoTransport)
		}

		req := &Message{ID: NewRequestID(), Command: CmdJoin, Nodes: []Node{n.self}}
		reply, err := transport.Request(n.ctx, contact, req, n.config.JoinTimeout)
		if err != nil {
			return err
		}
		if reply.Command != CodeJoinOK {
			return fmt.Errorf("%w: %s to join request", ErrUnexpectedReply, reply.Command)
		}
		n.handleJoinResponse(reply)
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(n.config.JoinRetryInterval), n.ctx)
	err := backoff.RetryNotify(attempt, b, func(err error, next time.Duration) {
		n.logger.Warn().
			Err(err).
			Str("contact", contact).
			Dur("retry_in", next).
			Msg("Join attempt failed")
	})
	if err != nil && n.ctx.Err() == nil {
		n.logger.Error().Err(err).Str("contact", contact).Msg("Join initiator stopped")
	}
}
