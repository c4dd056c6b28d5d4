package chord

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v4"
)

// probe asks target whether it is alive. Each attempt waits twice as long as
// the previous one. All attempts go out over one exchange with one request ID,
// so a late reply to an earlier attempt still counts.
func (n *ChordNode) probe(ctx context.Context, target Node, cmd, want Command) (*Message, error) {
	transport := n.peer()
	if transport == nil {
		return nil, ErrNoTransport
	}

	req := &Message{ID: NewRequestID(), Command: cmd, Nodes: []Node{n.self}}
	exchange, err := transport.Dial(ctx, target.Address(), req)
	if err != nil {
		return nil, err
	}
	defer exchange.Close()

	timeout := n.config.ProbeTimeout
	return retry.DoWithData(
		func() (*Message, error) {
			wait := timeout
			timeout *= 2

			reply, err := exchange.Attempt(ctx, wait)
			if err != nil {
				return nil, err
			}
			if reply.Command != want {
				return nil, fmt.Errorf("%w: %s from node %d", ErrUnexpectedReply, reply.Command, target.ID)
			}
			return reply, nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(n.config.ProbeAttempts)),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			n.logger.Debug().
				Err(err).
				Uint("attempt", attempt+1).
				Int("peer_id", target.ID).
				Stringer("probe", cmd).
				Msg("Probe attempt failed")
		}),
	)
}

// checkPredecessor evicts the predecessor when it stops answering.
func (n *ChordNode) checkPredecessor(ctx context.Context) {
	pred, ok := n.view.Predecessor()
	if !ok {
		return
	}

	_, err := n.probe(ctx, pred, CmdPredAlive, CodePredAliveReply)
	if err == nil || ctx.Err() != nil {
		return
	}

	if n.view.RemovePredecessor(pred) {
		n.removed.Add(pred)
		n.logger.Warn().Err(err).Int("peer_id", pred.ID).Msg("Predecessor unreachable, removed")
		n.publish(EventNodeLeave, pred, fmt.Sprintf("predecessor %d removed", pred.ID))
	}
}

// checkSuccessor probes the first successor and reconciles the view with the
// node list it returns, or evicts it when it stops answering.
func (n *ChordNode) checkSuccessor(ctx context.Context) {
	succ, ok := n.view.FirstSuccessor()
	if !ok {
		return
	}

	reply, err := n.probe(ctx, succ, CmdSuccAlive, CodeSuccAliveReply)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if first, ok := n.view.FirstSuccessor(); !ok || first.ID != succ.ID {
			return
		}
		if removed, ok := n.view.RemoveFirstSuccessor(); ok {
			n.removed.Add(removed)
			n.logger.Warn().Err(err).Int("peer_id", removed.ID).Msg("Successor unreachable, removed")
			n.publish(EventNodeLeave, removed, fmt.Sprintf("successor %d removed", removed.ID))
		}
		return
	}

	n.handleSuccessorAlive(ctx, reply)
}

// handleSuccessorAlive applies a liveness reply of the form
// [predecessor|NoNode, successor, successor's successors...].
func (n *ChordNode) handleSuccessorAlive(ctx context.Context, reply *Message) {
	if len(reply.Nodes) < 2 {
		n.logger.Debug().Int("nodes", len(reply.Nodes)).Msg("Short successor liveness reply ignored")
		return
	}
	predOfSucc, succ := reply.Nodes[0], reply.Nodes[1]

	switch {
	case predOfSucc.IsNone():
		n.claimPredecessor(ctx, succ)

	case predOfSucc.ID == n.self.ID:
		accepted := n.view.SetSuccessorList(reply.Nodes[1:])
		n.logger.Debug().Ints("successors", nodeIDs(accepted)).Msg("Successor list refreshed")

	case n.removed.Suppressed(predOfSucc.ID):
		// the successor has not noticed yet that its predecessor is gone
		n.logger.Debug().Int("peer_id", predOfSucc.ID).Msg("Ignoring suppressed node reported by successor")

	default:
		n.view.AddFirstSuccessor(predOfSucc)
		n.claimPredecessor(ctx, predOfSucc)
		n.logger.Info().
			Int("new_successor", predOfSucc.ID).
			Int("old_successor", succ.ID).
			Msg("Adopted successor's predecessor as first successor")
		n.publish(EventStabilization, predOfSucc, fmt.Sprintf("node %d is the new first successor", predOfSucc.ID))
	}
}

// claimPredecessor proposes self as target's predecessor.
func (n *ChordNode) claimPredecessor(ctx context.Context, target Node) {
	n.send(ctx, target.Address(), &Message{
		ID:      NewRequestID(),
		Command: CmdClaimPredecessor,
		Nodes:   []Node{n.self},
	})
}

// handleClaimPredecessor adopts the proposer when there is no predecessor or
// the proposer sits between the current predecessor and self.
func (n *ChordNode) handleClaimPredecessor(msg *Message) {
	if len(msg.Nodes) == 0 {
		return
	}
	proposer := msg.Nodes[0]
	if proposer.IsNone() || proposer.ID == n.self.ID {
		return
	}

	pred, ok := n.view.Predecessor()
	if ok {
		if pred.ID == proposer.ID {
			return
		}
		closer, err := IsSelfPotentialSuccessor(proposer.ID, pred.ID, n.self.ID)
		if err != nil || !closer {
			return
		}
	}

	n.view.SetPredecessor(proposer)
	n.logger.Info().Int("predecessor", proposer.ID).Msg("Predecessor updated via claim")
	n.publish(EventStabilization, proposer, fmt.Sprintf("node %d is the new predecessor", proposer.ID))
}
