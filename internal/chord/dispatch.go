package chord

import (
	"context"
)

// HandleMessage processes one inbound datagram from addr. It is safe to call
// concurrently; every reply or onward message goes through the transport and
// no error escapes to the caller.
func (n *ChordNode) HandleMessage(ctx context.Context, from string, msg *Message) {
	if msg == nil {
		return
	}

	switch msg.Command {
	case CmdPut:
		n.handleClientKV(ctx, from, msg, opPut)
	case CmdGet:
		n.handleClientKV(ctx, from, msg, opGet)
	case CmdRemove:
		n.handleClientKV(ctx, from, msg, opRemove)

	case CmdForwardPut:
		n.routeKV(ctx, msg, opPut, false)
	case CmdForwardGet:
		n.routeKV(ctx, msg, opGet, false)
	case CmdForwardRemove:
		n.routeKV(ctx, msg, opRemove, false)

	case CmdPotentialPut:
		n.routeKV(ctx, msg, opPut, true)
	case CmdPotentialGet:
		n.routeKV(ctx, msg, opGet, true)
	case CmdPotentialRemove:
		n.routeKV(ctx, msg, opRemove, true)

	case CmdReplicaPut, CmdReplicaGet, CmdReplicaRemove:
		n.handleReplica(ctx, from, msg)

	case CmdJoin, CmdForwardJoin, CmdPotentialJoin:
		n.handleJoin(ctx, from, msg)

	case CmdPredAlive:
		n.send(ctx, from, msg.Reply(CodePredAliveReply))
	case CmdSuccAlive:
		reply := msg.Reply(CodeSuccAliveReply)
		reply.Nodes = n.view.NodeList()
		n.send(ctx, from, reply)
	case CmdClaimPredecessor:
		n.handleClaimPredecessor(msg)

	case CmdNodeList:
		reply := msg.Reply(CodeNodeListResponse)
		reply.Nodes = n.view.NodeList()
		n.send(ctx, from, reply)

	case CmdShutdown:
		n.send(ctx, from, msg.Reply(CodeSuccess))
		n.logger.Info().Str("from", from).Msg("Shutdown requested")
		n.shutdownOnce.Do(func() { close(n.shutdownRequested) })

	case CodeClientForwardResponse:
		n.handleClientForwardResponse(ctx, msg)

	default:
		if msg.Command.IsReply() {
			n.logger.Debug().
				Str("from", from).
				Stringer("command", msg.Command).
				Msg("Dropping stray reply")
			return
		}
		n.logger.Debug().
			Str("from", from).
			Stringer("command", msg.Command).
			Msg("Unrecognized command")
		n.send(ctx, from, msg.Reply(CodeUnrecognizedCommand))
	}
}
