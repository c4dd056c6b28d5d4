package chord

import (
	"context"
)

// replicate copies a freshly applied PUT to the nearest successors under the
// same request ID. Replicas are not acknowledged.
func (n *ChordNode) replicate(ctx context.Context, msg *Message) {
	targets := n.view.TopSuccessors(n.config.ReplicaCount)
	for _, target := range targets {
		n.send(ctx, target.Address(), &Message{
			ID:      msg.ID,
			Command: CmdReplicaPut,
			Key:     msg.Key,
			Value:   msg.Value,
		})
	}
	if len(targets) > 0 {
		n.logger.Debug().
			Str("request_id", msg.ID.String()).
			Ints("replicas", nodeIDs(targets)).
			Msg("Replicated put")
	}
}

// handleReplica applies a replica operation to the local store. Only
// REPLICA_GET is answered, directly to the asking node.
func (n *ChordNode) handleReplica(ctx context.Context, from string, msg *Message) {
	key := string(msg.Key)

	switch msg.Command {
	case CmdReplicaPut:
		if err := n.store.Put(key, msg.Value); err != nil {
			n.logger.Warn().Err(err).Str("request_id", msg.ID.String()).Msg("Replica put failed")
		}
	case CmdReplicaRemove:
		if err := n.store.Remove(key); err != nil {
			n.logger.Debug().Err(err).Str("request_id", msg.ID.String()).Msg("Replica remove failed")
		}
	case CmdReplicaGet:
		value, err := n.store.Get(key)
		reply := msg.Reply(statusFor(err))
		reply.Value = value
		n.send(ctx, from, reply)
	}
}
