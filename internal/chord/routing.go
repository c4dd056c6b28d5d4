package chord

import (
	"fmt"

	"github.com/zde37/ringkv/pkg/hash"
)

// IsSelfPotentialSuccessor reports whether requestID falls in (predecessorID, selfID],
// i.e. whether this node is responsible for it.
func IsSelfPotentialSuccessor(requestID, predecessorID, selfID int) (bool, error) {
	if predecessorID < 0 || selfID < 0 {
		return false, fmt.Errorf("%w: predecessor=%d self=%d", ErrInvalidArgument, predecessorID, selfID)
	}
	return hash.InRange(requestID, predecessorID, selfID)
}

// FindPotentialSuccessor searches the local view for the node responsible for requestID.
// predecessorID is NoNodeID when unknown. found is false when no known arc contains the
// ID; callers then fall back to forwarding along the ring.
func FindPotentialSuccessor(requestID, predecessorID, selfID int, successors []int) (id int, found bool, err error) {
	if requestID < 0 || selfID < 0 {
		return 0, false, fmt.Errorf("%w: request=%d self=%d", ErrInvalidArgument, requestID, selfID)
	}
	if predecessorID >= 0 && len(successors) == 0 {
		return 0, false, fmt.Errorf("%w: predecessor %d known without successors", ErrInvalidState, predecessorID)
	}

	if predecessorID >= 0 {
		ok, err := hash.InRange(requestID, predecessorID, selfID)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return selfID, true, nil
		}
	}

	lo := selfID
	for _, succ := range successors {
		ok, err := hash.InRange(requestID, lo, succ)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return succ, true, nil
		}
		lo = succ
	}
	return 0, false, nil
}

// RouteKeyToOwner picks the node a key request should go to: self, the
// predecessor, or a successor chosen by ID proximity. The choice is advisory;
// the receiver re-checks ownership against its own view.
func RouteKeyToOwner(keyID, selfID, predecessorID int, successors []int) (int, error) {
	if keyID < 0 || selfID < 0 {
		return 0, fmt.Errorf("%w: key=%d self=%d", ErrInvalidArgument, keyID, selfID)
	}

	if predecessorID >= 0 {
		if keyID == predecessorID {
			return predecessorID, nil
		}
		ok, err := hash.InRange(keyID, predecessorID, selfID)
		if err != nil {
			return 0, err
		}
		if ok {
			return selfID, nil
		}
	}

	if keyID == selfID || (predecessorID < 0 && len(successors) == 0) {
		return selfID, nil
	}
	if len(successors) == 0 {
		return 0, fmt.Errorf("%w: predecessor %d known without successors", ErrInvalidState, predecessorID)
	}

	// exact match, else the smallest successor ID not below the key
	best := -1
	for _, succ := range successors {
		if succ == keyID {
			return succ, nil
		}
		if succ > keyID && (best < 0 || succ < best) {
			best = succ
		}
	}
	if best >= 0 {
		return best, nil
	}

	minIdx, maxIdx := 0, 0
	for i, succ := range successors {
		if succ < successors[minIdx] {
			minIdx = i
		}
		if succ > successors[maxIdx] {
			maxIdx = i
		}
	}
	if minIdx != 0 {
		return successors[minIdx], nil
	}
	return successors[maxIdx], nil
}

// Action is what a node does with a routed request.
type Action int

const (
	// ActionLocal serves the request on this node.
	ActionLocal Action = iota
	// ActionPotential hands the request to the node believed responsible, which
	// serves it or walks it back through predecessors.
	ActionPotential
	// ActionForward hands the request to a node that routes it from scratch.
	ActionForward
	// ActionDrop discards the request.
	ActionDrop
)

func (a Action) String() string {
	switch a {
	case ActionLocal:
		return "local"
	case ActionPotential:
		return "potential"
	case ActionForward:
		return "forward"
	default:
		return "drop"
	}
}

// Decision is the outcome of a routing step.
type Decision struct {
	Action   Action
	TargetID int // meaningful for ActionPotential and ActionForward
}

// DecideKeyRoute routes a client or forwarded key request. A node in the
// local view whose arc holds the key gets a one-hop potential-owner message;
// otherwise the request goes to the last successor, which routes it again.
func DecideKeyRoute(keyID, selfID, predecessorID int, successors []int) (Decision, error) {
	switch {
	case predecessorID < 0 && len(successors) == 0:
		return Decision{Action: ActionLocal}, nil
	case predecessorID < 0 && keyID == selfID:
		return Decision{Action: ActionLocal}, nil
	}

	candidate, found, err := FindPotentialSuccessor(keyID, predecessorID, selfID, successors)
	if err != nil {
		return Decision{Action: ActionDrop}, err
	}
	if !found {
		return Decision{Action: ActionForward, TargetID: successors[len(successors)-1]}, nil
	}
	if candidate == selfID {
		return Decision{Action: ActionLocal}, nil
	}
	return Decision{Action: ActionPotential, TargetID: candidate}, nil
}

// DecidePotentialRoute handles a request addressed to this node as the likely
// owner. It never derives a new route: either this node is responsible or the
// request moves one hop back to the predecessor.
func DecidePotentialRoute(requestID, selfID, predecessorID int, hasSuccessors bool) (Decision, error) {
	if predecessorID < 0 {
		if requestID == selfID || !hasSuccessors {
			return Decision{Action: ActionLocal}, nil
		}
		return Decision{Action: ActionDrop}, nil
	}
	if !hasSuccessors {
		return Decision{Action: ActionDrop}, fmt.Errorf("%w: predecessor %d known without successors", ErrInvalidState, predecessorID)
	}

	ok, err := IsSelfPotentialSuccessor(requestID, predecessorID, selfID)
	if err != nil {
		return Decision{Action: ActionDrop}, err
	}
	if ok {
		return Decision{Action: ActionLocal}, nil
	}
	return Decision{Action: ActionPotential, TargetID: predecessorID}, nil
}

// DecideJoinRoute routes a JOIN or FWD_JOIN for joinID. ActionLocal means admit
// the joining node as predecessor.
func DecideJoinRoute(joinID, selfID, predecessorID int, successors []int) (Decision, error) {
	switch {
	case predecessorID < 0 && len(successors) == 0:
		return Decision{Action: ActionLocal}, nil
	case predecessorID >= 0 && len(successors) == 0:
		return Decision{Action: ActionDrop}, nil
	}

	candidate, found, err := FindPotentialSuccessor(joinID, predecessorID, selfID, successors)
	if err != nil {
		return Decision{Action: ActionDrop}, err
	}
	if !found {
		return Decision{Action: ActionForward, TargetID: successors[len(successors)-1]}, nil
	}
	if candidate == selfID {
		return Decision{Action: ActionLocal}, nil
	}
	return Decision{Action: ActionPotential, TargetID: candidate}, nil
}
