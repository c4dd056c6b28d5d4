package chord

import (
	"sync"
)

// DefaultMaxSuccessors bounds the successor list when no limit is configured.
const DefaultMaxSuccessors = 50

// RingView is a node's local picture of the ring: itself, an optional
// predecessor and an ordered successor list, nearest first.
//
// The successor list never contains self or the same ID twice. The predecessor
// may also appear as a successor, which is the normal shape of a two-node ring.
type RingView struct {
	self          Node
	maxSuccessors int
	removed       *RemovedNodes

	mu          sync.RWMutex
	predecessor *Node
	successors  []Node
}

// NewRingView creates an empty view for self. removed may be nil, in which case
// no suppression is applied.
func NewRingView(self Node, maxSuccessors int, removed *RemovedNodes) *RingView {
	if maxSuccessors <= 0 {
		maxSuccessors = DefaultMaxSuccessors
	}
	return &RingView{
		self:          self,
		maxSuccessors: maxSuccessors,
		removed:       removed,
		successors:    make([]Node, 0, maxSuccessors),
	}
}

// Self returns this node.
func (v *RingView) Self() Node {
	return v.self
}

// Predecessor returns the predecessor, if known.
func (v *RingView) Predecessor() (Node, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.predecessor == nil {
		return Node{}, false
	}
	return *v.predecessor, true
}

// PredecessorID returns the predecessor's ID or NoNodeID.
func (v *RingView) PredecessorID() int {
	if pred, ok := v.Predecessor(); ok {
		return pred.ID
	}
	return NoNodeID
}

// SetPredecessor replaces the predecessor. Self is never accepted.
func (v *RingView) SetPredecessor(node Node) {
	if node.IsNone() || node.ID == v.self.ID {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.predecessor = &node
}

// RemovePredecessor clears the predecessor if it is still node, drops node from
// the successor list as well and reports whether anything changed.
func (v *RingView) RemovePredecessor(node Node) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.predecessor == nil || v.predecessor.ID != node.ID {
		return false
	}
	v.predecessor = nil
	v.successors = withoutID(v.successors, node.ID)
	return true
}

// Successors returns a copy of the successor list.
func (v *RingView) Successors() []Node {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]Node(nil), v.successors...)
}

// SuccessorIDs returns the IDs of the successor list in order.
func (v *RingView) SuccessorIDs() []int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return nodeIDs(v.successors)
}

// FirstSuccessor returns the nearest successor, if any.
func (v *RingView) FirstSuccessor() (Node, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.successors) == 0 {
		return Node{}, false
	}
	return v.successors[0], true
}

// LastSuccessor returns the farthest known successor, if any.
func (v *RingView) LastSuccessor() (Node, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.successors) == 0 {
		return Node{}, false
	}
	return v.successors[len(v.successors)-1], true
}

// TopSuccessors returns up to k nearest successors.
func (v *RingView) TopSuccessors(k int) []Node {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if k > len(v.successors) {
		k = len(v.successors)
	}
	if k <= 0 {
		return nil
	}
	return append([]Node(nil), v.successors[:k]...)
}

// SetSuccessorList replaces the successor list with nodes, in order, skipping
// self, duplicates and nodes still inside their suppression window, and
// truncating to the configured maximum. Returns the accepted list.
func (v *RingView) SetSuccessorList(nodes []Node) []Node {
	// suppression is consulted before taking the view lock
	accepted := make([]Node, 0, len(nodes))
	seen := make(map[int]struct{}, len(nodes))
	for _, node := range nodes {
		if len(accepted) == v.maxSuccessors {
			break
		}
		if node.IsNone() || node.ID == v.self.ID {
			continue
		}
		if _, dup := seen[node.ID]; dup {
			continue
		}
		if v.removed != nil {
			if v.removed.Suppressed(node.ID) {
				continue
			}
			if v.removed.Contains(node.ID) {
				v.removed.Forget(node.ID)
			}
		}
		seen[node.ID] = struct{}{}
		accepted = append(accepted, node)
	}

	v.mu.Lock()
	v.successors = accepted
	v.mu.Unlock()

	return append([]Node(nil), accepted...)
}

// AddFirstSuccessor puts node at the head of the successor list, removing any
// older entry with the same ID and trimming the tail to the maximum.
func (v *RingView) AddFirstSuccessor(node Node) {
	if node.IsNone() || node.ID == v.self.ID {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	list := make([]Node, 0, v.maxSuccessors)
	list = append(list, node)
	for _, succ := range v.successors {
		if len(list) == v.maxSuccessors {
			break
		}
		if succ.ID != node.ID {
			list = append(list, succ)
		}
	}
	v.successors = list
}

// RemoveFirstSuccessor drops the nearest successor and returns it. If it was
// also the predecessor, the predecessor is cleared.
func (v *RingView) RemoveFirstSuccessor() (Node, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.successors) == 0 {
		return Node{}, false
	}
	first := v.successors[0]
	v.successors = append([]Node(nil), v.successors[1:]...)

	if v.predecessor != nil && v.predecessor.ID == first.ID {
		v.predecessor = nil
	}
	return first, true
}

// NodeByID looks up a known node, successors first, then the predecessor.
func (v *RingView) NodeByID(id int) (Node, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, succ := range v.successors {
		if succ.ID == id {
			return succ, true
		}
	}
	if v.predecessor != nil && v.predecessor.ID == id {
		return *v.predecessor, true
	}
	if v.self.ID == id {
		return v.self, true
	}
	return Node{}, false
}

// Contains reports whether id is self, the predecessor or a successor.
func (v *RingView) Contains(id int) bool {
	_, ok := v.NodeByID(id)
	return ok
}

// WithSelf returns [self, successors...], the payload of a JOIN-OK.
func (v *RingView) WithSelf() []Node {
	v.mu.RLock()
	defer v.mu.RUnlock()

	list := make([]Node, 0, len(v.successors)+1)
	list = append(list, v.self)
	return append(list, v.successors...)
}

// NodeList returns [predecessor|NoNode, self, successors...], the payload of
// liveness and node-list replies.
func (v *RingView) NodeList() []Node {
	v.mu.RLock()
	defer v.mu.RUnlock()

	list := make([]Node, 0, len(v.successors)+2)
	if v.predecessor != nil {
		list = append(list, *v.predecessor)
	} else {
		list = append(list, NoNode)
	}
	list = append(list, v.self)
	return append(list, v.successors...)
}

// Snapshot is a consistent copy of the view.
type Snapshot struct {
	Self        Node   `json:"self"`
	Predecessor *Node  `json:"predecessor"`
	Successors  []Node `json:"successors"`
}

// Snapshot returns predecessor and successors read under one lock.
func (v *RingView) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	snap := Snapshot{
		Self:       v.self,
		Successors: append([]Node{}, v.successors...),
	}
	if v.predecessor != nil {
		pred := *v.predecessor
		snap.Predecessor = &pred
	}
	return snap
}

// PredecessorID returns the snapshot predecessor's ID or NoNodeID.
func (s Snapshot) PredecessorID() int {
	if s.Predecessor == nil {
		return NoNodeID
	}
	return s.Predecessor.ID
}

// SuccessorIDs returns the snapshot successor IDs.
func (s Snapshot) SuccessorIDs() []int {
	return nodeIDs(s.Successors)
}

// Lookup finds a node of the snapshot by ID.
func (s Snapshot) Lookup(id int) (Node, bool) {
	for _, succ := range s.Successors {
		if succ.ID == id {
			return succ, true
		}
	}
	if s.Predecessor != nil && s.Predecessor.ID == id {
		return *s.Predecessor, true
	}
	if s.Self.ID == id {
		return s.Self, true
	}
	return Node{}, false
}

func withoutID(nodes []Node, id int) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}
