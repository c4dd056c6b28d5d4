package chord

import (
	"fmt"
	"net"
	"strconv"
)

// NoNodeID marks an absent node, e.g. the predecessor slot of a node list.
const NoNodeID = -1

// NoNode is the placeholder sent in place of a missing predecessor.
var NoNode = Node{ID: NoNodeID}

// Node represents a ring member: its identifier and network address.
type Node struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	ID   int    `json:"id"` // position on the ring, NoNodeID for a placeholder
}

// NewNode creates a Node with the given parameters.
func NewNode(host string, port, id int) Node {
	return Node{Host: host, Port: port, ID: id}
}

// String returns a human-readable representation of the node.
func (n Node) String() string {
	if n.IsNone() {
		return "Node{none}"
	}
	return fmt.Sprintf("Node{ID: %d, Addr: %s}", n.ID, n.Address())
}

// Address returns the network address in "host:port" format.
func (n Node) Address() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// Equals reports whether both nodes share host, port and ID.
func (n Node) Equals(other Node) bool {
	return n.ID == other.ID &&
		n.Host == other.Host &&
		n.Port == other.Port
}

// IsNone reports whether n is the placeholder for a missing node.
func (n Node) IsNone() bool {
	return n.ID < 0
}

// nodeIDs projects a node list onto its identifiers.
func nodeIDs(nodes []Node) []int {
	ids := make([]int, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
	}
	return ids
}
