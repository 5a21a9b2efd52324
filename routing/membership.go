package routing

import (
	"fmt"
	"sort"
)

// Membership is the cluster view a node receives in its handshake.
// It never changes after construction.
type Membership struct {
	self  string
	nodes []string
	index map[string]int
}

// NewMembership builds the view for self from the full node list.
// self is added if nodeIDs omits it.
func NewMembership(self string, nodeIDs []string) (*Membership, error) {
	if self == "" {
		return nil, fmt.Errorf("node id cannot be empty")
	}

	nodes := make([]string, 0, len(nodeIDs))
	index := make(map[string]int, len(nodeIDs))
	for _, id := range nodeIDs {
		if _, exists := index[id]; exists {
			return nil, fmt.Errorf("node %s listed more than once", id)
		}
		index[id] = -1
		nodes = append(nodes, id)
	}
	if _, ok := index[self]; !ok {
		nodes = append(nodes, self)
	}
	sort.Strings(nodes)
	for i, id := range nodes {
		index[id] = i
	}

	return &Membership{
		self:  self,
		nodes: nodes,
		index: index,
	}, nil
}

// Self returns this node's id
func (m *Membership) Self() string {
	return m.self
}

// Nodes returns every member, self included, in sorted order
func (m *Membership) Nodes() []string {
	nodes := make([]string, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// Peers returns every member except self, in sorted order
func (m *Membership) Peers() []string {
	peers := make([]string, 0, len(m.nodes))
	for _, id := range m.nodes {
		if id != m.self {
			peers = append(peers, id)
		}
	}
	return peers
}

// Contains reports whether id is a cluster member
func (m *Membership) Contains(id string) bool {
	_, ok := m.index[id]
	return ok
}

// IndexOf returns id's position in the sorted member list, or -1
func (m *Membership) IndexOf(id string) int {
	if i, ok := m.index[id]; ok {
		return i
	}
	return -1
}

// Size returns the number of members
func (m *Membership) Size() int {
	return len(m.nodes)
}
