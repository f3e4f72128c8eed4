// Package routing maps a group and key to the node(s) responsible for it.
// The ring implementation is adapted from the consistent-hashing virtual
// node ring used elsewhere in the retrieved pack: SHA-256 hashed virtual
// nodes laid out in a sorted slice, located by binary search, guarded by an
// RWMutex since lookups vastly outnumber membership changes.
package routing

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/meshkv/meshkv/key"
)

// Table answers "who owns this key" queries for a group, and lists the
// current members of a group. Implementations must be safe for concurrent
// use; dispatch and transport call Locate/Members from many goroutines at
// once and only rarely mutate membership.
type Table interface {
	Locate(group key.GroupID, k key.Key) (key.NodeAddress, bool)
	// LocateN returns up to n distinct nodes for k, ordered by ring
	// position starting at Locate's answer. No dispatch strategy in this
	// module calls it; every strategy routes through Locate or Members.
	LocateN(group key.GroupID, k key.Key, n int) []key.NodeAddress
	Members(group key.GroupID) []key.NodeAddress
}

const virtualFactor = 64

// Ring is a Table backed by one consistent-hash ring per group.
type Ring struct {
	mu     sync.RWMutex
	groups map[key.GroupID]*groupRing
}

type groupRing struct {
	hashToNode map[uint64]key.NodeAddress
	nodeHashes map[string][]uint64
	sorted     []uint64
}

// NewRing returns an empty routing table.
func NewRing() *Ring {
	return &Ring{groups: make(map[key.GroupID]*groupRing)}
}

// AddNode registers node as a member of group, creating the group's ring on
// first use.
func (r *Ring) AddNode(group key.GroupID, node key.NodeAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[group]
	if !ok {
		g = &groupRing{
			hashToNode: make(map[uint64]key.NodeAddress),
			nodeHashes: make(map[string][]uint64),
		}
		r.groups[group] = g
	}

	id := node.String()
	if _, exists := g.nodeHashes[id]; exists {
		return
	}
	hashes := make([]uint64, virtualFactor)
	for i := 0; i < virtualFactor; i++ {
		h := ringHash([]byte(fmt.Sprintf("%s#%d", id, i)))
		hashes[i] = h
		g.hashToNode[h] = node
	}
	g.nodeHashes[id] = hashes
	g.resort()
}

// RemoveNode removes node from group. Reports whether it was present.
func (r *Ring) RemoveNode(group key.GroupID, node key.NodeAddress) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[group]
	if !ok {
		return false
	}
	id := node.String()
	hashes, ok := g.nodeHashes[id]
	if !ok {
		return false
	}
	for _, h := range hashes {
		delete(g.hashToNode, h)
	}
	delete(g.nodeHashes, id)
	g.resort()
	return true
}

func (g *groupRing) resort() {
	all := make([]uint64, 0, len(g.hashToNode))
	for h := range g.hashToNode {
		all = append(all, h)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	g.sorted = all
}

func (r *Ring) Locate(group key.GroupID, k key.Key) (key.NodeAddress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[group]
	if !ok || len(g.sorted) == 0 {
		return key.NodeAddress{}, false
	}
	h := ringHash(k[:])
	pos := sort.Search(len(g.sorted), func(i int) bool { return g.sorted[i] > h })
	if pos >= len(g.sorted) {
		pos = 0
	}
	return g.hashToNode[g.sorted[pos]], true
}

func (r *Ring) LocateN(group key.GroupID, k key.Key, n int) []key.NodeAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[group]
	if !ok || len(g.sorted) == 0 || n <= 0 {
		return nil
	}
	h := ringHash(k[:])
	start := sort.Search(len(g.sorted), func(i int) bool { return g.sorted[i] > h })

	seen := make(map[string]bool, n)
	out := make([]key.NodeAddress, 0, n)
	for i := 0; i < len(g.sorted) && len(out) < n; i++ {
		pos := (start + i) % len(g.sorted)
		node := g.hashToNode[g.sorted[pos]]
		id := node.String()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, node)
	}
	return out
}

func (r *Ring) Members(group key.GroupID) []key.NodeAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[group]
	if !ok {
		return nil
	}
	out := make([]key.NodeAddress, 0, len(g.nodeHashes))
	for id := range g.nodeHashes {
		for _, h := range g.sorted {
			if n, ok := g.hashToNode[h]; ok && n.String() == id {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func ringHash(b []byte) uint64 {
	sum := sha256.Sum256(b)
	return binary.BigEndian.Uint64(sum[:8])
}
