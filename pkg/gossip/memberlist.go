package gossip

import "time"

// PeerSet is the ordered, duplicate-free list of peers fixed at startup.
// Peers are numbered from 1 in insertion order.

type Member struct {
	ID          int       // 1-based position in the PeerSet
	Name        NodeID    // hostname
	Confirmed   bool      // a pong from Name has been seen
	ConfirmedAt time.Time // zero until confirmed; self uses startup time
}

type PeerSet struct {
	names []NodeID
	index map[NodeID]int
}

func NewPeerSet(names ...NodeID) *PeerSet {
	ps := &PeerSet{index: make(map[NodeID]int)}
	for _, n := range names {
		ps.Add(n)
	}
	return ps
}

// Add appends name unless it is already present. It reports whether the
// name was added.
func (ps *PeerSet) Add(name NodeID) bool {
	if ps.index == nil {
		ps.index = make(map[NodeID]int)
	}
	if _, ok := ps.index[name]; ok {
		return false
	}
	ps.index[name] = len(ps.names)
	ps.names = append(ps.names, name)
	return true
}

func (ps *PeerSet) Len() int { return len(ps.names) }

func (ps *PeerSet) Names() []NodeID {
	return append([]NodeID(nil), ps.names...)
}

// IndexOf does an exact string match.
func (ps *PeerSet) IndexOf(name NodeID) (int, bool) {
	i, ok := ps.index[name]
	return i, ok
}

func (ps *PeerSet) Contains(name NodeID) bool {
	_, ok := ps.index[name]
	return ok
}

// LivenessTable holds one confirmed flag per PeerSet entry. A flag never
// goes back to false.
type LivenessTable struct {
	peers       *PeerSet
	confirmed   []bool
	confirmedAt []time.Time
	pending     int
}

func NewLivenessTable(peers *PeerSet) *LivenessTable {
	return &LivenessTable{
		peers:       peers,
		confirmed:   make([]bool, peers.Len()),
		confirmedAt: make([]time.Time, peers.Len()),
		pending:     peers.Len(),
	}
}

// Confirm marks the i-th peer confirmed. It reports whether the flag
// changed.
func (lt *LivenessTable) Confirm(i int, now time.Time) bool {
	if i < 0 || i >= len(lt.confirmed) || lt.confirmed[i] {
		return false
	}
	lt.confirmed[i] = true
	lt.confirmedAt[i] = now
	lt.pending--
	return true
}

func (lt *LivenessTable) Confirmed(i int) bool {
	return i >= 0 && i < len(lt.confirmed) && lt.confirmed[i]
}

func (lt *LivenessTable) ConfirmedCount() int { return len(lt.confirmed) - lt.pending }

// AllConfirmed is true for an empty table.
func (lt *LivenessTable) AllConfirmed() bool { return lt.pending == 0 }

// Flags returns a copy of the confirmed flags in PeerSet order.
func (lt *LivenessTable) Flags() []bool {
	return append([]bool(nil), lt.confirmed...)
}

// Members copies the table into a slice safe to hand to other goroutines.
func (lt *LivenessTable) Members() []Member {
	out := make([]Member, 0, len(lt.confirmed))
	for i, name := range lt.peers.names {
		out = append(out, Member{
			ID:          i + 1,
			Name:        name,
			Confirmed:   lt.confirmed[i],
			ConfirmedAt: lt.confirmedAt[i],
		})
	}
	return out
}
