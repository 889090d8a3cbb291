package presence

// State is the coarse call state of one user.
type State int

const (
	Offline State = iota
	Live
	InCall
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case InCall:
		return "in-call"
	default:
		return "offline"
	}
}

// Tracker maintains the two presence sets. live and call are kept disjoint by
// every mutator.
type Tracker struct {
	live *orderedSet
	call *orderedSet
}

func NewTracker() *Tracker {
	return &Tracker{
		live: newOrderedSet(),
		call: newOrderedSet(),
	}
}

// MarkLive moves userID into the live set.
func (t *Tracker) MarkLive(userID string) bool {
	removed := t.call.Remove(userID)
	inserted := t.live.Insert(userID)
	return removed || inserted
}

// MarkInCall moves userID into the call set.
func (t *Tracker) MarkInCall(userID string) bool {
	removed := t.live.Remove(userID)
	inserted := t.call.Insert(userID)
	return removed || inserted
}

// MarkBusy removes userID from the live set without adding it to the call
// set. It models a user who is negotiating a call that is not yet confirmed.
func (t *Tracker) MarkBusy(userID string) bool {
	return t.live.Remove(userID)
}

// Clear removes userID from both sets.
func (t *Tracker) Clear(userID string) bool {
	a := t.live.Remove(userID)
	b := t.call.Remove(userID)
	return a || b
}

func (t *Tracker) State(userID string) State {
	switch {
	case t.call.Contains(userID):
		return InCall
	case t.live.Contains(userID):
		return Live
	default:
		return Offline
	}
}

func (t *Tracker) SnapshotLive() []string { return t.live.Snapshot() }
func (t *Tracker) SnapshotCall() []string { return t.call.Snapshot() }

// Len returns the sizes of the live and call sets.
func (t *Tracker) Len() (live, call int) { return t.live.Len(), t.call.Len() }
