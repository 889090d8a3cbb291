package presence

import "time"

// DeltaKind names the transition that produced a Delta.
type DeltaKind string

const (
	DeltaRegistered   DeltaKind = "registered"
	DeltaUnregistered DeltaKind = "unregistered"
	DeltaInCall       DeltaKind = "in-call"
	DeltaBusy         DeltaKind = "busy"
	DeltaLive         DeltaKind = "live"
)

// Delta describes one presence transition together with the resulting
// snapshots of both sets.
type Delta struct {
	Kind  DeltaKind `json:"kind"`
	Users []string  `json:"users"`
	Live  []string  `json:"live"`
	Call  []string  `json:"call"`
	At    time.Time `json:"at"`
}

// Observer receives presence deltas. Implementations must not block: they
// are invoked while the hub holds its state lock.
type Observer interface {
	PresenceChanged(Delta)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Delta)

func (f ObserverFunc) PresenceChanged(d Delta) { f(d) }
