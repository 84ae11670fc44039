package push

import "context"

// Sink receives what a Transport reads off the wire.
type Sink interface {
	SlotChanged(ev SlotChanged)
	ConnectionChanged(connected bool, err error)
}

// Transport is an upstream source of slot events scoped by lot.
// Join and Leave must not block; they may be called before Run.
type Transport interface {
	Run(ctx context.Context, sink Sink) error
	Join(lotID string)
	Leave(lotID string)
}

// lotSet is the join bookkeeping shared by transports. Not safe for concurrent use.
type lotSet map[string]struct{}

func (s lotSet) add(lotID string) bool {
	if _, ok := s[lotID]; ok {
		return false
	}
	s[lotID] = struct{}{}
	return true
}

func (s lotSet) remove(lotID string) bool {
	if _, ok := s[lotID]; !ok {
		return false
	}
	delete(s, lotID)
	return true
}

func (s lotSet) has(lotID string) bool {
	_, ok := s[lotID]
	return ok
}

func (s lotSet) list() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}
