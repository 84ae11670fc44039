package availability

import (
	"sync"

	"parkwise/internal/entities"
	"parkwise/internal/push"
)

// Subscription is the lot-scoped event feed a View consumes.
type Subscription interface {
	Events() <-chan push.Event
	Close()
}

// SlotView is a slot as rendered for the current vehicle hint.
type SlotView struct {
	entities.Slot
	Selectable bool `json:"selectable"`
}

// Snapshot is a consistent read of a View.
type Snapshot struct {
	LotID    string       `json:"lotId"`
	Hint     string       `json:"vehicleTypeHint,omitempty"`
	Slots    []SlotView   `json:"slots"`
	Counts   StatusCounts `json:"counts"`
	Degraded bool         `json:"degraded"`
}

// View holds the slot list of one lot and merges push events into it.
// The goroutine started by Start is the only writer of the slot list.
//
// Callbacks run on the view's goroutine (OnChange) or the caller's goroutine (OnSelect)
// and must not call Close.
type View struct {
	lotID string
	sub   Subscription

	onSelect func(entities.Slot)
	onChange func(Snapshot)

	mu       sync.RWMutex
	slots    []entities.Slot
	hint     string
	degraded bool
	started  bool
	closed   bool

	// Serialises selection callbacks with Close
	selectMu sync.Mutex

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewView creates a view over initial for lotID. Call Start to begin consuming sub.
func NewView(lotID string, initial []entities.Slot, hint string, sub Subscription) *View {
	slots := make([]entities.Slot, len(initial))
	copy(slots, initial)
	return &View{
		lotID: lotID,
		sub:   sub,
		slots: slots,
		hint:  hint,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// OnSelect sets the callback receiving selected slots. Must be set before Start.
func (v *View) OnSelect(fn func(entities.Slot)) { v.onSelect = fn }

// OnChange sets the callback receiving a snapshot after every state change. Must be set before Start.
func (v *View) OnChange(fn func(Snapshot)) { v.onChange = fn }

// LotID returns the lot this view tracks.
func (v *View) LotID() string { return v.lotID }

// Start launches the reducer goroutine. It is a no-op after Close or a second call.
func (v *View) Start() {
	v.mu.Lock()
	if v.started || v.closed {
		v.mu.Unlock()
		return
	}
	v.started = true
	v.mu.Unlock()

	go v.run()
}

func (v *View) run() {
	defer close(v.done)

	events := v.sub.Events()
	for {
		select {
		case <-v.quit:
			return
		case ev, ok := <-events:
			if !ok {
				// Feed ended without Close: keep the last snapshot, flag it stale
				v.update(func() bool {
					changed := !v.degraded
					v.degraded = true
					return changed
				})
				<-v.quit
				return
			}
			v.handle(ev)
		}
	}
}

func (v *View) handle(ev push.Event) {
	switch ev.Kind {
	case push.EventConnection:
		v.update(func() bool {
			changed := v.degraded == ev.Connected
			v.degraded = !ev.Connected
			return changed
		})
	case push.EventSlotChanged:
		if ev.Slot.LotID != v.lotID {
			return
		}
		v.update(func() bool {
			next, changed := Apply(v.slots, ev.Slot)
			v.slots = next
			return changed
		})
	}
}

// update runs mutate under the write lock and notifies OnChange when it reports a change.
func (v *View) update(mutate func() bool) {
	v.mu.Lock()
	if v.closed || !mutate() {
		v.mu.Unlock()
		return
	}
	snap := v.snapshotLocked()
	v.mu.Unlock()

	if v.onChange != nil {
		v.onChange(snap)
	}
}

// SetHint changes the vehicle category used to decide selectability.
func (v *View) SetHint(hint string) {
	v.update(func() bool {
		changed := v.hint != hint
		v.hint = hint
		return changed
	})
}

// SelectSlot emits the slot to OnSelect when it is currently selectable.
// It reports whether the selection was accepted.
func (v *View) SelectSlot(slotID string) (entities.Slot, bool) {
	v.selectMu.Lock()
	defer v.selectMu.Unlock()

	v.mu.RLock()
	if v.closed {
		v.mu.RUnlock()
		return entities.Slot{}, false
	}
	var (
		slot  entities.Slot
		found bool
	)
	for _, s := range v.slots {
		if s.ID == slotID {
			slot, found = s, true
			break
		}
	}
	hint := v.hint
	v.mu.RUnlock()

	if !found || !CanSelect(slot, hint) {
		return entities.Slot{}, false
	}
	if v.onSelect != nil {
		v.onSelect(slot)
	}
	return slot, true
}

// Slot returns the current record for slotID.
func (v *View) Slot(slotID string) (entities.Slot, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, s := range v.slots {
		if s.ID == slotID {
			return s, true
		}
	}
	return entities.Slot{}, false
}

// Snapshot returns the sorted slot list with derived counts.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	sorted := Sorted(v.slots)
	views := make([]SlotView, len(sorted))
	for i, s := range sorted {
		views[i] = SlotView{Slot: s, Selectable: CanSelect(s, v.hint)}
	}
	return Snapshot{
		LotID:    v.lotID,
		Hint:     v.hint,
		Slots:    views,
		Counts:   Counts(v.slots),
		Degraded: v.degraded,
	}
}

// Degraded reports whether live updates are currently unavailable.
func (v *View) Degraded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.degraded
}

// Close releases the subscription and stops the reducer. Once it returns, no event changes
// the view and no callback runs. Safe to call more than once.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		started := v.started
		v.mu.Unlock()

		close(v.quit)
		v.sub.Close()

		// Wait out an in-flight selection callback
		v.selectMu.Lock()
		v.selectMu.Unlock()

		if started {
			<-v.done
		}
	})
}
