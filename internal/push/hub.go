package push

import (
	"context"
	"sync"

	"parkwise/internal/logger"
)

const subscriptionBuffer = 256

// Hub fans slot events from one upstream Transport out to per-lot subscriptions.
// The transport joins a lot room when its first subscriber arrives and leaves when the last one goes.
type Hub struct {
	transport Transport
	log       *logger.Logger

	// Subscriptions by lot id
	lots map[string]map[*Subscription]bool

	register   chan *Subscription
	unregister chan *Subscription
	events     chan Event

	connected bool
	lastErr   error
	mu        sync.RWMutex

	done chan struct{}
}

// NewHub creates a hub reading from transport.
func NewHub(transport Transport, log *logger.Logger) *Hub {
	return &Hub{
		transport:  transport,
		log:        log,
		lots:       make(map[string]map[*Subscription]bool),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		events:     make(chan Event, subscriptionBuffer),
		done:       make(chan struct{}),
	}
}

// Run starts the transport and the hub's event loop. It blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	go func() {
		if err := h.transport.Run(ctx, h); err != nil && ctx.Err() == nil {
			h.log.Error("push transport stopped", "error", err)
		}
	}()

	defer func() {
		h.mu.Lock()
		for _, subs := range h.lots {
			for sub := range subs {
				sub.halt()
			}
		}
		h.lots = make(map[string]map[*Subscription]bool)
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-h.register:
			h.mu.Lock()
			subs, ok := h.lots[sub.lotID]
			if !ok {
				subs = make(map[*Subscription]bool)
				h.lots[sub.lotID] = subs
			}
			subs[sub] = true
			connected, lastErr := h.connected, h.lastErr
			h.mu.Unlock()

			if !ok {
				h.transport.Join(sub.lotID)
			}
			sub.offer(Event{Kind: EventConnection, Connected: connected, Err: lastErr})
			h.log.Debug("lot subscriber added", "lot_id", sub.lotID, "subscribers", len(subs))

		case sub := <-h.unregister:
			h.remove(sub)

		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Kind == EventConnection {
		h.connected = ev.Connected
		h.lastErr = ev.Err
		for _, subs := range h.lots {
			for sub := range subs {
				sub.offer(ev)
			}
		}
		return
	}
	for sub := range h.lots[ev.Slot.LotID] {
		sub.offer(ev)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	subs, ok := h.lots[sub.lotID]
	if !ok || !subs[sub] {
		h.mu.Unlock()
		return
	}
	delete(subs, sub)
	sub.halt()
	last := len(subs) == 0
	if last {
		delete(h.lots, sub.lotID)
	}
	h.mu.Unlock()

	if last {
		h.transport.Leave(sub.lotID)
	}
	h.log.Debug("lot subscriber removed", "lot_id", sub.lotID)
}

// SlotChanged implements Sink.
func (h *Hub) SlotChanged(ev SlotChanged) {
	h.enqueue(Event{Kind: EventSlotChanged, Slot: ev})
}

// ConnectionChanged implements Sink.
func (h *Hub) ConnectionChanged(connected bool, err error) {
	if connected {
		h.log.Info("push channel connected")
	} else {
		h.log.Warn("push channel disconnected", "error", err)
	}
	h.enqueue(Event{Kind: EventConnection, Connected: connected, Err: err})
}

func (h *Hub) enqueue(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// Subscribe registers interest in one lot's slot events. The first event delivered is
// always the current connection state. If the hub has stopped, the returned
// subscription's channel is already closed.
func (h *Hub) Subscribe(lotID string) *Subscription {
	sub := &Subscription{
		hub:     h,
		lotID:   lotID,
		events:  make(chan Event, subscriptionBuffer),
		pending: make(map[eventKey]Event),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	select {
	case h.register <- sub:
		go sub.pump()
	case <-h.done:
		close(sub.events)
	}
	return sub
}

// Connected reports whether the upstream push channel is currently up.
func (h *Hub) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// SubscriberCount returns the number of subscriptions for lotID.
func (h *Hub) SubscriberCount(lotID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.lots[lotID])
}

// Subscription is one consumer's view of a lot's events. Events the consumer
// has not yet read are coalesced per slot, so a slow reader still ends up
// with the latest state of every slot instead of being cut off.
type Subscription struct {
	hub    *Hub
	lotID  string
	events chan Event
	once   sync.Once

	mu      sync.Mutex
	order   []eventKey
	pending map[eventKey]Event
	halted  bool
	wake    chan struct{}
	stop    chan struct{}
}

type eventKey struct {
	kind   EventKind
	slotID string
}

// LotID returns the subscribed lot.
func (s *Subscription) LotID() string { return s.lotID }

// Events is closed once the subscription ends.
func (s *Subscription) Events() <-chan Event { return s.events }

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
	})
}

// offer queues ev, replacing any undelivered event for the same slot.
func (s *Subscription) offer(ev Event) {
	key := eventKey{kind: ev.Kind}
	if ev.Kind == EventSlotChanged {
		key.slotID = ev.Slot.SlotID
	}

	s.mu.Lock()
	if s.halted {
		s.mu.Unlock()
		return
	}
	if _, queued := s.pending[key]; !queued {
		s.order = append(s.order, key)
	}
	s.pending[key] = ev
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return Event{}, false
	}
	key := s.order[0]
	s.order = s.order[1:]
	ev := s.pending[key]
	delete(s.pending, key)
	return ev, true
}

// pump moves queued events onto the channel and closes it after halt.
func (s *Subscription) pump() {
	defer close(s.events)
	for {
		ev, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		select {
		case <-s.stop:
			return
		default:
		}
		select {
		case s.events <- ev:
		case <-s.stop:
			return
		}
	}
}

func (s *Subscription) halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.halted {
		s.halted = true
		close(s.stop)
	}
}
