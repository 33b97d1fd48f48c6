package eventbus

import (
	"github.com/rs/zerolog"
)

// scope is one level of listener registration: a map of event type to
// the ordered list of handlers registered for it.
type scope struct {
	handlers map[Type][]Handler
}

func newScope() *scope {
	return &scope{handlers: make(map[Type][]Handler)}
}

func (s *scope) on(t Type, h Handler) {
	s.handlers[t] = append(s.handlers[t], h)
}

// run invokes every handler registered for t, in registration order,
// stopping early if a handler sets halt. Each handler call is
// recovered individually so one panicking listener never prevents the
// rest from running.
func (s *scope) run(ev *Event, log *zerolog.Logger) {
	for _, h := range s.handlers[ev.Type] {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Stringer("event", ev.Type).Msg("eventbus: listener panicked")
				}
			}()
			h(ev)
		}()
		if ev.halt {
			return
		}
	}
}

// Bus is the process-wide event nexus. Every Conn obtains its
// own Scope from Bus.NewScope so that per-connection listeners never
// leak into another connection's delivery, while nexus listeners see
// every event regardless of which connection raised it.
type Bus struct {
	nexus *scope
	log   zerolog.Logger
}

// New returns an empty Bus. log receives a line for every listener
// panic it isolates.
func New(log zerolog.Logger) *Bus {
	return &Bus{nexus: newScope(), log: log.With().Str("component", "eventbus").Logger()}
}

// On registers a nexus-scope listener for t.
func (b *Bus) On(t Type, h Handler) {
	b.nexus.on(t, h)
}

// NewScope returns a fresh per-connection listener scope attached to
// this Bus.
func (b *Bus) NewScope() *Scope {
	return &Scope{bus: b, local: newScope()}
}

// Raise dispatches ev on the nexus scope only; used for events with no
// connection of origin (e.g. a process-wide going-down notice).
func (b *Bus) Raise(ev *Event) {
	b.nexus.run(ev, &b.log)
}

// Scope is a connection-local view onto a Bus: events raised through
// it are delivered to nexus listeners first, then to this scope's own
// listeners, unless a nexus listener halted the event first.
type Scope struct {
	bus   *Bus
	local *scope
}

// On registers a listener local to this connection scope.
func (s *Scope) On(t Type, h Handler) {
	s.local.on(t, h)
}

// Raise delivers ev to the nexus scope, then (if not halted) to this
// connection's own scope.
func (s *Scope) Raise(ev *Event) {
	s.bus.nexus.run(ev, &s.bus.log)
	if ev.halt {
		return
	}
	s.local.run(ev, &s.bus.log)
}
