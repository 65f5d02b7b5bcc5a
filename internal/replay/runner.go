package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bilal/v2x-telemetry-agent/internal/forwarder"
	"github.com/bilal/v2x-telemetry-agent/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNoFix = errors.New("no position fix yet")

// Factory builds the forwarder for one node. The runner calls Setup on it.
type Factory func(host forwarder.Host, mobility forwarder.Mobility) *forwarder.Forwarder

// simClock is the single simulation clock shared by all nodes.
type simClock struct {
	now float64
}

type fix struct {
	at  float64
	pos telemetry.Coord
}

// node is what the simulator provides to one vehicle's application layer:
// its name, the clock and its mobility track.
type node struct {
	name  string
	clock *simClock
	track []fix
}

func (n *node) Now() float64     { return n.clock.now }
func (n *node) NodeName() string { return n.name }

// PositionAt returns the latest fix at or before t.
func (n *node) PositionAt(t float64) (telemetry.Coord, error) {
	i := sort.Search(len(n.track), func(i int) bool { return n.track[i].at > t })
	if i == 0 {
		return telemetry.Coord{}, fmt.Errorf("%w: %s at %v", ErrNoFix, n.name, t)
	}
	return n.track[i-1].pos, nil
}

// Stats summarizes a finished run.
type Stats struct {
	Events int
	Nodes  int
}

// Runner stands in for the simulation kernel: it delivers trace events to
// per-node forwarders one at a time, in trace order.
type Runner struct {
	events  []Event
	speed   float64
	factory Factory
	logger  zerolog.Logger

	clock *simClock

	// mu guards the node tables; Active is read from the health server.
	mu    sync.RWMutex
	nodes map[string]*node
	fwds  map[string]*forwarder.Forwarder
	order []string

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner prepares a replay. speed 0 delivers events back to back;
// otherwise simulated seconds are divided by speed.
func NewRunner(events []Event, speed float64, factory Factory) *Runner {
	return &Runner{
		events:  events,
		speed:   speed,
		factory: factory,
		logger:  log.With().Str("component", "replay").Logger(),
		clock:   &simClock{},
		nodes:   make(map[string]*node),
		fwds:    make(map[string]*forwarder.Forwarder),
		sleep:   sleepCtx,
	}
}

// WithLogger replaces the runner's logger.
func (r *Runner) WithLogger(l zerolog.Logger) *Runner {
	r.logger = l
	return r
}

// Run delivers every event and tears all forwarders down before
// returning, also when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	r.logger.Info().Int("events", len(r.events)).Float64("speed", r.speed).Msg("replay started")
	defer r.teardown()

	var stats Stats
	for _, ev := range r.events {
		if err := ctx.Err(); err != nil {
			r.logger.Warn().Int("delivered", stats.Events).Msg("replay cancelled")
			stats.Nodes = r.nodeCount()
			return stats, err
		}
		if err := r.pace(ctx, ev.Time); err != nil {
			r.logger.Warn().Int("delivered", stats.Events).Msg("replay cancelled")
			stats.Nodes = r.nodeCount()
			return stats, err
		}

		r.clock.now = ev.Time
		r.dispatch(ev)
		stats.Events++
	}

	stats.Nodes = r.nodeCount()
	r.logger.Info().Int("events", stats.Events).Int("nodes", stats.Nodes).Msg("replay finished")
	return stats, nil
}

// Active counts forwarders currently holding an open socket.
func (r *Runner) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, name := range r.order {
		if r.fwds[name].State() == forwarder.StateActive {
			n++
		}
	}
	return n
}

func (r *Runner) nodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Runner) pace(ctx context.Context, next float64) error {
	if r.speed <= 0 {
		return nil
	}
	dt := next - r.clock.now
	if dt <= 0 {
		return nil
	}
	return r.sleep(ctx, time.Duration(dt/r.speed*float64(time.Second)))
}

func (r *Runner) dispatch(ev Event) {
	n, f := r.forwarderFor(ev.Node)

	switch ev.Type {
	case EventPosition:
		n.track = append(n.track, fix{at: ev.Time, pos: *ev.Pos})
		f.OnPositionUpdate()

	case EventBeacon:
		f.OnBeacon(&forwarder.Beacon{Name: nameOr(ev.Name, "beacon"), SenderID: ev.Sender, SenderPos: *ev.Pos})

	case EventMessage:
		if ev.Pos != nil {
			f.OnMessage(&forwarder.Beacon{Name: nameOr(ev.Name, "data"), SenderID: ev.Sender, SenderPos: *ev.Pos})
			return
		}
		f.OnMessage(&forwarder.Frame{Name: nameOr(ev.Name, "data"), SenderID: ev.Sender})

	case EventAdvert:
		f.OnServiceAdvert(&forwarder.ServiceAdvert{Name: nameOr(ev.Name, "wsa"), Description: ev.Text})

	case EventNull:
		switch strings.ToUpper(ev.Name) {
		case "BSM":
			f.OnBeacon(nil)
		case "WSM":
			f.OnMessage(nil)
		case "WSA":
			f.OnServiceAdvert(nil)
		}
	}
}

// forwarderFor creates the node's forwarder when the node first appears,
// like the simulator instantiating an application module.
func (r *Runner) forwarderFor(name string) (*node, *forwarder.Forwarder) {
	r.mu.RLock()
	f, ok := r.fwds[name]
	n := r.nodes[name]
	r.mu.RUnlock()
	if ok {
		return n, f
	}

	n = &node{name: name, clock: r.clock}
	f = r.factory(n, n)
	if err := f.Setup(); err != nil {
		// the forwarder stays disabled; the node still takes part
		r.logger.Error().Err(err).Str("node", name).Msg("forwarder setup failed")
	}
	r.mu.Lock()
	r.nodes[name] = n
	r.fwds[name] = f
	r.order = append(r.order, name)
	r.mu.Unlock()
	return n, f
}

func (r *Runner) teardown() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if err := r.fwds[name].Teardown(); err != nil {
			r.logger.Warn().Err(err).Str("node", name).Msg("forwarder teardown failed")
		}
	}
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
