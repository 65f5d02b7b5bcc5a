// Package forwarder turns inbound simulator events into telemetry datagrams
// for an external observer.
//
// The host calls the On* callbacks; the forwarder never calls back into
// the host's scheduling. Every failure is logged and swallowed so the
// simulation is never affected by telemetry problems.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bilal/v2x-telemetry-agent/internal/metrics"
	"github.com/bilal/v2x-telemetry-agent/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// UnknownSender replaces a sender identity the event does not carry.
const UnknownSender = "Unknown"

var (
	ErrSetupFailed  = errors.New("forwarder setup failed")
	ErrAlreadySetUp = errors.New("forwarder already set up")
	ErrClosed       = errors.New("forwarder closed")

	errNotPositioned = errors.New("message carries no sender position")
)

// Host is the part of the simulator the forwarder reads.
type Host interface {
	// Now is the current simulation time in seconds.
	Now() float64
	// NodeName identifies the receiving node.
	NodeName() string
}

// Mobility answers position queries for the receiving node.
type Mobility interface {
	PositionAt(t float64) (telemetry.Coord, error)
}

// Transport carries encoded records to the observer.
type Transport interface {
	Open() error
	Send(payload []byte) error
	Close() error
}

// Mirror receives a copy of every record that was sent.
type Mirror interface {
	Publish(ctx context.Context, key, kind string, payload []byte) error
}

type State int

const (
	StateUninitialized State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

type Option func(*Forwarder)

func WithMobility(m Mobility) Option {
	return func(f *Forwarder) { f.mobility = m }
}

func WithMirror(m Mirror) Option {
	return func(f *Forwarder) { f.mirror = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(f *Forwarder) { f.logger = l }
}

// Forwarder is one node's telemetry adapter. All methods are safe for
// concurrent use; the mutex also covers the position cache.
type Forwarder struct {
	mu sync.Mutex

	id        string
	host      Host
	mobility  Mobility
	transport Transport
	mirror    Mirror
	logger    zerolog.Logger

	state    State
	position telemetry.Coord
}

// New creates a forwarder; it does NOT open the transport. Call Setup.
func New(host Host, transport Transport, opts ...Option) *Forwarder {
	f := &Forwarder{
		id:        uuid.NewString(),
		host:      host,
		transport: transport,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With().Str("node", host.NodeName()).Logger()
	return f
}

func (f *Forwarder) ID() string { return f.id }

func (f *Forwarder) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Position returns the cached receiver position.
func (f *Forwarder) Position() telemetry.Coord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

// Setup opens the transport. A failure leaves the forwarder permanently
// disabled: every later Send is a no-op. The returned error is for the
// caller's log only.
func (f *Forwarder) Setup() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case StateActive:
		return ErrAlreadySetUp
	case StateClosed:
		return ErrClosed
	}

	if err := f.transport.Open(); err != nil {
		f.state = StateClosed
		f.logger.Error().Err(err).Msg("telemetry socket setup failed, forwarder disabled")
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}

	f.state = StateActive
	metrics.ForwardersActive.Inc()
	f.logger.Info().Str("instance", f.id).Msg("forwarder active")
	return nil
}

// Teardown closes the transport. It is idempotent and safe after a failed
// or missing Setup.
func (f *Forwarder) Teardown() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateClosed {
		return nil
	}

	var err error
	if f.state == StateActive {
		metrics.ForwardersActive.Dec()
		if err = f.transport.Close(); err != nil {
			f.logger.Warn().Err(err).Msg("closing telemetry socket failed")
		}
	}
	f.state = StateClosed
	f.logger.Info().Float64("sim_time", f.host.Now()).Msg("forwarder closed")
	return err
}

// Send forwards a pre-formatted record. It never fails; outside the
// Active state it does nothing.
func (f *Forwarder) Send(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendLocked("raw", f.host.NodeName(), text)
}

func (f *Forwarder) sendLocked(kind, key, text string) {
	if f.state != StateActive {
		metrics.RecordDropped(kind, metrics.ReasonInactive)
		f.logger.Debug().Str("state", f.state.String()).Msg("forwarder inactive, record not sent")
		return
	}

	payload := []byte(text)
	if err := f.transport.Send(payload); err != nil {
		metrics.RecordSendError()
		f.logger.Warn().Err(err).Str("kind", kind).Msg("telemetry send failed")
		return
	}
	metrics.RecordSent(kind)

	if f.mirror != nil {
		if err := f.mirror.Publish(context.Background(), key, kind, payload); err != nil {
			metrics.RecordMirrorError()
			f.logger.Warn().Err(err).Msg("mirror publish failed")
		}
	}
}
