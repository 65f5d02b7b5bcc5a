package forwarder

import (
	"errors"
	"fmt"

	"github.com/bilal/v2x-telemetry-agent/internal/metrics"
	"github.com/bilal/v2x-telemetry-agent/internal/telemetry"
)

// OnBeacon forwards a received beacon as a BSM record.
func (f *Forwarder) OnBeacon(b *Beacon) {
	f.handle(telemetry.BeaconReceived, b == nil, func() (telemetry.Record, error) {
		return f.beaconRecord(b), nil
	})
}

// OnMessage forwards a generic message as a WSM record, but only when the
// message carries the sender's position. Other messages are skipped.
func (f *Forwarder) OnMessage(m Message) {
	f.handle(telemetry.GenericMessageReceived, isNilMessage(m), func() (telemetry.Record, error) {
		return f.messageRecord(m)
	})
}

// OnServiceAdvert forwards a service advertisement as a WSA record.
func (f *Forwarder) OnServiceAdvert(a *ServiceAdvert) {
	f.handle(telemetry.ServiceAdvertReceived, a == nil, func() (telemetry.Record, error) {
		return f.advertRecord(a), nil
	})
}

// OnPositionUpdate refreshes the position cache from the mobility source.
func (f *Forwarder) OnPositionUpdate() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mobility == nil {
		return
	}
	now := f.host.Now()
	pos, err := f.mobility.PositionAt(now)
	if err != nil {
		f.logger.Debug().Err(err).Float64("sim_time", now).Msg("position query failed")
		return
	}
	f.position = pos
}

// SetPosition overwrites the position cache, for hosts without a
// mobility source.
func (f *Forwarder) SetPosition(pos telemetry.Coord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = pos
}

// handle is the boundary between the host's event loop and the
// forwarder: nothing below it may fail the caller.
func (f *Forwarder) handle(kind telemetry.Kind, isNil bool, build func() (telemetry.Record, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDropped(kind.Tag(), metrics.ReasonHandlerPanic)
			f.logger.Error().Str("kind", kind.Tag()).Str("panic", fmt.Sprint(r)).Msg("event handler panicked")
		}
	}()

	if isNil {
		metrics.RecordDropped(kind.Tag(), metrics.ReasonNilPayload)
		f.logger.Warn().Str("kind", kind.Tag()).Msg("received nil payload")
		return
	}

	rec, err := build()
	if errors.Is(err, errNotPositioned) {
		metrics.RecordDropped(kind.Tag(), metrics.ReasonNoPosition)
		f.logger.Debug().Str("kind", kind.Tag()).Msg("message without sender position skipped")
		return
	}
	if err == nil {
		var text string
		if text, err = telemetry.Encode(rec); err == nil {
			f.logger.Debug().Str("kind", kind.Tag()).Str("record", text).Msg("event received")
			f.sendLocked(kind.Tag(), rec.ReceiverID, text)
			return
		}
	}

	metrics.RecordDropped(kind.Tag(), metrics.ReasonEncode)
	f.logger.Warn().Err(err).Str("kind", kind.Tag()).Msg("event could not be encoded")
}

// refreshPositionLocked pulls the current position from mobility when it
// is a usable fix; otherwise the cache keeps its last value.
func (f *Forwarder) refreshPositionLocked(now float64) {
	if f.mobility == nil {
		return
	}
	pos, err := f.mobility.PositionAt(now)
	if err != nil {
		f.logger.Debug().Err(err).Float64("sim_time", now).Msg("position query failed")
		return
	}
	if pos.Valid() {
		f.position = pos
	}
}

// positionedRecord fills the fields shared by BSM and WSM records. The
// distance is only set when the cached receiver position is valid.
func (f *Forwarder) positionedRecord(kind telemetry.Kind, sender telemetry.Coord) telemetry.Record {
	now := f.host.Now()
	f.refreshPositionLocked(now)

	receiver := f.position
	rec := telemetry.Record{
		Kind:        kind,
		Timestamp:   now,
		ReceiverID:  f.host.NodeName(),
		SenderPos:   &sender,
		ReceiverPos: &receiver,
	}
	if receiver.Valid() {
		d := receiver.Distance(sender)
		rec.Distance = &d
	}
	return rec
}

func (f *Forwarder) beaconRecord(b *Beacon) telemetry.Record {
	rec := f.positionedRecord(telemetry.BeaconReceived, b.SenderPos)
	rec.SenderID = senderOrUnknown(b.SenderID)
	return rec
}

func (f *Forwarder) messageRecord(m Message) (telemetry.Record, error) {
	p, ok := m.(Positioned)
	if !ok {
		return telemetry.Record{}, errNotPositioned
	}
	rec := f.positionedRecord(telemetry.GenericMessageReceived, p.SenderPosition())
	rec.Payload = m.MessageName()
	rec.SenderID = UnknownSender
	if b, ok := m.(*Beacon); ok {
		rec.SenderID = senderOrUnknown(b.SenderID)
	}
	return rec, nil
}

func (f *Forwarder) advertRecord(a *ServiceAdvert) telemetry.Record {
	return telemetry.Record{
		Kind:       telemetry.ServiceAdvertReceived,
		Timestamp:  f.host.Now(),
		ReceiverID: f.host.NodeName(),
		Payload:    a.Description,
	}
}

func senderOrUnknown(id string) string {
	if id == "" {
		return UnknownSender
	}
	return id
}
