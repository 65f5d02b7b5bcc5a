package forwarder

import (
	"reflect"

	"github.com/bilal/v2x-telemetry-agent/internal/telemetry"
)

// Message is any frame the host delivers to the generic message callback.
type Message interface {
	MessageName() string
}

// Positioned is implemented by messages that carry the sender's position.
// Only those are forwarded by OnMessage.
type Positioned interface {
	SenderPosition() telemetry.Coord
}

// Beacon is the periodic safety message broadcast by every vehicle.
type Beacon struct {
	Name      string
	SenderID  string
	SenderPos telemetry.Coord
}

func (b *Beacon) MessageName() string { return b.Name }

func (b *Beacon) SenderPosition() telemetry.Coord { return b.SenderPos }

// Frame is a generic wireless message without position information.
type Frame struct {
	Name     string
	SenderID string
}

func (f *Frame) MessageName() string { return f.Name }

// ServiceAdvert announces a service on some channel.
type ServiceAdvert struct {
	Name        string
	Description string
}

func (a *ServiceAdvert) MessageName() string { return a.Name }

// isNilMessage also catches typed nil pointers stored in the interface.
func isNilMessage(m Message) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
