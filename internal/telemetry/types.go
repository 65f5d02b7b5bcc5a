package telemetry

import "math"

// Kind identifies which inbound event produced a record.
type Kind int

const (
	BeaconReceived Kind = iota + 1
	GenericMessageReceived
	ServiceAdvertReceived
)

// Tag is the first field of the datagram.
func (k Kind) Tag() string {
	switch k {
	case BeaconReceived:
		return "BSM"
	case GenericMessageReceived:
		return "WSM"
	case ServiceAdvertReceived:
		return "WSA"
	}
	return ""
}

func (k Kind) String() string {
	if t := k.Tag(); t != "" {
		return t
	}
	return "unknown"
}

// KindFromTag is the inverse of Tag.
func KindFromTag(tag string) (Kind, bool) {
	switch tag {
	case "BSM":
		return BeaconReceived, true
	case "WSM":
		return GenericMessageReceived, true
	case "WSA":
		return ServiceAdvertReceived, true
	}
	return 0, false
}

// Coord is a planar position in metres.
type Coord struct {
	X float64
	Y float64
}

func (c Coord) Length() float64 {
	return math.Hypot(c.X, c.Y)
}

// Distance is the Euclidean distance between c and o.
func (c Coord) Distance(o Coord) float64 {
	return math.Hypot(c.X-o.X, c.Y-o.Y)
}

// Valid reports whether c is usable for distance computation: finite and
// not the origin, which the simulator reports before mobility is attached.
func (c Coord) Valid() bool {
	if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsInf(c.X, 0) || math.IsInf(c.Y, 0) {
		return false
	}
	return c.Length() > 0
}

// Record is the flattened form of one inbound event. Optional fields are
// nil when the event does not carry them. Records are built once and
// never modified.
type Record struct {
	Kind        Kind
	Timestamp   float64
	ReceiverID  string
	SenderID    string
	SenderPos   *Coord
	ReceiverPos *Coord
	Distance    *float64
	// Payload is the message name for WSM and the service description for WSA.
	Payload string
}
