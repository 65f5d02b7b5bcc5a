package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	separator = ","

	// positionedFields is the field count of BSM and WSM datagrams.
	positionedFields = 9
	// advertFields is the minimum field count of a WSA datagram; the
	// description may itself contain separators.
	advertFields = 4
)

var (
	ErrUnknownKind        = errors.New("unknown record kind")
	ErrFieldContainsComma = errors.New("field contains separator")
	ErrNonFinite          = errors.New("non-finite number")
	ErrMissingField       = errors.New("missing field")
	ErrMalformedDatagram  = errors.New("malformed datagram")
)

// FormatNumber renders v with six significant digits and no trailing
// zeros: 12.5 -> "12.5", 10 -> "10", 1234567 -> "1.23457e+06".
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// Encode renders r in the observer's comma separated layout.
func Encode(r Record) (string, error) {
	tag := r.Kind.Tag()
	if tag == "" {
		return "", fmt.Errorf("%w: %d", ErrUnknownKind, int(r.Kind))
	}
	if err := checkIdentifier("receiver", r.ReceiverID); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(tag)

	switch r.Kind {
	case BeaconReceived, GenericMessageReceived:
		// The fourth field is the sender for beacons and the message name
		// for generic messages.
		label, name := "sender", r.SenderID
		if r.Kind == GenericMessageReceived {
			label, name = "message name", r.Payload
		}
		if err := checkIdentifier(label, name); err != nil {
			return "", err
		}
		if r.SenderPos == nil {
			return "", fmt.Errorf("%w: sender position", ErrMissingField)
		}
		var recv Coord
		if r.ReceiverPos != nil {
			recv = *r.ReceiverPos
		}
		var dist float64
		if r.Distance != nil {
			dist = *r.Distance
		}
		if err := writeNumbers(&b, []float64{r.Timestamp}); err != nil {
			return "", err
		}
		b.WriteString(separator)
		b.WriteString(r.ReceiverID)
		b.WriteString(separator)
		b.WriteString(name)
		if err := writeNumbers(&b, []float64{r.SenderPos.X, r.SenderPos.Y, recv.X, recv.Y, dist}); err != nil {
			return "", err
		}

	case ServiceAdvertReceived:
		if err := writeNumbers(&b, []float64{r.Timestamp}); err != nil {
			return "", err
		}
		b.WriteString(separator)
		b.WriteString(r.ReceiverID)
		b.WriteString(separator)
		b.WriteString(r.Payload)
	}

	return b.String(), nil
}

func writeNumbers(b *strings.Builder, nums []float64) error {
	for _, n := range nums {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return fmt.Errorf("%w: %v", ErrNonFinite, n)
		}
		b.WriteString(separator)
		b.WriteString(FormatNumber(n))
	}
	return nil
}

func checkIdentifier(name, value string) error {
	if strings.Contains(value, separator) {
		return fmt.Errorf("%w: %s %q", ErrFieldContainsComma, name, value)
	}
	return nil
}

// Decode parses a datagram produced by Encode. Positioned records always
// come back with SenderPos, ReceiverPos and Distance set.
func Decode(datagram string) (Record, error) {
	fields := strings.Split(datagram, separator)
	kind, ok := KindFromTag(fields[0])
	if !ok {
		return Record{}, fmt.Errorf("%w: tag %q", ErrMalformedDatagram, fields[0])
	}

	switch kind {
	case ServiceAdvertReceived:
		if len(fields) < advertFields {
			return Record{}, fmt.Errorf("%w: %s has %d fields", ErrMalformedDatagram, fields[0], len(fields))
		}
		ts, err := parseNumber(fields[1])
		if err != nil {
			return Record{}, err
		}
		return Record{
			Kind:       kind,
			Timestamp:  ts,
			ReceiverID: fields[2],
			Payload:    strings.Join(fields[3:], separator),
		}, nil
	}

	if len(fields) != positionedFields {
		return Record{}, fmt.Errorf("%w: %s has %d fields, want %d", ErrMalformedDatagram, fields[0], len(fields), positionedFields)
	}

	nums := make([]float64, 0, 6)
	for _, i := range []int{1, 4, 5, 6, 7, 8} {
		n, err := parseNumber(fields[i])
		if err != nil {
			return Record{}, err
		}
		nums = append(nums, n)
	}

	r := Record{
		Kind:        kind,
		Timestamp:   nums[0],
		ReceiverID:  fields[2],
		SenderPos:   &Coord{X: nums[1], Y: nums[2]},
		ReceiverPos: &Coord{X: nums[3], Y: nums[4]},
		Distance:    &nums[5],
	}
	if kind == BeaconReceived {
		r.SenderID = fields[3]
	} else {
		r.Payload = fields[3]
	}
	return r, nil
}

func parseNumber(s string) (float64, error) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: number %q", ErrMalformedDatagram, s)
	}
	return n, nil
}
