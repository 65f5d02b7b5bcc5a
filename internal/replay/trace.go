package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bilal/v2x-telemetry-agent/internal/telemetry"
)

// EventType is the second column of a trace line.
type EventType string

const (
	EventPosition EventType = "POS"
	EventBeacon   EventType = "BSM"
	EventMessage  EventType = "WSM"
	EventAdvert   EventType = "WSA"
	// EventNull delivers a nil payload to the callback named in the name
	// column (BSM, WSM or WSA).
	EventNull EventType = "NULL"
)

const traceFields = 8

var (
	ErrBadTrace   = errors.New("bad trace line")
	ErrTimeTravel = errors.New("trace time goes backwards")
)

// Event is one trace line: something the simulator would deliver to the
// application layer of Node at Time.
type Event struct {
	Time   float64
	Type   EventType
	Node   string
	Sender string
	// Pos is the reported position for POS lines and the sender position
	// for BSM/WSM lines; nil when the x,y columns are empty.
	Pos  *telemetry.Coord
	Name string
	Text string
}

// LoadTrace reads a trace file from disk.
func LoadTrace(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTrace(f)
}

// ReadTrace parses CSV lines of the form
//
//	time,event,node,sender,x,y,name,text
//
// A header line starting with "time" and lines starting with '#' are
// skipped. Times must not decrease.
func ReadTrace(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = traceFields
	cr.TrimLeadingSpace = true

	var (
		events []Event
		last   float64
		first  = true
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadTrace, err)
		}
		line, _ := cr.FieldPos(0)
		if first {
			first = false
			if strings.EqualFold(rec[0], "time") {
				continue
			}
		}

		ev, err := parseEvent(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(events) > 0 && ev.Time < last {
			return nil, fmt.Errorf("line %d: %w: %v after %v", line, ErrTimeTravel, ev.Time, last)
		}
		last = ev.Time
		events = append(events, ev)
	}
	return events, nil
}

func parseEvent(rec []string) (Event, error) {
	ts, err := strconv.ParseFloat(rec[0], 64)
	if err != nil {
		return Event{}, fmt.Errorf("%w: time %q", ErrBadTrace, rec[0])
	}
	ev := Event{
		Time:   ts,
		Type:   EventType(strings.ToUpper(rec[1])),
		Node:   rec[2],
		Sender: rec[3],
		Name:   rec[6],
		Text:   rec[7],
	}
	if ev.Node == "" {
		return Event{}, fmt.Errorf("%w: empty node", ErrBadTrace)
	}

	if rec[4] != "" || rec[5] != "" {
		x, errX := strconv.ParseFloat(rec[4], 64)
		y, errY := strconv.ParseFloat(rec[5], 64)
		if errX != nil || errY != nil {
			return Event{}, fmt.Errorf("%w: position %q,%q", ErrBadTrace, rec[4], rec[5])
		}
		ev.Pos = &telemetry.Coord{X: x, Y: y}
	}

	switch ev.Type {
	case EventPosition, EventBeacon:
		if ev.Pos == nil {
			return Event{}, fmt.Errorf("%w: %s needs a position", ErrBadTrace, ev.Type)
		}
	case EventMessage, EventAdvert:
	case EventNull:
		if _, ok := telemetry.KindFromTag(strings.ToUpper(ev.Name)); !ok {
			return Event{}, fmt.Errorf("%w: NULL needs BSM, WSM or WSA in the name column", ErrBadTrace)
		}
	default:
		return Event{}, fmt.Errorf("%w: event %q", ErrBadTrace, rec[1])
	}
	return ev, nil
}
