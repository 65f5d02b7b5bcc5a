package telemetry

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestEncode_Beacon(t *testing.T) {
	r := Record{
		Kind:        BeaconReceived,
		Timestamp:   12.5,
		ReceiverID:  "veh1",
		SenderID:    "veh3",
		SenderPos:   &Coord{X: 10, Y: 20},
		ReceiverPos: &Coord{X: 13, Y: 20},
		Distance:    ptr(3.0),
	}

	got, err := Encode(r)
	require.NoError(t, err)
	assert.Equal(t, "BSM,12.5,veh1,veh3,10,20,13,20,3", got)
	assert.Len(t, strings.Split(got, ","), 9)
}

func TestEncode_GenericMessage(t *testing.T) {
	r := Record{
		Kind:        GenericMessageReceived,
		Timestamp:   7,
		ReceiverID:  "node[0]",
		SenderID:    "node[2]",
		Payload:     "data",
		SenderPos:   &Coord{X: 1.25, Y: -4},
		ReceiverPos: &Coord{X: 4.25, Y: 0},
		Distance:    ptr(5.0),
	}

	got, err := Encode(r)
	require.NoError(t, err)
	assert.Equal(t, "WSM,7,node[0],data,1.25,-4,4.25,0,5", got)
}

func TestEncode_ServiceAdvert(t *testing.T) {
	r := Record{
		Kind:       ServiceAdvertReceived,
		Timestamp:  3.000001,
		ReceiverID: "veh1",
		Payload:    "Traffic Information Service",
	}

	got, err := Encode(r)
	require.NoError(t, err)
	assert.Equal(t, "WSA,3,veh1,Traffic Information Service", got)
}

func TestEncode_AbsentOptionalsAreZero(t *testing.T) {
	r := Record{
		Kind:       BeaconReceived,
		Timestamp:  1,
		ReceiverID: "veh1",
		SenderID:   "Unknown",
		SenderPos:  &Coord{X: 2, Y: 2},
	}

	got, err := Encode(r)
	require.NoError(t, err)
	assert.Equal(t, "BSM,1,veh1,Unknown,2,2,0,0,0", got)
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want error
	}{
		{"unknown kind", Record{Kind: 42}, ErrUnknownKind},
		{"comma in receiver", Record{Kind: ServiceAdvertReceived, ReceiverID: "a,b"}, ErrFieldContainsComma},
		{"comma in sender", Record{Kind: BeaconReceived, ReceiverID: "r", SenderID: "x,y", SenderPos: &Coord{}}, ErrFieldContainsComma},
		{"comma in message name", Record{Kind: GenericMessageReceived, ReceiverID: "r", Payload: "m,n", SenderPos: &Coord{}}, ErrFieldContainsComma},
		{"missing sender position", Record{Kind: BeaconReceived, ReceiverID: "r", SenderID: "s"}, ErrMissingField},
		{"nan position", Record{Kind: BeaconReceived, ReceiverID: "r", SenderID: "s", SenderPos: &Coord{X: math.NaN()}}, ErrNonFinite},
		{"infinite timestamp", Record{Kind: ServiceAdvertReceived, Timestamp: math.Inf(1), ReceiverID: "r"}, ErrNonFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.rec)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncode_DescriptionMayContainComma(t *testing.T) {
	got, err := Encode(Record{Kind: ServiceAdvertReceived, Timestamp: 2, ReceiverID: "rsu0", Payload: "parking, fuel"})
	require.NoError(t, err)

	back, err := Decode(got)
	require.NoError(t, err)
	assert.Equal(t, "parking, fuel", back.Payload)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "12.5", FormatNumber(12.5))
	assert.Equal(t, "10", FormatNumber(10))
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "1.23457e+06", FormatNumber(1234567))
	assert.Equal(t, "0.333333", FormatNumber(1.0/3))
}

func TestDecode(t *testing.T) {
	r, err := Decode("BSM,12.5,veh1,veh3,10,20,13,20,3")
	require.NoError(t, err)
	assert.Equal(t, BeaconReceived, r.Kind)
	assert.Equal(t, 12.5, r.Timestamp)
	assert.Equal(t, "veh1", r.ReceiverID)
	assert.Equal(t, "veh3", r.SenderID)
	assert.Equal(t, Coord{X: 10, Y: 20}, *r.SenderPos)
	assert.Equal(t, Coord{X: 13, Y: 20}, *r.ReceiverPos)
	assert.Equal(t, 3.0, *r.Distance)

	r, err = Decode("WSM,7,veh1,data,0,0,0,0,0")
	require.NoError(t, err)
	assert.Equal(t, GenericMessageReceived, r.Kind)
	assert.Equal(t, "data", r.Payload)
	assert.Empty(t, r.SenderID)
}

func TestDecode_Malformed(t *testing.T) {
	for _, d := range []string{
		"",
		"XYZ,1,a",
		"BSM,1,veh1,veh3,10,20",
		"WSM,x,veh1,data,0,0,0,0,0",
		"WSA,1,veh1",
	} {
		_, err := Decode(d)
		assert.ErrorIs(t, err, ErrMalformedDatagram, d)
	}
}

func TestCoord(t *testing.T) {
	a := Coord{X: 10, Y: 20}
	b := Coord{X: 13, Y: 24}
	assert.Equal(t, 5.0, a.Distance(b))
	assert.True(t, a.Valid())
	assert.False(t, Coord{}.Valid())
	assert.False(t, Coord{X: math.NaN(), Y: 1}.Valid())
}

func TestKindTags(t *testing.T) {
	for _, k := range []Kind{BeaconReceived, GenericMessageReceived, ServiceAdvertReceived} {
		back, ok := KindFromTag(k.Tag())
		require.True(t, ok)
		assert.Equal(t, k, back)
	}
	_, ok := KindFromTag("BSMX")
	assert.False(t, ok)
	assert.Equal(t, "unknown", Kind(0).String())
}
