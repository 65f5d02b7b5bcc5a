package communicator

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bilal/v2x-telemetry-agent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestUDPSender_SendOneDatagram(t *testing.T) {
	observer := listenLoopback(t)
	sender := NewUDPSender(observer.LocalAddr().String(), 50*time.Millisecond)
	require.NoError(t, sender.Open())
	defer sender.Close()

	require.NoError(t, sender.Send([]byte("WSA,1,veh1,svc")))

	buf := make([]byte, 1500)
	require.NoError(t, observer.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := observer.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "WSA,1,veh1,svc", string(buf[:n]))
}

func TestUDPSender_SendBeforeOpen(t *testing.T) {
	sender := NewUDPSender("127.0.0.1:5005", 0)
	assert.ErrorIs(t, sender.Send([]byte("x")), ErrNotOpen)
}

func TestUDPSender_OpenFailures(t *testing.T) {
	t.Run("socket creation", func(t *testing.T) {
		boom := errors.New("no sockets left")
		sender := NewUDPSender("127.0.0.1:5005", 0).WithListen(func(string, *net.UDPAddr) (*net.UDPConn, error) {
			return nil, boom
		})
		assert.ErrorIs(t, sender.Open(), boom)
		assert.ErrorIs(t, sender.Send([]byte("x")), ErrNotOpen)
	})

	t.Run("bad destination", func(t *testing.T) {
		sender := NewUDPSender("127.0.0.1:70000", 0)
		assert.Error(t, sender.Open())
	})
}

func TestUDPSender_CloseIdempotent(t *testing.T) {
	sender := NewUDPSender("127.0.0.1:5005", 0)
	assert.NoError(t, sender.Close())

	require.NoError(t, sender.Open())
	assert.NoError(t, sender.Close())
	assert.NoError(t, sender.Close())
	assert.ErrorIs(t, sender.Send([]byte("x")), ErrNotOpen)
}

func TestNewKafkaMirror(t *testing.T) {
	_, err := NewKafkaMirror(config.KafkaConfig{Topic: "v2x.telemetry"})
	assert.ErrorIs(t, err, ErrNoBrokers)

	m, err := NewKafkaMirror(config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "v2x.telemetry"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.Instance())
	assert.NoError(t, m.Close())
}
