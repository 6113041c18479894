package natsexport

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/core/decoder"
	"firestige.xyz/rxsink/internal/trace"
)

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	msgs     [][]byte
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.msgs = append(f.msgs, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func event(t *testing.T) trace.Event {
	t.Helper()
	from := netip.MustParseAddrPort("10.0.0.1:4000")
	to := netip.MustParseAddrPort("10.0.0.2:9000")
	payload := make([]byte, 120)
	raw, err := decoder.Encapsulate(core.ProtocolUDP, from, to, payload)
	require.NoError(t, err)
	return trace.Event{
		Sink:   "R",
		Time:   2 * time.Second,
		Packet: core.Packet{Payload: payload, Raw: raw, Link: core.LinkRaw, From: from},
		From:   from,
	}
}

func TestExporterPublishesStruct(t *testing.T) {
	conn := &fakeConn{}
	e := New(conn, Config{Subject: "test.packets"})
	e.Observe(event(t))
	require.NoError(t, e.Close())

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "test.packets", conn.subjects[0])
	assert.True(t, conn.drained)

	s, err := Decode(conn.msgs[0])
	require.NoError(t, err)
	m := s.AsMap()
	assert.Equal(t, "R", m["sink"])
	assert.Equal(t, 2.0, m["time"])
	assert.Equal(t, 120.0, m["bytes"])
	assert.Equal(t, "10.0.0.1", m["src_ip"])
	assert.Equal(t, "10.0.0.2", m["dst_ip"])
	assert.Equal(t, 17.0, m["ip_proto"])
	assert.Equal(t, 9000.0, m["dst_port"])
}

func TestEncodeWithoutHeaders(t *testing.T) {
	data, err := Encode(trace.Event{Sink: "R", Packet: core.Packet{Payload: []byte{1}}})
	require.NoError(t, err)
	s, err := Decode(data)
	require.NoError(t, err)
	_, ok := s.Fields["src_ip"]
	assert.False(t, ok)
	assert.Equal(t, 1.0, s.Fields["bytes"].GetNumberValue())
}

func TestDefaultSubject(t *testing.T) {
	conn := &fakeConn{}
	e := New(conn, Config{})
	e.Observe(event(t))
	require.NoError(t, e.Close())
	assert.Equal(t, []string{defaultSubject}, conn.subjects)
}
