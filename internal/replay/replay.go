// Package replay feeds a pcap capture through the in-memory network so configured sinks
// can be evaluated offline under simulated time.
package replay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/ip4defrag"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/rxsink/internal/sched"
	"firestige.xyz/rxsink/internal/transport/simnet"
)

// Stats summarizes one capture.
type Stats struct {
	Packets   uint64
	UDP       uint64
	TCP       uint64
	Flows     uint64
	Fragments uint64
	Skipped   uint64
	Duration  time.Duration
}

type flowKey struct {
	src, dst netip.AddrPort
}

// Replayer schedules the packets of a capture on a simulator, at their offsets from the
// first packet. UDP datagrams become SendTo calls; TCP segments drive simulated connections:
// SYN dials, payload is sent, FIN closes and RST aborts. Fragmented IPv4 datagrams are
// reassembled and scheduled at the time of their last fragment.
type Replayer struct {
	sim    *sched.Simulator
	net    *simnet.Network
	defrag *ip4defrag.IPv4Defragmenter
	flows  map[flowKey]*simnet.Conn
	stats  Stats
}

func New(sim *sched.Simulator, n *simnet.Network) *Replayer {
	return &Replayer{
		sim:    sim,
		net:    n,
		defrag: ip4defrag.NewIPv4Defragmenter(),
		flows:  make(map[flowKey]*simnet.Conn),
	}
}

// Load reads every packet from a pcap stream and schedules it. It returns once the
// whole capture is scheduled; run the simulator to deliver it.
func (r *Replayer) Load(src io.Reader) (Stats, error) {
	rd, err := pcapgo.NewReader(src)
	if err != nil {
		return Stats{}, fmt.Errorf("open pcap: %w", err)
	}
	link := rd.LinkType()
	base := r.sim.Now()

	var first time.Time
	for {
		data, ci, err := rd.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.stats, fmt.Errorf("read packet %d: %w", r.stats.Packets+1, err)
		}
		r.stats.Packets++
		if first.IsZero() {
			first = ci.Timestamp
		}
		offset := ci.Timestamp.Sub(first)
		if offset < 0 {
			offset = 0
		}
		if offset > r.stats.Duration {
			r.stats.Duration = offset
		}
		r.schedule(base+offset, ci.Timestamp, gopacket.NewPacket(data, link, gopacket.DecodeOptions{Lazy: true, NoCopy: true}))
	}
	slog.Info("capture scheduled",
		"packets", r.stats.Packets,
		"udp", r.stats.UDP,
		"fragments", r.stats.Fragments,
		"tcp", r.stats.TCP,
		"skipped", r.stats.Skipped,
		"duration", r.stats.Duration)
	return r.stats, nil
}

// Stats returns the counters so far. Flows is only complete once the simulator has run.
func (r *Replayer) Stats() Stats {
	return r.stats
}

func (r *Replayer) schedule(at time.Duration, ts time.Time, pkt gopacket.Packet) {
	var srcIP, dstIP netip.Addr
	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		srcIP, dstIP = toAddr(ip.SrcIP.To4()), toAddr(ip.DstIP.To4())
		if ip.Flags&layers.IPv4MoreFragments != 0 || ip.FragOffset != 0 {
			r.stats.Fragments++
			whole, err := r.defrag.DefragIPv4WithTimestamp(ip, ts)
			if err != nil {
				slog.Debug("fragment dropped", "from", srcIP.String(), "id", ip.Id, "error", err)
				r.stats.Skipped++
				return
			}
			if whole == nil {
				return
			}
			pkt = gopacket.NewPacket(whole.Payload, whole.Protocol.LayerType(), gopacket.Default)
		}
	case *layers.IPv6:
		srcIP, dstIP = toAddr(ip.SrcIP), toAddr(ip.DstIP)
	default:
		r.stats.Skipped++
		return
	}

	if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		r.stats.UDP++
		from := netip.AddrPortFrom(srcIP, uint16(udp.SrcPort))
		to := netip.AddrPortFrom(dstIP, uint16(udp.DstPort))
		payload := append([]byte(nil), udp.Payload...)
		r.sim.ScheduleAt(at, func() { r.net.SendTo(from, to, payload) })
		return
	}

	if tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		r.stats.TCP++
		key := flowKey{
			src: netip.AddrPortFrom(srcIP, uint16(tcp.SrcPort)),
			dst: netip.AddrPortFrom(dstIP, uint16(tcp.DstPort)),
		}
		seg := segment{
			syn:     tcp.SYN && !tcp.ACK,
			fin:     tcp.FIN,
			rst:     tcp.RST,
			payload: append([]byte(nil), tcp.Payload...),
		}
		r.sim.ScheduleAt(at, func() { r.segment(key, seg) })
		return
	}

	r.stats.Skipped++
}

type segment struct {
	syn, fin, rst bool
	payload       []byte
}

func (r *Replayer) segment(key flowKey, seg segment) {
	c, ok := r.flows[key]
	if !ok {
		if !seg.syn && len(seg.payload) == 0 {
			return
		}
		// captures may start mid-stream: data without a SYN opens the flow too
		c = r.net.Dial(key.src, key.dst)
		r.flows[key] = c
		r.stats.Flows++
	}
	if len(seg.payload) > 0 {
		if err := c.Send(seg.payload); err != nil {
			slog.Debug("segment not delivered", "from", key.src.String(), "to", key.dst.String(), "error", err)
		}
	}
	switch {
	case seg.rst:
		c.Abort()
		delete(r.flows, key)
	case seg.fin:
		c.Close()
		delete(r.flows, key)
	}
}

// toAddr keeps the address as captured: an IPv4-mapped IPv6 source stays IPv6.
func toAddr(ip net.IP) netip.Addr {
	a, _ := netip.AddrFromSlice(ip)
	return a
}
