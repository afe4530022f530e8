package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 65536

var (
	captureSrcMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}
	captureDstMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02}
)

// Capture writes sent datagrams to a pcap stream as Ethernet/IPv4/UDP frames so they
// can be inspected with standard tools or replayed with ReadCapture.
type Capture struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	now    func() time.Time
}

// NewCapture writes the pcap file header to w.
func NewCapture(w io.Writer) (*Capture, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("writing pcap header: %w", err)
	}
	return &Capture{w: pw, now: time.Now}, nil
}

// CreateCapture creates (or truncates) path and returns a Capture that owns it.
func CreateCapture(path string) (*Capture, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating capture file %s: %w", path, err)
	}
	c, err := NewCapture(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

// WriteDatagram frames payload as a UDP packet from src to dst. IPv6 or missing
// addresses are recorded as loopback.
func (c *Capture) WriteDatagram(src, dst *net.UDPAddr, payload []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       captureSrcMAC,
		DstMAC:       captureDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ipv4(src),
		DstIP:    ipv4(dst),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(udpPort(src)), DstPort: layers.UDPPort(udpPort(dst))}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("capture checksum: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serializing capture frame: %w", err)
	}
	frame := buf.Bytes()

	c.mu.Lock()
	defer c.mu.Unlock()
	ci := gopacket.CaptureInfo{Timestamp: c.now(), CaptureLength: len(frame), Length: len(frame)}
	if err := c.w.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("writing capture frame: %w", err)
	}
	return nil
}

// Close closes the capture file when the Capture owns one. A nil Capture is valid.
func (c *Capture) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func ipv4(addr *net.UDPAddr) net.IP {
	if addr != nil {
		if ip := addr.IP.To4(); ip != nil {
			return ip
		}
	}
	return net.IPv4(127, 0, 0, 1).To4()
}

func udpPort(addr *net.UDPAddr) int {
	if addr == nil {
		return 0
	}
	return addr.Port
}

// ReplayStats summarises a ReadCapture run.
type ReplayStats struct {
	Packets   int // frames read
	Datagrams int // UDP payloads handed to fn
	Skipped   int // non-UDP frames or other ports
}

// ReadCapture reads a pcap stream and calls fn with every UDP payload destined to
// port (any port when port is 0). It stops at the end of the stream, when ctx is
// done, or at the first error returned by fn.
func ReadCapture(ctx context.Context, r io.Reader, port int, fn func(payload []byte) error) (ReplayStats, error) {
	var stats ReplayStats
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("opening capture: %w", err)
	}

	packetSource := gopacket.NewPacketSource(pr, pr.LinkType())
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		packet, err := packetSource.NextPacket()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("reading capture packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			stats.Skipped++
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || (port > 0 && int(udp.DstPort) != port) {
			stats.Skipped++
			continue
		}

		stats.Datagrams++
		if err := fn(udp.Payload); err != nil {
			return stats, err
		}
	}
}

// OpenCapture is ReadCapture over a file.
func OpenCapture(ctx context.Context, path string, port int, fn func(payload []byte) error) (ReplayStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("opening capture file %s: %w", path, err)
	}
	defer f.Close()
	return ReadCapture(ctx, f, port, fn)
}
