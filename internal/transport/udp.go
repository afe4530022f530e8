// Package transport moves fixed-size datagrams between the producer and the consumer
// over UDP, and records or replays them as pcap captures.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// UDPSocket defines the socket operations the sender and receiver need.
// This abstraction enables unit testing without real network connections.
type UDPSocket interface {
	// ReadFromUDP reads one datagram.
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)

	// WriteToUDP writes one datagram to addr.
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)

	// Close closes the socket, unblocking a pending read.
	Close() error

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr
}

// ErrShortWrite is returned when a datagram was only partially sent.
var ErrShortWrite = errors.New("transport: short datagram write")

// RealUDPSocket wraps *net.UDPConn to implement UDPSocket.
type RealUDPSocket struct {
	conn *net.UDPConn
}

// ListenUDP binds a UDP socket on address (host:port).
func ListenUDP(address string) (*RealUDPSocket, error) {
	laddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", address, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", address, err)
	}
	return &RealUDPSocket{conn: conn}, nil
}

// ReadFromUDP reads from the UDP connection.
func (r *RealUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	return r.conn.ReadFromUDP(b)
}

// WriteToUDP writes to the UDP connection.
func (r *RealUDPSocket) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	return r.conn.WriteToUDP(b, addr)
}

// Close closes the UDP connection.
func (r *RealUDPSocket) Close() error {
	return r.conn.Close()
}

// LocalAddr returns the local network address.
func (r *RealUDPSocket) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Sender writes every datagram to a fixed destination and optionally records it.
type Sender struct {
	socket  UDPSocket
	dest    *net.UDPAddr
	capture *Capture
}

// NewSender sends through socket to dest. A nil capture disables recording.
func NewSender(socket UDPSocket, dest *net.UDPAddr, capture *Capture) *Sender {
	return &Sender{socket: socket, dest: dest, capture: capture}
}

// DialSender binds source and resolves destination, both host:port.
func DialSender(source, destination string, capture *Capture) (*Sender, error) {
	dest, err := net.ResolveUDPAddr("udp", destination)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", destination, err)
	}
	socket, err := ListenUDP(source)
	if err != nil {
		return nil, err
	}
	return NewSender(socket, dest, capture), nil
}

// Send writes one datagram.
func (s *Sender) Send(b []byte) error {
	n, err := s.socket.WriteToUDP(b, s.dest)
	if err != nil {
		return fmt.Errorf("sending to %s: %w", s.dest, err)
	}
	if n != len(b) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(b))
	}
	if s.capture != nil {
		src, _ := s.socket.LocalAddr().(*net.UDPAddr)
		if err := s.capture.WriteDatagram(src, s.dest, b); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the socket and the capture.
func (s *Sender) Close() error {
	return errors.Join(s.socket.Close(), s.capture.Close())
}

// Receiver reads datagrams from a bound socket.
type Receiver struct {
	socket UDPSocket
}

// NewReceiver reads from socket.
func NewReceiver(socket UDPSocket) *Receiver {
	return &Receiver{socket: socket}
}

// ListenReceiver binds address (host:port).
func ListenReceiver(address string) (*Receiver, error) {
	socket, err := ListenUDP(address)
	if err != nil {
		return nil, err
	}
	return NewReceiver(socket), nil
}

// Receive blocks until one datagram arrives and copies it into buf.
func (r *Receiver) Receive(buf []byte) (int, error) {
	n, _, err := r.socket.ReadFromUDP(buf)
	return n, err
}

// Close closes the socket; a blocked Receive returns an error.
func (r *Receiver) Close() error {
	return r.socket.Close()
}

// Addr returns the bound address.
func (r *Receiver) Addr() net.Addr {
	return r.socket.LocalAddr()
}

// MockUDPSocket implements UDPSocket for testing. Reads return the queued packets in
// order, then block until Close like a real socket.
type MockUDPSocket struct {
	mu sync.Mutex
	// Packets holds the datagrams to return from ReadFromUDP.
	Packets [][]byte
	// Written records every datagram passed to WriteToUDP.
	Written [][]byte
	// WriteError is returned by WriteToUDP if set.
	WriteError error
	// ShortWrite makes WriteToUDP report one byte less than asked.
	ShortWrite bool
	// LocalAddress is returned by LocalAddr.
	LocalAddress *net.UDPAddr

	readIndex int
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMockUDPSocket creates a MockUDPSocket that will deliver packets.
func NewMockUDPSocket(packets ...[]byte) *MockUDPSocket {
	return &MockUDPSocket{
		Packets:      packets,
		LocalAddress: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 34255},
		closed:       make(chan struct{}),
	}
}

// ReadFromUDP returns the next queued packet or blocks until Close.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	if m.readIndex < len(m.Packets) {
		pkt := m.Packets[m.readIndex]
		m.readIndex++
		m.mu.Unlock()
		return copy(b, pkt), m.LocalAddress, nil
	}
	m.mu.Unlock()

	<-m.closed
	return 0, nil, net.ErrClosed
}

// WriteToUDP records the datagram.
func (m *MockUDPSocket) WriteToUDP(b []byte, _ *net.UDPAddr) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.Written = append(m.Written, append([]byte(nil), b...))
	if m.ShortWrite {
		return len(b) - 1, nil
	}
	return len(b), nil
}

// Close unblocks pending reads.
func (m *MockUDPSocket) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// Remaining returns how many queued packets were not read yet.
func (m *MockUDPSocket) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Packets) - m.readIndex
}

// Datagrams returns a copy of the written datagrams.
func (m *MockUDPSocket) Datagrams() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.Written...)
}

// LocalAddr returns the mock local address.
func (m *MockUDPSocket) LocalAddr() net.Addr {
	return m.LocalAddress
}
