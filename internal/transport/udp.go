package transport

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/ipv6"
)

// UDPOptions configures a receive-only UDP report source. Anchors that
// forward their URCs over the network send one or more lines per datagram.
type UDPOptions struct {
	Listen      string // host:port, e.g. 0.0.0.0:54444
	Group       string // optional multicast group (IPv4 or IPv6)
	ReadTimeout time.Duration
}

type udpTransport struct {
	conn        *net.UDPConn
	readTimeout time.Duration
	buf         []byte

	mu     sync.Mutex
	queue  []string
	closed bool
}

// ListenUDP binds a UDP socket and, when a group is given, joins it on
// every multicast capable interface.
func ListenUDP(opts UDPOptions) (Transport, error) {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	addr, err := net.ResolveUDPAddr("udp", opts.Listen)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", opts.Listen, err)
	}

	var conn *net.UDPConn
	switch {
	case opts.Group == "":
		conn, err = net.ListenUDP("udp", addr)
	default:
		group := net.ParseIP(opts.Group)
		if group == nil || !group.IsMulticast() {
			return nil, fmt.Errorf("transport: %q is not a multicast address", opts.Group)
		}
		if group.To4() != nil {
			conn, err = net.ListenMulticastUDP("udp4", nil, &net.UDPAddr{IP: group, Port: addr.Port})
		} else {
			conn, err = listenIPv6Group(addr, group)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", opts.Listen, err)
	}

	log.Printf("udp: listening on %s (group=%q)", conn.LocalAddr(), opts.Group)
	return &udpTransport{
		conn:        conn,
		readTimeout: opts.ReadTimeout,
		buf:         make([]byte, 2048),
	}, nil
}

func listenIPv6Group(addr *net.UDPAddr, group net.IP) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp6", &net.UDPAddr{Port: addr.Port})
	if err != nil {
		return nil, err
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		conn.Close()
		return nil, err
	}

	p := ipv6.NewPacketConn(conn)
	joined := 0
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if err := p.JoinGroup(&iface, &net.UDPAddr{IP: group}); err != nil {
			log.Printf("udp: join %s on %s: %v", group, iface.Name, err)
			continue
		}
		log.Printf("udp: joined %s on %s", group, iface.Name)
		joined++
	}
	if joined == 0 {
		conn.Close()
		return nil, fmt.Errorf("could not join %s on any interface", group)
	}
	return conn, nil
}

func (t *udpTransport) ReadLine() (string, error) {
	if line, ok := t.pop(); ok {
		return line, nil
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		return "", fmt.Errorf("set udp deadline: %w", err)
	}
	n, _, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", nil
		}
		if errors.Is(err, net.ErrClosed) {
			return "", ErrClosed
		}
		return "", fmt.Errorf("read udp: %w", err)
	}

	lines := splitLines(t.buf[:n])
	if len(lines) == 0 {
		return "", nil
	}
	t.mu.Lock()
	t.queue = append(t.queue, lines[1:]...)
	t.mu.Unlock()
	return lines[0], nil
}

func (t *udpTransport) pop() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return "", false
	}
	line := t.queue[0]
	t.queue = t.queue[1:]
	return line, true
}

func (t *udpTransport) WriteLine(string) error {
	return ErrReadOnly
}

func (t *udpTransport) DiscardInput() error {
	t.mu.Lock()
	t.queue = nil
	t.mu.Unlock()
	return nil
}

func (t *udpTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
