// Package source provides datagram inputs for the receive pipeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// pollInterval bounds each blocking read so cancellation is noticed
// promptly.
const pollInterval = time.Second

// Config describes a UDP listen endpoint. A multicast Listen address
// makes the socket join the group, on Interface when set.
type Config struct {
	Listen    string `yaml:"listen"`
	Interface string `yaml:"interface"`

	// ReadBuffer is the kernel receive buffer size in bytes. Zero keeps
	// the system default.
	ReadBuffer int `yaml:"read_buffer"`
}

// Validate checks that the endpoint is well formed.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.ReadBuffer < 0 {
		return fmt.Errorf("read buffer must not be negative, got %d", c.ReadBuffer)
	}
	return nil
}

// UDP reads VRT datagrams from a unicast or multicast UDP socket. It
// implements the receiver's DatagramSource.
type UDP struct {
	conn   *net.UDPConn
	group  *net.UDPAddr
	logger *slog.Logger
}

// Option configures optional collaborators of a UDP source.
type Option func(*UDP)

// WithLogger sets the source logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *UDP) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// OpenUDP binds the socket described by cfg. The address is opened with
// SO_REUSEADDR and SO_REUSEPORT so several consumers can share a
// multicast group.
func OpenUDP(cfg Config, opts ...Option) (*UDP, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	addr, err := net.ResolveUDPAddr("udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", cfg.Listen, err)
	}

	lc := net.ListenConfig{Control: reusePort}
	pc, err := lc.ListenPacket(context.Background(), "udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", cfg.Listen, err)
	}
	conn := pc.(*net.UDPConn)

	u := &UDP{conn: conn, logger: discardLogger()}
	for _, opt := range opts {
		opt(u)
	}

	if cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(cfg.ReadBuffer); err != nil {
			u.logger.Warn("cannot grow receive buffer", "bytes", cfg.ReadBuffer, "error", err)
		}
	}

	if addr.IP != nil && addr.IP.IsMulticast() {
		if err := u.joinGroup(addr, cfg.Interface); err != nil {
			conn.Close()
			return nil, err
		}
		u.group = addr
	}

	u.logger.Info("listening", "addr", cfg.Listen, "multicast", u.group != nil)
	return u, nil
}

func (u *UDP) joinGroup(addr *net.UDPAddr, ifname string) error {
	var iface *net.Interface
	if ifname != "" {
		var err error
		if iface, err = net.InterfaceByName(ifname); err != nil {
			return fmt.Errorf("interface %q: %w", ifname, err)
		}
	}

	p := ipv4.NewPacketConn(u.conn)
	if err := p.JoinGroup(iface, &net.UDPAddr{IP: addr.IP}); err != nil {
		return fmt.Errorf("join group %s: %w", addr.IP, err)
	}
	return nil
}

// ReadDatagram fills buf with the next datagram. It polls in short
// deadline slices so a cancelled context is honoured within the poll
// interval.
func (u *UDP) ReadDatagram(ctx context.Context, buf []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := u.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return 0, fmt.Errorf("set read deadline: %w", err)
		}

		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, fmt.Errorf("read udp: %w", err)
		}
		return n, nil
	}
}

// LocalAddr returns the bound socket address.
func (u *UDP) LocalAddr() net.Addr { return u.conn.LocalAddr() }

// Close releases the socket, leaving the multicast group first when one
// was joined.
func (u *UDP) Close() error {
	if u.group != nil {
		p := ipv4.NewPacketConn(u.conn)
		if err := p.LeaveGroup(nil, &net.UDPAddr{IP: u.group.IP}); err != nil {
			u.logger.Warn("leave group failed", "group", u.group.IP, "error", err)
		}
	}
	return u.conn.Close()
}

// reusePort enables address and port sharing before bind, so multiple
// processes can subscribe to the same multicast feed.
func reusePort(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); serr != nil {
			return
		}
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
