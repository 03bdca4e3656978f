// Package udp carries link-layer frames over UDP multicast, letting several
// processes on one network segment share a channel. Each datagram is
// prefixed with the sending driver's random instance ID so multicast
// loopback does not hand a station its own frames back.
package udp

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/openairlab/dot11link/protocol"
)

const idSize = 8

// Config selects the multicast group.
type Config struct {
	// Group is the multicast address and port, e.g. "239.82.11.1:9300".
	Group string

	// Interface optionally names the network interface to join on.
	Interface string
}

// Driver adapts a multicast group to the transport layer's RF interface.
// UDP gives no carrier to sense, so InUse always reports idle: first
// transmissions go out after a plain DIFS wait, while retransmissions still
// count down backoff slots.
type Driver struct {
	group *net.UDPAddr
	in    *net.UDPConn
	out   *net.UDPConn

	id    [idSize]byte
	start time.Time
}

// Open joins the multicast group described by cfg.
func Open(cfg Config) (*Driver, error) {
	group, err := net.ResolveUDPAddr("udp4", cfg.Group)
	if err != nil {
		return nil, fmt.Errorf("resolving group %q: %w", cfg.Group, err)
	}

	var ifi *net.Interface
	if cfg.Interface != "" {
		ifi, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("looking up interface %q: %w", cfg.Interface, err)
		}
	}

	in, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, fmt.Errorf("joining group %q: %w", cfg.Group, err)
	}
	if err := in.SetReadBuffer(4 * protocol.MaxFrameSize); err != nil {
		in.Close()
		return nil, err
	}

	out, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		in.Close()
		return nil, err
	}

	d := &Driver{
		group: group,
		in:    in,
		out:   out,
		start: time.Now(),
	}
	if _, err := rand.Read(d.id[:]); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Transmit sends one frame to the group.
func (d *Driver) Transmit(data []byte) int {
	if len(data) > protocol.MaxFrameSize {
		data = data[:protocol.MaxFrameSize]
	}

	buf := make([]byte, 0, idSize+len(data))
	buf = append(buf, d.id[:]...)
	buf = append(buf, data...)

	n, err := d.out.Write(buf)
	if err != nil {
		return 0
	}
	if n < idSize {
		return 0
	}
	return n - idSize
}

// Receive blocks until a frame from another station arrives. Datagrams we
// sent ourselves and undersized datagrams yield nil; the caller's poll loop
// just tries again.
func (d *Driver) Receive() []byte {
	buf := make([]byte, idSize+protocol.MaxFrameSize)
	n, _, err := d.in.ReadFromUDP(buf)
	if err != nil || n < idSize {
		return nil
	}
	if bytes.Equal(buf[:idSize], d.id[:]) {
		return nil
	}
	data := make([]byte, n-idSize)
	copy(data, buf[idSize:n])
	return data
}

// InUse always reports an idle channel.
func (d *Driver) InUse() bool {
	return false
}

// Clock returns milliseconds since the driver was opened.
func (d *Driver) Clock() int64 {
	return time.Since(d.start).Milliseconds()
}

// Close leaves the group and releases both sockets.
func (d *Driver) Close() error {
	err := d.in.Close()
	if cerr := d.out.Close(); err == nil {
		err = cerr
	}
	return err
}
