// Package serial carries link-layer frames over a serial line. Frames are
// length-prefixed on the wire with a big-endian 16-bit count, since a byte
// stream has no frame boundaries of its own.
package serial

import (
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"

	"github.com/openairlab/dot11link/protocol"
)

// Config selects and configures the serial port.
type Config struct {
	Address  string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// Driver adapts a serial port to the transport layer's RF interface. A
// point-to-point line has no carrier to sense, so InUse only reports our
// own in-progress writes.
type Driver struct {
	port serial.Port

	wmu sync.Mutex
	rmu sync.Mutex

	writing atomic.Bool
	start   time.Time
}

// Open opens the serial port described by cfg.
func Open(cfg Config) (*Driver, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = 1
	}
	if cfg.Parity == "" {
		cfg.Parity = "N"
	}

	port, err := serial.Open(&serial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
	})
	if err != nil {
		return nil, err
	}

	return &Driver{
		port:  port,
		start: time.Now(),
	}, nil
}

// Transmit writes one length-prefixed frame to the line.
func (d *Driver) Transmit(data []byte) int {
	if len(data) > protocol.MaxFrameSize {
		data = data[:protocol.MaxFrameSize]
	}

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(data)))

	d.wmu.Lock()
	d.writing.Store(true)
	defer func() {
		d.writing.Store(false)
		d.wmu.Unlock()
	}()

	if _, err := d.port.Write(prefix[:]); err != nil {
		return 0
	}
	n, err := d.port.Write(data)
	if err != nil {
		return n
	}
	return n
}

// Receive blocks until one full frame has been read off the line. It
// returns nil on a read error or an oversized length prefix; the caller's
// poll loop just tries again.
func (d *Driver) Receive() []byte {
	d.rmu.Lock()
	defer d.rmu.Unlock()

	var prefix [2]byte
	if _, err := io.ReadFull(d.port, prefix[:]); err != nil {
		return nil
	}
	length := int(binary.BigEndian.Uint16(prefix[:]))
	if length > protocol.MaxFrameSize {
		return nil
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(d.port, data); err != nil {
		return nil
	}
	return data
}

// InUse reports whether we are mid-write. The far end's transmissions are
// invisible until their bytes arrive.
func (d *Driver) InUse() bool {
	return d.writing.Load()
}

// Clock returns milliseconds since the driver was opened.
func (d *Driver) Clock() int64 {
	return time.Since(d.start).Milliseconds()
}

// Close releases the serial port.
func (d *Driver) Close() error {
	return d.port.Close()
}
