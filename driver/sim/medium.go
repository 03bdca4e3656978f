package sim

import (
	"sync"
	"time"
)

// Default on-air timing. A frame occupies the channel for a fixed base
// duration plus a per-byte cost, so a 10-byte ACK takes 1113 ms, matching
// the transport layer's AckTxTime.
const (
	DefaultAirtimeBase    = 1103 * time.Millisecond
	DefaultAirtimePerByte = 1 * time.Millisecond
)

// Medium is an in-process shared radio channel. Every frame transmitted by
// an attached Radio occupies the channel for its airtime and is then
// delivered to all other attached radios.
type Medium struct {
	airtimeBase    time.Duration
	airtimePerByte time.Duration

	mu        sync.Mutex
	radios    []*Radio
	busyUntil time.Time
	start     time.Time
}

// NewMedium creates a channel with the default airtime model.
func NewMedium() *Medium {
	return NewMediumWithAirtime(DefaultAirtimeBase, DefaultAirtimePerByte)
}

// NewMediumWithAirtime creates a channel with a custom airtime model. Tests
// shrink these to keep suites fast.
func NewMediumWithAirtime(base, perByte time.Duration) *Medium {
	return &Medium{
		airtimeBase:    base,
		airtimePerByte: perByte,
		start:          time.Now(),
	}
}

// Attach adds a new radio to the channel.
func (m *Medium) Attach() *Radio {
	r := &Radio{
		medium: m,
		rx:     make(chan []byte, 64),
	}
	m.mu.Lock()
	m.radios = append(m.radios, r)
	m.mu.Unlock()
	return r
}

// InUse reports whether any transmission is currently on the air.
func (m *Medium) InUse() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Now().Before(m.busyUntil)
}

// Clock returns milliseconds since the medium was created. All attached
// radios share it, so peers start out synchronised; beacon offsets matter
// once radios on different media (or hosts) are bridged.
func (m *Medium) Clock() int64 {
	return time.Since(m.start).Milliseconds()
}

func (m *Medium) airtime(n int) time.Duration {
	return m.airtimeBase + time.Duration(n)*m.airtimePerByte
}

// transmit occupies the channel for the frame's airtime, blocking the
// caller like a real radio front end, then fans the frame out to every
// other radio.
func (m *Medium) transmit(from *Radio, data []byte) int {
	air := m.airtime(len(data))

	m.mu.Lock()
	until := time.Now().Add(air)
	if until.After(m.busyUntil) {
		m.busyUntil = until
	}
	targets := make([]*Radio, 0, len(m.radios))
	for _, r := range m.radios {
		if r != from {
			targets = append(targets, r)
		}
	}
	m.mu.Unlock()

	time.Sleep(air)

	frame := make([]byte, len(data))
	copy(frame, data)
	for _, r := range targets {
		select {
		case r.rx <- frame:
		default:
			// A radio that stopped draining its queue misses frames,
			// like a deaf receiver would.
		}
	}
	return len(data)
}

// Radio is one station's attachment to a Medium. It satisfies the
// transport layer's RF interface.
type Radio struct {
	medium *Medium
	rx     chan []byte
}

// Receive blocks until a frame transmitted by another radio arrives.
func (r *Radio) Receive() []byte {
	return <-r.rx
}

// Transmit puts a frame on the shared channel and blocks for its airtime.
func (r *Radio) Transmit(data []byte) int {
	return r.medium.transmit(r, data)
}

// InUse reports the shared channel's carrier state.
func (r *Radio) InUse() bool {
	return r.medium.InUse()
}

// Clock returns the shared medium clock in milliseconds.
func (r *Radio) Clock() int64 {
	return r.medium.Clock()
}
