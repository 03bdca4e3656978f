package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openairlab/dot11link/protocol"
)

// Transmission carries one received datagram back to the caller.
type Transmission struct {
	SourceAddr int16
	DestAddr   int16
	Buf        []byte
}

// Config assembles a Link.
type Config struct {
	MAC    int16
	RF     RF
	Params Params

	// Logger receives the link layer's output. Nil means no logging.
	Logger *zap.SugaredLogger

	// Level, when set, is flipped between Info and Debug by Command(1, ...).
	Level *zap.AtomicLevel
}

// Link is the datagram surface of the 802.11~ layer. One Link owns one RF
// device and runs two workers over it: a transmitter driving the
// medium-access state machine and a receiver dispatching inbound frames.
type Link struct {
	mac    int16
	rf     RF
	params Params

	log   *zap.SugaredLogger
	level *zap.AtomicLevel

	sendQueue chan []byte
	recvQueue chan []byte
	ackQueue  chan *protocol.Frame

	seqMu   sync.Mutex
	seqNums map[int16]int

	// txMu serialises writes to the RF device. The transmitter holds it
	// for every frame it puts on the air and the receiver holds it while
	// emitting an ACK.
	txMu sync.Mutex

	status atomic.Int32
	offset atomic.Int64

	lastBeaconSent atomic.Int64 // wall clock, ms
	beaconInterval atomic.Int64 // ms; 0 means beacons disabled
	maxSlot        atomic.Bool
	debug          atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewLink builds a Link over the given RF device and starts its transmitter
// and receiver workers.
func NewLink(cfg Config) *Link {
	if cfg.Params == (Params{}) {
		cfg.Params = DefaultParams()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	l := &Link{
		mac:       cfg.MAC,
		rf:        cfg.RF,
		params:    cfg.Params,
		log:       cfg.Logger,
		level:     cfg.Level,
		sendQueue: make(chan []byte, queueCap),
		recvQueue: make(chan []byte, queueCap),
		ackQueue:  make(chan *protocol.Frame, queueCap),
		seqNums:   make(map[int16]int),
		done:      make(chan struct{}),
	}

	l.log.Infow("link layer initialised", "mac", l.mac)

	go l.runTransmitter()
	go l.runReceiver()

	return l
}

// Send queues up to length bytes of data for delivery to dest. It returns
// the number of bytes accepted, which is 0 when the send queue is already
// carrying its backpressure limit.
func (l *Link) Send(dest int16, data []byte, length int) int {
	if len(l.sendQueue) >= queueGate {
		l.status.Store(StatusTxFailed)
		l.log.Debugw("send queue full, dropping", "dest", dest, "len", length)
		return 0
	}

	seq := l.nextSeq(dest)
	frame := protocol.EncodeFrame(protocol.FrameTypeData, false, l.mac, dest, data, length, seq)
	l.log.Debugw("queuing frame", "dest", dest, "len", length, "seq", seq)
	l.sendQueue <- frame

	return length
}

// Recv blocks until a datagram arrives, fills in t, and returns the payload
// length. After Close it returns 0 without filling t.
func (l *Link) Recv(t *Transmission) int {
	for {
		var data []byte
		select {
		case data = <-l.recvQueue:
		case <-l.done:
			return 0
		}

		f := protocol.DecodeFrame(data)
		if f == nil || !f.CRCOK {
			l.log.Debugw("discarding corrupt frame from receive queue")
			continue
		}

		t.SourceAddr = f.Src
		t.DestAddr = f.Dest
		t.Buf = f.Payload
		l.status.Store(StatusRxOK)
		l.log.Infow("received", "bytes", len(f.Payload), "src", f.Src)
		return len(f.Payload)
	}
}

// Status returns the most recently published status code.
func (l *Link) Status() int {
	return int(l.status.Load())
}

// LocalClock is the RF clock adjusted by the beacon-derived offset.
func (l *Link) LocalClock() int64 {
	return l.rf.Clock() + l.offset.Load()
}

// Close stops the transmitter and receiver workers. Safe to call more than
// once.
func (l *Link) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Command adjusts runtime settings. Recognised commands:
//
//	0        print current settings
//	1, val   val != 0 enables debug output, 0 disables it
//	2, val   val == 0 selects random backoff slots, otherwise always the max
//	3, val   val > 0 sends beacons every val seconds, -1 disables them
func (l *Link) Command(cmd, val int) int {
	switch cmd {
	case 0:
		l.printSettings()

	case 1:
		if val == 0 {
			l.debug.Store(false)
			if l.level != nil {
				l.level.SetLevel(zapcore.InfoLevel)
			}
			l.log.Infow("debug output disabled")
		} else {
			l.debug.Store(true)
			if l.level != nil {
				l.level.SetLevel(zapcore.DebugLevel)
			}
			l.log.Infow("debug output enabled")
		}

	case 2:
		l.maxSlot.Store(val != 0)
		if val == 0 {
			l.log.Infow("using random slot selection")
		} else {
			l.log.Infow("using maximum slot selection")
		}

	case 3:
		switch {
		case val == -1:
			l.beaconInterval.Store(0)
			l.log.Infow("beacon frames will never be sent")
		case val > 0:
			l.beaconInterval.Store(int64(val) * 1000)
			l.log.Infow("beacon interval set", "seconds", val)
			l.sendInitialBeacon()
		}

	default:
		l.log.Infow("not a valid command", "cmd", cmd)
	}
	return 0
}

func (l *Link) printSettings() {
	slotMode := "random"
	if l.maxSlot.Load() {
		slotMode = "max"
	}
	debugLevel := 0
	if l.debug.Load() {
		debugLevel = -1
	}
	l.log.Infow("current settings",
		"debug", debugLevel,
		"slotSelection", slotMode,
		"beaconIntervalSeconds", l.beaconInterval.Load()/1000,
	)
}

// nextSeq returns the sequence number for the next frame to dest. First use
// of a destination yields 0; later uses increment modulo the sequence space.
func (l *Link) nextSeq(dest int16) int {
	l.seqMu.Lock()
	defer l.seqMu.Unlock()

	seq, ok := l.seqNums[dest]
	if !ok {
		l.seqNums[dest] = 0
		return 0
	}
	seq = (seq + 1) % protocol.SeqModulo
	l.seqNums[dest] = seq
	return seq
}

// createBeacon builds a broadcast beacon carrying the local clock advanced
// by the sender-side fudge factor.
func (l *Link) createBeacon() []byte {
	ts := protocol.TimestampToBytes(l.LocalClock() + l.params.SenderFudge)
	seq := l.nextSeq(protocol.BroadcastAddr)
	return protocol.EncodeFrame(protocol.FrameTypeBeacon, false, l.mac, protocol.BroadcastAddr,
		ts, protocol.BeaconPayloadSize, seq)
}

// isTimeToBeacon reports whether the beacon interval has elapsed since the
// last transmission that stamped lastBeaconSent.
func (l *Link) isTimeToBeacon() bool {
	interval := l.beaconInterval.Load()
	if interval <= 0 {
		return false
	}
	return wallNow()-l.lastBeaconSent.Load() >= interval
}

// sendInitialBeacon queues a beacon right away if the channel is idle. When
// the channel is busy nothing is queued; the next beacon comes from the
// transmitter's schedule, which a transmitter already blocked on the send
// queue with beacons disabled only reaches after its next queued frame.
func (l *Link) sendInitialBeacon() {
	if l.rf.InUse() {
		return
	}
	select {
	case l.sendQueue <- l.createBeacon():
		l.lastBeaconSent.Store(wallNow())
	default:
	}
}

func wallNow() int64 {
	return time.Now().UnixMilli()
}
