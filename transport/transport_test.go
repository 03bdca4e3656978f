package transport

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/openairlab/dot11link/protocol"
)

// MockRF implements the RF interface for testing.
type MockRF struct {
	mu    sync.Mutex
	txLog [][]byte
	rx    chan []byte
	inUse bool
	start time.Time

	// onTx, when set, observes every transmitted frame.
	onTx func([]byte)
}

func NewMockRF() *MockRF {
	return &MockRF{
		rx:    make(chan []byte, 64),
		start: time.Now(),
	}
}

func (m *MockRF) Receive() []byte {
	return <-m.rx
}

func (m *MockRF) Transmit(data []byte) int {
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	m.mu.Lock()
	m.txLog = append(m.txLog, dataCopy)
	hook := m.onTx
	m.mu.Unlock()

	if hook != nil {
		hook(dataCopy)
	}
	return len(data)
}

func (m *MockRF) InUse() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inUse
}

func (m *MockRF) Clock() int64 {
	return time.Since(m.start).Milliseconds()
}

func (m *MockRF) SetInUse(v bool) {
	m.mu.Lock()
	m.inUse = v
	m.mu.Unlock()
}

func (m *MockRF) InjectRx(data []byte) {
	m.rx <- data
}

func (m *MockRF) TxLog() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.txLog))
	copy(out, m.txLog)
	return out
}

func (m *MockRF) ClearTxLog() {
	m.mu.Lock()
	m.txLog = nil
	m.mu.Unlock()
}

// ConnectRFs wires two mock devices so that each transmission arrives at
// the other device.
func ConnectRFs(a, b *MockRF) {
	a.mu.Lock()
	a.onTx = func(data []byte) { b.InjectRx(data) }
	a.mu.Unlock()
	b.mu.Lock()
	b.onTx = func(data []byte) { a.InjectRx(data) }
	b.mu.Unlock()
}

// testParams shrinks the timing constants so suites run quickly. The 50 ms
// boundary alignment still applies, so each DIFS wait lasts 26-75 ms.
func testParams() Params {
	return Params{
		SIFSTime:    5,
		SlotTime:    10,
		CWMin:       3,
		CWMax:       31,
		RetryLimit:  2,
		AckTxTime:   60,
		SenderFudge: 2100,
		RecvFudge:   2500,
	}
}

// newBareLink builds a Link without starting its workers so individual
// pieces can be driven directly.
func newBareLink(mac int16, rf RF, p Params) *Link {
	l := &Link{
		mac:       mac,
		rf:        rf,
		params:    p,
		log:       nopLogger(),
		sendQueue: make(chan []byte, queueCap),
		recvQueue: make(chan []byte, queueCap),
		ackQueue:  make(chan *protocol.Frame, queueCap),
		seqNums:   make(map[int16]int),
		done:      make(chan struct{}),
	}
	return l
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestUnicastDelivery(t *testing.T) {
	rfA := NewMockRF()
	rfB := NewMockRF()
	ConnectRFs(rfA, rfB)

	linkA := NewLink(Config{MAC: 17, RF: rfA, Params: testParams(), Logger: nopLogger()})
	defer linkA.Close()
	linkB := NewLink(Config{MAC: 23, RF: rfB, Params: testParams(), Logger: nopLogger()})
	defer linkB.Close()

	recvDone := make(chan Transmission, 1)
	go func() {
		var tr Transmission
		linkB.Recv(&tr)
		recvDone <- tr
	}()

	if n := linkA.Send(23, []byte("hello"), 5); n != 5 {
		t.Fatalf("Send accepted %d bytes, want 5", n)
	}

	waitFor(t, 5*time.Second, func() bool {
		return linkA.Status() == StatusTxDelivered
	}, "sender never saw TX_DELIVERED")

	select {
	case tr := <-recvDone:
		if !bytes.Equal(tr.Buf, []byte("hello")) {
			t.Errorf("received payload %q, want %q", tr.Buf, "hello")
		}
		if tr.SourceAddr != 17 || tr.DestAddr != 23 {
			t.Errorf("addresses = %d -> %d, want 17 -> 23", tr.SourceAddr, tr.DestAddr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("receiver never delivered the payload")
	}

	if linkB.Status() != StatusRxOK {
		t.Errorf("receiver status = %d, want %d", linkB.Status(), StatusRxOK)
	}

	frames := rfA.TxLog()
	if len(frames) != 1 {
		t.Fatalf("sender transmitted %d frames, want 1", len(frames))
	}
	f := protocol.DecodeFrame(frames[0])
	if f.Type != protocol.FrameTypeData || f.Seq != 0 || f.Retry {
		t.Errorf("unexpected data frame: %s", f.String())
	}

	acks := rfB.TxLog()
	if len(acks) != 1 {
		t.Fatalf("receiver transmitted %d frames, want 1 ack", len(acks))
	}
	ack := protocol.DecodeFrame(acks[0])
	if ack.Type != protocol.FrameTypeAck || ack.Src != 23 || ack.Dest != 17 || ack.Seq != 0 {
		t.Errorf("unexpected ack: %s", ack.String())
	}
}

func TestRetryThenSuccess(t *testing.T) {
	rf := NewMockRF()
	link := NewLink(Config{MAC: 17, RF: rf, Params: testParams(), Logger: nopLogger()})
	defer link.Close()

	link.Send(23, []byte("again"), 5)

	waitFor(t, 5*time.Second, func() bool {
		return len(rf.TxLog()) >= 1
	}, "first transmission never happened")

	// No ACK arrives; the frame must go out a second time with the retry
	// bit raised and the same sequence number.
	waitFor(t, 5*time.Second, func() bool {
		return len(rf.TxLog()) >= 2
	}, "retransmission never happened")

	frames := rf.TxLog()
	first := protocol.DecodeFrame(frames[0])
	second := protocol.DecodeFrame(frames[1])
	if first.Retry {
		t.Error("first transmission has the retry bit set")
	}
	if !second.Retry {
		t.Error("retransmission is missing the retry bit")
	}
	if second.Seq != first.Seq {
		t.Errorf("retransmission seq = %d, want %d", second.Seq, first.Seq)
	}

	rf.InjectRx(protocol.EncodeFrame(protocol.FrameTypeAck, false, 23, 17, nil, 0, first.Seq))

	waitFor(t, 5*time.Second, func() bool {
		return link.Status() == StatusTxDelivered
	}, "sender never saw TX_DELIVERED after the late ack")
}

func TestRetryExhaustion(t *testing.T) {
	p := testParams()
	rf := NewMockRF()
	link := NewLink(Config{MAC: 17, RF: rf, Params: p, Logger: nopLogger()})
	defer link.Close()

	link.Send(23, []byte("void"), 4)

	waitFor(t, 20*time.Second, func() bool {
		return link.Status() == StatusTxFailed
	}, "sender never gave up")

	frames := rf.TxLog()
	want := 1 + p.RetryLimit
	if len(frames) != want {
		t.Fatalf("transmitted %d times, want %d", len(frames), want)
	}
	for i, raw := range frames {
		f := protocol.DecodeFrame(raw)
		if wantRetry := i > 0; f.Retry != wantRetry {
			t.Errorf("transmission %d retry bit = %v, want %v", i, f.Retry, wantRetry)
		}
	}
}

func TestBroadcastNoAck(t *testing.T) {
	rfA := NewMockRF()
	rfB := NewMockRF()
	ConnectRFs(rfA, rfB)

	linkA := NewLink(Config{MAC: 17, RF: rfA, Params: testParams(), Logger: nopLogger()})
	defer linkA.Close()
	linkB := NewLink(Config{MAC: 23, RF: rfB, Params: testParams(), Logger: nopLogger()})
	defer linkB.Close()

	linkA.Send(protocol.BroadcastAddr, []byte("all"), 3)

	var tr Transmission
	done := make(chan int, 1)
	go func() { done <- linkB.Recv(&tr) }()

	select {
	case n := <-done:
		if n != 3 || !bytes.Equal(tr.Buf, []byte("all")) {
			t.Errorf("Recv = %d, %q; want 3, %q", n, tr.Buf, "all")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast never arrived")
	}

	// Give the receiver a chance to (incorrectly) acknowledge.
	time.Sleep(200 * time.Millisecond)
	if got := len(rfB.TxLog()); got != 0 {
		t.Errorf("receiver transmitted %d frames for a broadcast, want 0", got)
	}
	if got := len(rfA.TxLog()); got != 1 {
		t.Errorf("sender transmitted %d frames, want 1", got)
	}
}

func TestSendBackpressure(t *testing.T) {
	rf := NewMockRF()
	rf.SetInUse(true) // keep the transmitter pinned in its busy wait

	link := NewLink(Config{MAC: 17, RF: rf, Params: testParams(), Logger: nopLogger()})
	defer link.Close()

	// The transmitter takes the first frame off the queue and then blocks
	// on the busy channel.
	if n := link.Send(23, []byte("a"), 1); n != 1 {
		t.Fatalf("Send 1 = %d, want 1", n)
	}
	waitFor(t, 5*time.Second, func() bool {
		return len(link.sendQueue) == 0
	}, "transmitter never picked up the first frame")

	for i := 0; i < queueGate; i++ {
		if n := link.Send(23, []byte("x"), 1); n != 1 {
			t.Fatalf("Send %d = %d, want 1", i+2, n)
		}
	}

	if n := link.Send(23, []byte("y"), 1); n != 0 {
		t.Errorf("Send past the gate = %d, want 0", n)
	}
	if link.Status() != StatusTxFailed {
		t.Errorf("status = %d, want %d", link.Status(), StatusTxFailed)
	}
}

func TestBeaconSchedule(t *testing.T) {
	rf := NewMockRF()
	link := NewLink(Config{MAC: 7, RF: rf, Params: testParams(), Logger: nopLogger()})
	defer link.Close()

	link.Command(3, 1)

	// The initial beacon is queued immediately and transmitted once the
	// DIFS wait elapses; the schedule then produces more.
	waitFor(t, 10*time.Second, func() bool {
		return len(rf.TxLog()) >= 2
	}, "beacons never went out")

	for i, raw := range rf.TxLog()[:2] {
		f := protocol.DecodeFrame(raw)
		if f.Type != protocol.FrameTypeBeacon {
			t.Fatalf("frame %d type = %d, want beacon", i, f.Type)
		}
		if f.Dest != protocol.BroadcastAddr {
			t.Errorf("frame %d dest = %d, want broadcast", i, f.Dest)
		}
		if f.Seq != i {
			t.Errorf("frame %d seq = %d, want %d", i, f.Seq, i)
		}
		if ts := protocol.BytesToTimestamp(f.Payload); ts <= 0 {
			t.Errorf("frame %d carries timestamp %d", i, ts)
		}
	}
}
