package transport

import (
	"math/rand"
	"time"

	"github.com/openairlab/dot11link/protocol"
)

// txState enumerates the medium-access state machine.
type txState int

const (
	stateAwaitPacket txState = iota // waiting for an outbound frame
	stateIdleDIFSWait               // channel idle, wait DIFS then transmit
	stateBusyDIFSWait               // channel busy, wait it out then back off
	stateSlotWait                   // counting down backoff slots
	stateAwaitAck                   // unicast sent, waiting for its ACK
)

func (s txState) String() string {
	switch s {
	case stateAwaitPacket:
		return "AWAIT_PACKET"
	case stateIdleDIFSWait:
		return "IDLE_DIFS_WAIT"
	case stateBusyDIFSWait:
		return "BUSY_DIFS_WAIT"
	case stateSlotWait:
		return "SLOT_WAIT"
	case stateAwaitAck:
		return "AWAIT_ACK"
	default:
		return "UNKNOWN"
	}
}

// transmitter holds the state machine's working set: the pending frame, its
// decoded view, the contention window and the backoff slot countdown.
type transmitter struct {
	link *Link
	rng  *rand.Rand

	pending     []byte
	frame       *protocol.Frame
	isBroadcast bool

	retries  int
	cw       int // contention window upper bound
	slotRand int // remaining backoff slots
}

// runTransmitter drives the state machine until the link is closed. Each
// state is one method returning the next state.
func (l *Link) runTransmitter() {
	t := &transmitter{
		link: l,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		cw:   l.params.CWMin,
	}

	state := stateAwaitPacket
	for {
		select {
		case <-l.done:
			return
		default:
		}

		var next txState
		switch state {
		case stateAwaitPacket:
			next = t.awaitPacket()
		case stateIdleDIFSWait:
			next = t.idleDIFSWait()
		case stateBusyDIFSWait:
			next = t.busyDIFSWait()
		case stateSlotWait:
			next = t.slotWait()
		case stateAwaitAck:
			next = t.awaitAck()
		}

		if next != state {
			l.log.Debugw("transmitter state change", "from", state.String(), "to", next.String())
		}
		state = next
	}
}

// awaitPacket blocks until there is something to send. With beacons enabled
// a due beacon takes priority over queued data, and the queue wait is
// bounded by the beacon interval so a quiet link still beacons on schedule.
func (t *transmitter) awaitPacket() txState {
	l := t.link

	var data []byte
	interval := l.beaconInterval.Load()
	switch {
	case interval > 0 && l.isTimeToBeacon():
		data = l.createBeacon()

	case interval > 0:
		timer := time.NewTimer(time.Duration(interval) * time.Millisecond)
		select {
		case data = <-l.sendQueue:
			timer.Stop()
		case <-timer.C:
			data = l.createBeacon()
		case <-l.done:
			timer.Stop()
			return stateAwaitPacket
		}

	default:
		select {
		case data = <-l.sendQueue:
		case <-l.done:
			return stateAwaitPacket
		}
	}

	t.pending = data
	t.frame = protocol.DecodeFrame(data)
	if t.frame == nil {
		return stateAwaitPacket
	}
	t.isBroadcast = t.frame.Dest == protocol.BroadcastAddr
	t.retries = 0
	t.cw = l.params.CWMin
	l.log.Debugw("frame pending", "frame", t.frame.String(),
		"window", t.cw, "broadcast", t.isBroadcast)

	if l.rf.InUse() {
		return stateBusyDIFSWait
	}
	return stateIdleDIFSWait
}

// idleDIFSWait transmits after one boundary-aligned DIFS as long as the
// channel stays idle the whole way.
func (t *transmitter) idleDIFSWait() txState {
	l := t.link

	if l.rf.InUse() {
		return stateBusyDIFSWait
	}
	t.sleepDIFS()
	if l.rf.InUse() {
		return stateBusyDIFSWait
	}

	t.transmit()
	l.lastBeaconSent.Store(wallNow())

	if t.isBroadcast {
		return stateAwaitPacket
	}
	return stateAwaitAck
}

// busyDIFSWait rides out the current transmission, then draws a fresh slot
// count and waits one more DIFS before starting the countdown.
func (t *transmitter) busyDIFSWait() txState {
	l := t.link

	for l.rf.InUse() {
		t.sleepDIFS()
	}

	t.pickSlot()

	t.sleepDIFS()
	if l.rf.InUse() {
		return stateBusyDIFSWait
	}
	l.log.Debugw("starting slot countdown", "slots", t.slotRand)
	return stateSlotWait
}

// slotWait counts backoff slots down on 50 ms boundaries, aborting back to
// busyDIFSWait if the channel goes busy mid-countdown. The abort leaves the
// remaining count in slotRand, but busyDIFSWait draws a fresh count before
// the countdown starts again.
func (t *transmitter) slotWait() txState {
	l := t.link

	for t.slotRand > 0 {
		now := wallNow()
		nextBoundary := boundaryMS - now%boundaryMS
		sleep := nextBoundary
		if l.params.SlotTime < sleep {
			sleep = l.params.SlotTime
		}
		time.Sleep(time.Duration(sleep) * time.Millisecond)

		if l.rf.InUse() {
			l.log.Debugw("slot countdown interrupted", "remaining", t.slotRand)
			return stateBusyDIFSWait
		}

		// Only a sleep that ends on the boundary (boundary at most one
		// slot away) consumes a slot; a full slot sleep short of it does not.
		if nextBoundary <= l.params.SlotTime {
			t.slotRand--
		}
	}

	if l.rf.InUse() {
		return stateBusyDIFSWait
	}

	t.transmit()
	if t.isBroadcast {
		l.lastBeaconSent.Store(wallNow())
		return stateAwaitPacket
	}
	return stateAwaitAck
}

// awaitAck polls the ACK queue for SIFS + the ACK's air time + the remaining
// backoff slot count (zero once a countdown has completed), then either
// reports delivery or schedules a retransmission. The first retransmission
// uses the minimum contention window; later ones double it up to CWMax.
func (t *transmitter) awaitAck() txState {
	l := t.link

	timeout := l.params.SIFSTime + l.params.AckTxTime + int64(t.slotRand)*l.params.SlotTime

	var ack *protocol.Frame
	timer := time.NewTimer(time.Duration(timeout) * time.Millisecond)
	select {
	case ack = <-l.ackQueue:
		timer.Stop()
	case <-timer.C:
	case <-l.done:
		timer.Stop()
		return stateAwaitAck
	}

	if ack != nil && ack.Dest == t.frame.Src {
		l.status.Store(StatusTxDelivered)
		l.log.Debugw("got a valid ack", "frame", ack.String())
		return stateAwaitPacket
	}

	if t.retries < l.params.RetryLimit {
		if t.retries == 0 {
			t.cw = l.params.CWMin
		} else {
			t.cw = min(t.cw*2, l.params.CWMax)
			l.log.Debugw("doubled contention window", "window", t.cw)
		}
		t.retries++
		t.setRetryBit()
		l.log.Debugw("ack timeout, retransmitting",
			"attempt", t.retries, "slotCount", t.slotRand)
		return stateBusyDIFSWait
	}

	l.status.Store(StatusTxFailed)
	l.log.Debugw("retry limit exceeded, dropping frame", "frame", t.frame.String())
	return stateAwaitPacket
}

// setRetryBit re-encodes the pending frame with the retry flag raised.
func (t *transmitter) setRetryBit() {
	f := t.frame
	t.pending = protocol.EncodeFrame(f.Type, true, f.Src, f.Dest, f.Payload, len(f.Payload), f.Seq)
	f.Retry = true
}

// pickSlot draws the backoff slot count: the window maximum in max-slot
// mode, otherwise uniform over [0, cw].
func (t *transmitter) pickSlot() {
	if t.link.maxSlot.Load() {
		t.slotRand = t.cw
		return
	}
	t.slotRand = t.rng.Intn(t.cw + 1)
}

// transmit puts the pending frame on the air under the shared RF write lock.
func (t *transmitter) transmit() {
	l := t.link
	l.txMu.Lock()
	l.rf.Transmit(t.pending)
	l.txMu.Unlock()
	l.log.Debugw("transmitted", "frame", t.frame.String(), "at", l.LocalClock())
}

// sleepDIFS sleeps to the next 50 ms wall-clock boundary plus one DIFS.
func (t *transmitter) sleepDIFS() {
	now := wallNow()
	ms := (boundaryMS - now%boundaryMS) + t.link.params.DIFS()
	time.Sleep(time.Duration(ms) * time.Millisecond)
}
