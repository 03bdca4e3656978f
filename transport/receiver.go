package transport

import (
	"time"

	"github.com/openairlab/dot11link/protocol"
)

// runReceiver polls the RF device and dispatches each inbound frame: DATA
// for us goes to the receive queue and is acknowledged, ACKs for us go to
// the transmitter, broadcast beacons adjust the clock offset. Everything
// else is dropped.
func (l *Link) runReceiver() {
	for {
		select {
		case <-l.done:
			return
		default:
		}

		data := l.rf.Receive()
		if data == nil {
			continue
		}

		f := protocol.DecodeFrame(data)
		if f == nil {
			continue
		}
		if !f.CRCOK {
			l.log.Debugw("dropping frame with bad checksum", "frame", f.String())
			continue
		}

		switch {
		case f.Type == protocol.FrameTypeData && f.Dest == l.mac:
			l.handleUnicastData(data, f)

		case f.Type == protocol.FrameTypeData && f.Dest == protocol.BroadcastAddr:
			// Broadcast traffic is exempt from the backpressure gate and
			// never acknowledged.
			l.log.Debugw("queuing broadcast", "frame", f.String())
			l.recvQueue <- data

		case f.Type == protocol.FrameTypeAck && f.Dest == l.mac:
			select {
			case l.ackQueue <- f:
			default:
				l.log.Debugw("ack queue full, dropping", "frame", f.String())
			}

		case f.Type == protocol.FrameTypeBeacon && f.Dest == protocol.BroadcastAddr:
			l.absorbBeacon(f)

		default:
			l.log.Debugw("ignoring frame for another station", "frame", f.String())
		}
	}
}

// handleUnicastData queues a DATA frame addressed to us and acknowledges it
// after a SIFS gap. Frames arriving while four are already queued for the
// caller are dropped without an ACK.
func (l *Link) handleUnicastData(data []byte, f *protocol.Frame) {
	if len(l.recvQueue) >= queueGate {
		l.log.Debugw("receive queue full, dropping", "frame", f.String())
		return
	}
	l.recvQueue <- data
	l.log.Debugw("queued incoming data", "frame", f.String())

	time.Sleep(time.Duration(l.params.SIFSTime) * time.Millisecond)

	ack := protocol.EncodeFrame(protocol.FrameTypeAck, false, l.mac, f.Src, nil, 0, f.Seq)
	l.txMu.Lock()
	l.rf.Transmit(ack)
	l.txMu.Unlock()
	l.log.Debugw("sent ack", "dest", f.Src, "seq", f.Seq)
}

// absorbBeacon advances the clock offset when a beacon's timestamp, less
// the receive-path fudge factor, is ahead of our local clock. The offset
// never moves backwards.
func (l *Link) absorbBeacon(f *protocol.Frame) {
	if len(f.Payload) < protocol.BeaconPayloadSize {
		return
	}
	adjusted := protocol.BytesToTimestamp(f.Payload) - l.params.RecvFudge

	local := l.LocalClock()
	if adjusted > local {
		l.offset.Add(adjusted - local)
		l.log.Debugw("advanced clock from beacon",
			"frame", f.String(), "advancedBy", adjusted-local)
	} else {
		l.log.Debugw("beacon behind local clock, ignoring", "frame", f.String())
	}
}
