// Package dot11link provides a façade to access the 802.11~ link layer.
package dot11link

import (
	"github.com/openairlab/dot11link/protocol"
	"github.com/openairlab/dot11link/transport"
)

// Re-export the types callers need so simple programs only import the root
// package.
type (
	Frame        = protocol.Frame
	Link         = transport.Link
	Config       = transport.Config
	Params       = transport.Params
	RF           = transport.RF
	Transmission = transport.Transmission
)

// NewLink builds a Link over an RF device and starts its workers.
func NewLink(cfg Config) *Link {
	return transport.NewLink(cfg)
}

// DefaultParams returns the timing constants calibrated against the
// reference medium simulator.
func DefaultParams() Params {
	return transport.DefaultParams()
}

// Frame and addressing constants exposed in the public API.
const (
	FrameTypeData   = protocol.FrameTypeData
	FrameTypeAck    = protocol.FrameTypeAck
	FrameTypeBeacon = protocol.FrameTypeBeacon

	BroadcastAddr = protocol.BroadcastAddr

	MaxFrameSize   = protocol.MaxFrameSize
	MaxPayloadSize = protocol.MaxPayloadSize
)

// Status codes published through Link.Status.
const (
	StatusRxOK        = transport.StatusRxOK
	StatusTxDelivered = transport.StatusTxDelivered
	StatusTxFailed    = transport.StatusTxFailed
)
