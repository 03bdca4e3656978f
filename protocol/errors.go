package protocol

import "errors"

var (
	ErrFrameTooShort = errors.New("frame too short")
	ErrFrameTooLarge = errors.New("frame too large")
)
