package config

import (
	"fmt"
	"net"
)

// Validate checks configuration correctness. It performs declarative
// validation only and MUST NOT mutate the configuration.
func Validate(cfg *Config) error {
	n := cfg.Node

	switch n.Driver {
	case "sim":
		// Nothing to configure.
	case "serial":
		if n.Serial.Address == "" {
			return fmt.Errorf("driver %q requires serial.address", n.Driver)
		}
		if n.Serial.BaudRate < 0 {
			return fmt.Errorf("serial.baud_rate must not be negative, got %d", n.Serial.BaudRate)
		}
	case "udp":
		if n.UDP.Group == "" {
			return fmt.Errorf("driver %q requires udp.group", n.Driver)
		}
		host, _, err := net.SplitHostPort(n.UDP.Group)
		if err != nil {
			return fmt.Errorf("udp.group %q: %w", n.UDP.Group, err)
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsMulticast() {
			return fmt.Errorf("udp.group %q: host is not a multicast address", n.UDP.Group)
		}
	default:
		return fmt.Errorf("unknown driver %q", n.Driver)
	}

	switch n.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", n.LogLevel)
	}

	if n.BeaconIntervalS < -1 {
		return fmt.Errorf("beacon_interval_s must be -1, 0 or positive, got %d", n.BeaconIntervalS)
	}

	return nil
}
