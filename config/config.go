package config

type Config struct {
	Node NodeConfig `yaml:"node"`
}

type NodeConfig struct {
	MAC      int16  `yaml:"mac"`
	Driver   string `yaml:"driver"` // "sim", "serial" or "udp"
	LogLevel string `yaml:"log_level"`

	// BeaconIntervalS enables beacons at startup: seconds between beacons,
	// -1 or 0 leaves them disabled.
	BeaconIntervalS int `yaml:"beacon_interval_s"`

	Serial SerialConfig `yaml:"serial"`
	UDP    UDPConfig    `yaml:"udp"`
}

type SerialConfig struct {
	Address  string `yaml:"address"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
}

type UDPConfig struct {
	Group     string `yaml:"group"`
	Interface string `yaml:"interface"`
}
