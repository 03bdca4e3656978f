// Command dot11node runs a single link-layer station: it loads a YAML
// configuration, attaches the configured radio backend, and exposes the
// link's send/command surface on stdin.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openairlab/dot11link/config"
	"github.com/openairlab/dot11link/driver/serial"
	"github.com/openairlab/dot11link/driver/sim"
	"github.com/openairlab/dot11link/driver/udp"
	"github.com/openairlab/dot11link/transport"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: dot11node <config.yaml>")
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	level := zap.NewAtomicLevelAt(parseLevel(cfg.Node.LogLevel))
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = level
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	rf, cleanup, err := buildDriver(cfg)
	if err != nil {
		log.Fatalf("driver setup failed: %v", err)
	}
	defer cleanup()

	link := transport.NewLink(transport.Config{
		MAC:    cfg.Node.MAC,
		RF:     rf,
		Params: transport.DefaultParams(),
		Logger: sugar,
		Level:  &level,
	})
	defer link.Close()

	if cfg.Node.BeaconIntervalS > 0 {
		link.Command(3, cfg.Node.BeaconIntervalS)
	}

	go recvLoop(link, sugar)

	runShell(link, sugar)
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func buildDriver(cfg *config.Config) (transport.RF, func(), error) {
	switch cfg.Node.Driver {
	case "sim":
		// A lone in-process station; useful for poking at the shell and
		// watching beacons go out.
		return sim.NewMedium().Attach(), func() {}, nil

	case "serial":
		d, err := serial.Open(serial.Config{
			Address:  cfg.Node.Serial.Address,
			BaudRate: cfg.Node.Serial.BaudRate,
			DataBits: cfg.Node.Serial.DataBits,
			StopBits: cfg.Node.Serial.StopBits,
			Parity:   cfg.Node.Serial.Parity,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, func() { d.Close() }, nil

	case "udp":
		d, err := udp.Open(udp.Config{
			Group:     cfg.Node.UDP.Group,
			Interface: cfg.Node.UDP.Interface,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, func() { d.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", cfg.Node.Driver)
}

func recvLoop(link *transport.Link, sugar *zap.SugaredLogger) {
	for {
		var tr transport.Transmission
		n := link.Recv(&tr)
		if n == 0 && tr.Buf == nil {
			return
		}
		sugar.Infof("recv %d bytes from %d: %q", n, tr.SourceAddr, tr.Buf)
	}
}

func runShell(link *transport.Link, sugar *zap.SugaredLogger) {
	fmt.Println("commands: send <dest> <text> | cmd <n> <val> | status | clock | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "send":
			if len(fields) < 3 {
				fmt.Println("usage: send <dest> <text>")
				continue
			}
			dest, err := strconv.ParseInt(fields[1], 10, 16)
			if err != nil {
				fmt.Printf("bad destination %q\n", fields[1])
				continue
			}
			payload := []byte(strings.Join(fields[2:], " "))
			n := link.Send(int16(dest), payload, len(payload))
			fmt.Printf("accepted %d bytes\n", n)

		case "cmd":
			if len(fields) != 3 {
				fmt.Println("usage: cmd <n> <val>")
				continue
			}
			c, err1 := strconv.Atoi(fields[1])
			v, err2 := strconv.Atoi(fields[2])
			if err1 != nil || err2 != nil {
				fmt.Println("usage: cmd <n> <val>")
				continue
			}
			link.Command(c, v)

		case "status":
			fmt.Printf("status: %d\n", link.Status())

		case "clock":
			fmt.Printf("local clock: %d ms\n", link.LocalClock())

		case "quit":
			return

		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}

	if err := scanner.Err(); err != nil {
		sugar.Errorw("stdin read failed", "error", err)
	}
}
