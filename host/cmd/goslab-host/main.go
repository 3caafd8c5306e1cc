package main

import (
	"fmt"
	"os"
	"sort"

	"goslab/core"
	"goslab/host/config"
	"goslab/host/instrument"
	"goslab/host/serial"
	"goslab/protocol"

	"github.com/urfave/cli/v2"
	"github.com/womat/debug"
)

func main() {
	exitCode := 1
	defer func() {
		os.Exit(exitCode)
	}()

	cfg := config.NewConfig()

	cliApp := &cli.App{
		Name:    "goslab-host",
		Usage:   "control a goslab logic analyzer over a serial connection",
		Version: protocol.Version,
		Description: "Arms and stops timestamp captures on the goslab logic analyzer" +
			"\n firmware and reads back the trigger-time pin states.",
		UsageText: "goslab-host [--config <file>] [--device <path>] <command>" +
			"\n\nEXAMPLE:" +
			"\n\tcapture 1000 events split across two channels, rising edges, no trigger" +
			"\n\t\tgoslab-host --device /dev/ttyACM0 capture --channels 2 --events 1000 --edge rising",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Destination: &cfg.Flag.Device, Usage: "serial `DEVICE` of the instrument"},
			&cli.IntFlag{Name: "baud", Aliases: []string{"b"}, Destination: &cfg.Flag.Baud, Usage: "baud `RATE` (ignored for USB CDC)"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.LogLevel, Usage: "`LEVEL` defines the log level (standard|debug|trace)"},
		},
		Commands: []*cli.Command{
			{
				Name:  "capture",
				Usage: "arm a timestamp capture",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "channels", Value: 1, Usage: "number of active channels (1-4)"},
					&cli.UintFlag{Name: "events", Value: 1000, Usage: "total timestamps across all channels"},
					&cli.StringFlag{Name: "edge", Value: "any", Usage: "edge type: any|rising|falling"},
					&cli.UintFlag{Name: "trigger", Value: 0, Usage: "trigger channel (1-4), 0 starts immediately"},
				},
				Action: func(ctx *cli.Context) error {
					return withInstrument(cfg, func(la *instrument.LogicAnalyzer) error {
						edge, err := core.ParseEdge(ctx.String("edge"))
						if err != nil {
							return err
						}
						channels := uint8(ctx.Uint("channels"))
						events := uint16(ctx.Uint("events"))
						trigger := core.Channel(ctx.Uint("trigger"))

						if err := la.Capture(channels, events, edge, trigger); err != nil {
							return err
						}
						debug.InfoLog.Printf("capture armed: %d channel(s), %d events, %s edge, trigger %d",
							channels, events, edge, trigger)
						return nil
					})
				},
			},
			{
				Name:  "stop",
				Usage: "stop any capture in progress",
				Action: func(ctx *cli.Context) error {
					return withInstrument(cfg, func(la *instrument.LogicAnalyzer) error {
						if err := la.Stop(); err != nil {
							return err
						}
						debug.InfoLog.Print("capture stopped")
						return nil
					})
				},
			},
			{
				Name:  "states",
				Usage: "read the pin levels snapshotted at trigger time",
				Action: func(ctx *cli.Context) error {
					return withInstrument(cfg, func(la *instrument.LogicAnalyzer) error {
						states, err := la.InitialStates()
						if err != nil {
							return err
						}
						fmt.Printf("initial pin states: 0b%04b\n", states&0x0F)
						return nil
					})
				},
			},
		},
	}

	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))

	if err := cliApp.Run(os.Args); err != nil {
		debug.FatalLog.Print(err)
		exitCode = 1
		return
	}

	exitCode = 0
}

// withInstrument loads the configuration, connects, runs fn, and tears the
// connection down again.
func withInstrument(cfg *config.Config, fn func(*instrument.LogicAnalyzer) error) error {
	if err := cfg.LoadConfig(); err != nil {
		return err
	}
	debug.SetDebug(cfg.Debug.File, cfg.Debug.Flag)

	serialCfg := serial.DefaultConfig(cfg.Device)
	serialCfg.Baud = cfg.Baud

	la, err := instrument.Connect(serialCfg)
	if err != nil {
		return err
	}
	defer func() {
		debug.TraceLog.Print("closing instrument connection")
		_ = la.Close()
	}()

	return fn(la)
}
