// Command diagctl is the battery-management diagnostic host CLI: it
// opens a CAN channel, wires a DoCAN transport over the configured
// source/target addresses, and issues a single IOCBI or RoutineControl
// command (or, with -cmd ecu8tr, a single ECU8TR UDP control command)
// before exiting. Grounded on the reference CANopen stack's
// cmd/canopen/main.go (stdlib flag parsing, logrus level control,
// construct-bus-then-construct-session-then-run shape).
package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bmsdiag/udshost/pkg/can"
	_ "github.com/bmsdiag/udshost/pkg/can/kvaser"
	_ "github.com/bmsdiag/udshost/pkg/can/socketcan"
	_ "github.com/bmsdiag/udshost/pkg/can/virtual"
	"github.com/bmsdiag/udshost/pkg/config"
	"github.com/bmsdiag/udshost/pkg/docan"
	"github.com/bmsdiag/udshost/pkg/ecu8tr"
	"github.com/bmsdiag/udshost/pkg/uds"
)

const (
	defaultInterfaceType = "socketcan"
	defaultChannel       = "can0"
)

func main() {
	log.SetLevel(log.InfoLevel)

	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if flags.verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg := config.Default()
	if flags.configPath != "" {
		cfg, err = config.Load(flags.configPath)
		if err != nil {
			log.Fatalf("diagctl: %v", err)
		}
	}

	ch, err := can.Open(flags.interfaceType, flags.channel, flags.connectArgs(cfg)...)
	if err != nil {
		log.Fatalf("diagctl: opening channel: %v", err)
	}
	defer ch.Abort()

	mode := docan.ModeClassic
	if cfg.Session.FD {
		mode = docan.ModeFD
	}
	transport := docan.NewTransport(ch, cfg.Session.SA, cfg.Session.TA, mode)
	defer transport.Dispose()

	switch flags.command {
	case "iocbi":
		runIOCBI(transport, flags)
	case "routine":
		runRoutineControl(transport, flags)
	case "ecu8tr":
		runECU8TR(cfg, flags)
	default:
		log.Fatalf("diagctl: unknown command %q", flags.command)
	}
}

func runIOCBI(transport *docan.Transport, flags cliFlags) {
	cmd := uds.NewIOCBI(flags.id1, flags.id2, uds.IOControlParameter(flags.ioCtl), flags.option, nil)
	tx := cmd.Prepare()
	rx, err := transport.ExecuteWait(tx, time.Duration(flags.timeoutMs)*time.Millisecond)
	if err != nil {
		log.Fatalf("diagctl: IOCBI failed: %v", err)
	}
	if err := cmd.Dispatch(rx); err != nil {
		log.Fatalf("diagctl: IOCBI response rejected: %v", err)
	}
	fmt.Printf("ctlStatusRecord: % x\n", cmd.CtlStatusRecord())
}

func runRoutineControl(transport *docan.Transport, flags cliFlags) {
	cmd := uds.NewRoutineControl(uds.RoutineSubfunction(flags.subfunction), flags.id1, flags.id2, flags.option, nil)
	tx := cmd.Prepare()
	rx, err := transport.ExecuteWait(tx, time.Duration(flags.timeoutMs)*time.Millisecond)
	if err != nil {
		log.Fatalf("diagctl: RoutineControl failed: %v", err)
	}
	if err := cmd.Dispatch(rx); err != nil {
		log.Fatalf("diagctl: RoutineControl response rejected: %v", err)
	}
	fmt.Printf("routineInfo: 0x%02x trailing: % x\n", cmd.RoutineInfo(), cmd.Trailing())
}

func runECU8TR(cfg config.Config, flags cliFlags) {
	hook, err := ecu8tr.NewHook(cfg.Session.SA, cfg.Session.TA, cfg.ECU8TR.UDPPeer, cfg.ECU8TR.UDPListen)
	if err != nil {
		log.Fatalf("diagctl: ecu8tr: %v", err)
	}
	defer hook.Close()
	if err := hook.Dispatch(ecu8tr.Command(flags.ecu8trCmd)); err != nil {
		log.Fatalf("diagctl: ecu8tr dispatch: %v", err)
	}
}
