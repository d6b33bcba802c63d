package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/bmsdiag/udshost/pkg/config"
)

// cliFlags is the parsed command line, grouped the way the reference
// CLI's node/interface/eds-path flags were.
type cliFlags struct {
	interfaceType string
	channel       string
	configPath    string
	verbose       bool
	timeoutMs     int

	command string

	id1, id2 byte
	ioCtl    int
	option   []byte

	subfunction int

	ecu8trCmd int
}

func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("diagctl", flag.ContinueOnError)
	f := cliFlags{}

	fs.StringVar(&f.interfaceType, "i", defaultInterfaceType, "CAN interface backend: socketcan, kvaser, virtual")
	fs.StringVar(&f.channel, "c", defaultChannel, "channel name, e.g. can0, vcan0")
	fs.StringVar(&f.configPath, "config", "", "session INI config path (overrides compiled-in defaults)")
	fs.BoolVar(&f.verbose, "v", false, "debug-level logging")
	fs.IntVar(&f.timeoutMs, "timeout", 1000, "command timeout in milliseconds")

	fs.StringVar(&f.command, "cmd", "iocbi", "command to run: iocbi, routine, ecu8tr")

	id1 := fs.Uint("id1", 0, "IOCBI data identifier 1 / RoutineControl routine identifier 1")
	id2 := fs.Uint("id2", 0, "IOCBI data identifier 2 / RoutineControl routine identifier 2")
	ioCtl := fs.Int("ioctl", 3, "IOCBI InputOutputControlParameter (0..3)")
	sub := fs.Int("sub", 1, "RoutineControl subfunction (1=start, 2=stop, 3=requestResults)")
	ecu8trCmd := fs.Int("ecu8tr-cmd", 1, "ECU8TR command byte (0=disconnect, 1=connect, 2=stream-start, 3=stream-stop)")

	if err := fs.Parse(args); err != nil {
		return f, err
	}

	f.id1 = byte(*id1)
	f.id2 = byte(*id2)
	f.ioCtl = *ioCtl
	f.subfunction = *sub
	f.ecu8trCmd = *ecu8trCmd

	option, err := parseOptionBytes(fs.Args())
	if err != nil {
		return f, err
	}
	f.option = option

	if f.ioCtl < 0 || f.ioCtl > 3 {
		return f, fmt.Errorf("diagctl: -ioctl must be 0..3, got %d", f.ioCtl)
	}
	return f, nil
}

// parseOptionBytes turns the trailing positional arguments into the
// outbound option/status record, each parsed as an 8-bit integer
// (hex with a 0x prefix, decimal otherwise).
func parseOptionBytes(args []string) ([]byte, error) {
	option := make([]byte, len(args))
	for i, arg := range args {
		base, digits := 10, arg
		if strings.HasPrefix(arg, "0x") || strings.HasPrefix(arg, "0X") {
			base, digits = 16, arg[2:]
		}
		v, err := strconv.ParseUint(digits, base, 8)
		if err != nil {
			return nil, fmt.Errorf("diagctl: option byte %q: %w", arg, err)
		}
		option[i] = byte(v)
	}
	return option, nil
}

// connectArgs builds the backend-specific Connect arguments for the
// chosen interface type. socketcan and virtual ignore their args; the
// kvaser cgo backend expects (channelIndex int, fdMode bool,
// bitrateKbps uint32).
func (f cliFlags) connectArgs(cfg config.Config) []any {
	if f.interfaceType != "kvaser" {
		return nil
	}
	return []any{0, cfg.Session.FD, cfg.Session.BitrateKbps}
}
