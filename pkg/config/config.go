// Package config loads the session configuration described by
// SPEC_FULL: source/target address, CAN bitrate and FD mode, and the
// ECU8TR UDP peer/listen endpoints. Grounded on the reference CANopen
// stack's EDS loader (pkg/od/parser.go's ini.Load entry point),
// repurposed from object-dictionary parsing to a flat session config
// file, per §9's call to replace global mutable singletons with an
// explicit configuration value.
package config

import (
	"fmt"
	"net"

	"gopkg.in/ini.v1"
)

// Session holds the {sa, ta, bitrate_kbps, fd} fields of §9's
// configuration value.
type Session struct {
	SA          uint8
	TA          uint8
	BitrateKbps uint32
	FD          bool
}

// ECU8TR holds the {udp_peer, udp_listen} fields.
type ECU8TR struct {
	UDPPeer   *net.UDPAddr
	UDPListen *net.UDPAddr
}

// Config is the full session configuration value.
type Config struct {
	Session Session
	ECU8TR  ECU8TR
}

// Default returns the compiled-in defaults, used when no file is
// supplied or a key is absent from it.
func Default() Config {
	return Config{
		Session: Session{
			SA:          0x0A,
			TA:          0x0B,
			BitrateKbps: 500,
			FD:          false,
		},
		ECU8TR: ECU8TR{
			UDPPeer:   &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 30001},
			UDPListen: &net.UDPAddr{IP: net.IPv4zero, Port: 30000},
		},
	}
}

// Load reads an INI file with a [session] section (sa, ta,
// bitrate_kbps, fd) and an [ecu8tr] section (udp_peer, udp_listen, as
// host:port pairs), overlaying values onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("config: loading %s: %w", path, err)
	}

	if f.HasSection("session") {
		s := f.Section("session")
		cfg.Session.SA = uint8(s.Key("sa").MustUint(uint(cfg.Session.SA)))
		cfg.Session.TA = uint8(s.Key("ta").MustUint(uint(cfg.Session.TA)))
		cfg.Session.BitrateKbps = uint32(s.Key("bitrate_kbps").MustUint(uint(cfg.Session.BitrateKbps)))
		cfg.Session.FD = s.Key("fd").MustBool(cfg.Session.FD)
	}

	if f.HasSection("ecu8tr") {
		s := f.Section("ecu8tr")
		if raw := s.Key("udp_peer").String(); raw != "" {
			addr, err := net.ResolveUDPAddr("udp4", raw)
			if err != nil {
				return cfg, fmt.Errorf("config: ecu8tr.udp_peer %q: %w", raw, err)
			}
			cfg.ECU8TR.UDPPeer = addr
		}
		if raw := s.Key("udp_listen").String(); raw != "" {
			addr, err := net.ResolveUDPAddr("udp4", raw)
			if err != nil {
				return cfg, fmt.Errorf("config: ecu8tr.udp_listen %q: %w", raw, err)
			}
			cfg.ECU8TR.UDPListen = addr
		}
	}

	return cfg, nil
}
