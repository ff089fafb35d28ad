package main

import (
	"fmt"
	"strconv"

	"github.com/desertbit/grumble"
	"github.com/jedib0t/go-pretty/table"
	"github.com/rs/zerolog/log"

	"github.com/bioloid-tools/bridge/internal/bioloid"
	"github.com/bioloid-tools/bridge/internal/hexdump"
)

// session is the single active bridge connection, nil when disconnected.
var session *Session

// AddCommands registers all console commands with the application.
func AddCommands(app *grumble.App) {
	app.AddCommand(&grumble.Command{
		Name: "connect",
		Help: "connect to a busd bridge",
		Flags: func(f *grumble.Flags) {
			f.String("a", "addr", "", "bridge address (host:port), defaults to the app-level --addr")
		},
		Run: func(c *grumble.Context) error {
			if session != nil {
				log.Warn().Str("addr", session.Addr).Msg("Already connected; disconnect first")
				return nil
			}
			addr := c.Flags.String("addr")
			if addr == "" {
				addr = serverAddr
			}
			s, err := Dial(addr)
			if err != nil {
				log.Error().Err(err).Msg("Connection failed")
				return nil
			}
			session = s
			c.App.SetPrompt("busctl " + addr + " » ")
			log.Info().Str("session_id", s.ID).Str("addr", addr).Msg("Connected")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "disconnect",
		Help: "close the bridge connection",
		Run: func(c *grumble.Context) error {
			if session == nil {
				log.Warn().Msg("Not connected")
				return nil
			}
			if err := session.Close(); err != nil {
				log.Error().Err(err).Msg("Close failed")
			}
			session = nil
			c.App.SetPrompt("busctl » ")
			log.Info().Msg("Disconnected")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "ping",
		Help: "ping a device id",
		Args: func(a *grumble.Args) {
			a.Uint("id", "device id")
		},
		Run: func(c *grumble.Context) error {
			s := requireSession()
			if s == nil {
				return nil
			}
			id, ok := deviceID(c, false)
			if !ok {
				return nil
			}
			st, err := s.RoundTrip(id, bioloid.InstrPing, nil)
			if err != nil {
				reportFailure(err, "Ping failed")
				return nil
			}
			log.Info().Uint8("id", st.ID).Str("status", bioloid.ErrorText(st.Err)).Msg("Device answered")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "read",
		Help: "read control table registers: read <id> <addr> <count>",
		Args: func(a *grumble.Args) {
			a.Uint("id", "device id")
			a.Uint("addr", "first register address")
			a.Uint("count", "number of registers to read")
		},
		Run: func(c *grumble.Context) error {
			s := requireSession()
			if s == nil {
				return nil
			}
			id, ok := deviceID(c, false)
			if !ok {
				return nil
			}
			addr, ok := byteArg(c, "addr")
			if !ok {
				return nil
			}
			count, ok := byteArg(c, "count")
			if !ok {
				return nil
			}
			st, err := s.RoundTrip(id, bioloid.InstrRead, []byte{addr, count})
			if err != nil {
				reportFailure(err, "Read failed")
				return nil
			}
			if st.Err != 0 {
				log.Error().Uint8("id", st.ID).Str("status", bioloid.ErrorText(st.Err)).Msg("Device reported an error")
				return nil
			}
			c.App.Println(hexdump.Dump("R", st.Params))
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "write",
		Help: "write control table registers: write <id> <addr> <byte...>",
		Args: func(a *grumble.Args) {
			a.Uint("id", "device id, or 254 to broadcast")
			a.Uint("addr", "first register address")
			a.StringList("bytes", "data bytes, decimal or 0x-prefixed hex")
		},
		Run: func(c *grumble.Context) error {
			s := requireSession()
			if s == nil {
				return nil
			}
			id, ok := deviceID(c, true)
			if !ok {
				return nil
			}
			addr, ok := byteArg(c, "addr")
			if !ok {
				return nil
			}
			data, err := parseBytes(c.Args.StringList("bytes"))
			if err != nil {
				log.Error().Err(err).Msg("Bad data byte")
				return nil
			}
			if len(data) == 0 {
				log.Error().Msg("Need at least one data byte")
				return nil
			}
			st, err := s.RoundTrip(id, bioloid.InstrWrite, append([]byte{addr}, data...))
			if err != nil {
				reportFailure(err, "Write failed")
				return nil
			}
			if id == bioloid.BroadcastID {
				log.Info().Msg("Broadcast write sent")
				return nil
			}
			log.Info().Uint8("id", st.ID).Str("status", bioloid.ErrorText(st.Err)).Msg("Write acknowledged")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "scan",
		Help: "probe an id range and list responders",
		Flags: func(f *grumble.Flags) {
			f.Uint("f", "from", 0, "first id to probe")
			f.Uint("t", "to", 25, "last id to probe")
		},
		Run: func(c *grumble.Context) error {
			s := requireSession()
			if s == nil {
				return nil
			}
			from := c.Flags.Uint("from")
			to := c.Flags.Uint("to")
			if from > uint(bioloid.MaxID) || to > uint(bioloid.MaxID) || from > to {
				log.Error().Uint("from", from).Uint("to", to).Msg("Bad scan range")
				return nil
			}
			results, err := s.Scan(byte(from), byte(to))
			if err != nil {
				reportFailure(err, "Scan failed")
				return nil
			}
			if len(results) == 0 {
				log.Info().Msg("No devices found")
				return nil
			}
			c.App.Println(renderScanTable(results))
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "reset",
		Help: "factory-reset a device (readdresses it to id 1)",
		Args: func(a *grumble.Args) {
			a.Uint("id", "device id")
		},
		Run: func(c *grumble.Context) error {
			s := requireSession()
			if s == nil {
				return nil
			}
			id, ok := deviceID(c, false)
			if !ok {
				return nil
			}
			st, err := s.RoundTrip(id, bioloid.InstrReset, nil)
			if err != nil {
				reportFailure(err, "Reset failed")
				return nil
			}
			log.Info().Uint8("id", st.ID).Str("status", bioloid.ErrorText(st.Err)).Msg("Device reset")
			return nil
		},
	})
}

func requireSession() *Session {
	if session == nil {
		log.Warn().Msg("Not connected; run connect first")
		return nil
	}
	return session
}

// deviceID validates the "id" argument; broadcast is only meaningful for
// commands that expect no reply.
func deviceID(c *grumble.Context, allowBroadcast bool) (byte, bool) {
	id := c.Args.Uint("id")
	max := uint(bioloid.MaxID)
	if allowBroadcast {
		max = uint(bioloid.BroadcastID)
	}
	if id > max {
		log.Error().Uint("id", id).Msg("Device id out of range")
		return 0, false
	}
	return byte(id), true
}

func byteArg(c *grumble.Context, name string) (byte, bool) {
	v := c.Args.Uint(name)
	if v > 0xff {
		log.Error().Uint(name, v).Msg("Value exceeds one byte")
		return 0, false
	}
	return byte(v), true
}

// parseBytes turns command-line byte literals into raw bytes. Base 0 lets
// strconv accept decimal, 0x-prefixed hex and 0-prefixed octal.
func parseBytes(args []string) ([]byte, error) {
	out := make([]byte, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", arg, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// reportFailure distinguishes a silent device from a broken transport.
func reportFailure(err error, msg string) {
	if isTimeout(err) {
		log.Warn().Msg("No response (device absent or silent)")
		return
	}
	log.Error().Err(err).Msg(msg)
}

// renderScanTable formats scan results into a human-readable table.
func renderScanTable(results []ScanResult) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Model", "Firmware"})
	for _, r := range results {
		t.AppendRow(table.Row{
			r.ID,
			r.Model,
			fmt.Sprintf("0x%02x", r.Firmware),
		})
	}
	return t.Render()
}
