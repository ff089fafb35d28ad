// busd bridges a single client (one TCP connection or one local serial
// device) to the bioloid bus packet handlers. It is a single-threaded
// byte pump: read a byte, feed the assembler, dispatch completed packets,
// write the reply back on the same descriptor.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bioloid-tools/bridge/internal/bioloid"
	"github.com/bioloid-tools/bridge/internal/bus"
	"github.com/bioloid-tools/bridge/internal/config"
	"github.com/bioloid-tools/bridge/internal/logging"
	"github.com/bioloid-tools/bridge/internal/packet"
	"github.com/bioloid-tools/bridge/internal/version"
)

// packetCapacity bounds every command and response packet on the bus. The
// two buffers are allocated once and reused for the life of the process.
const packetCapacity = 256

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		return 1
	}

	log := logging.New(stderr, cfg.Verbose)
	log.Debug().
		Bool("debug", cfg.Debug).
		Int("port", cfg.Port).
		Str("serial", cfg.Serial).
		Msg("resolved configuration")

	cmd := packet.New(packetCapacity)
	rsp := packet.New(packetCapacity)
	asm := bioloid.NewAssembler(cmd)
	device := bioloid.NewDevice(bioloid.DefaultDeviceID,
		log.With().Str("component", "device").Logger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var t bus.Transport
	if cfg.SerialMode() {
		st := bus.NewSerialTransport(bus.SerialConfig{
			Baud:      cfg.Baud,
			Command:   cmd,
			Response:  rsp,
			Assembler: asm,
			Logger:    log,
			Debug:     cfg.Debug,
		})
		st.Add(device)
		if err := st.Open(cfg.Serial); err != nil {
			log.Error().Err(err).Msg("serial setup failed")
			return 1
		}
		t = st
	} else {
		nt := bus.NewNetworkTransport(bus.NetworkConfig{
			Command:   cmd,
			Response:  rsp,
			Assembler: asm,
			Logger:    log,
			Debug:     cfg.Debug,
		})
		nt.Add(device)
		if err := nt.Listen(cfg.Addr()); err != nil {
			log.Error().Err(err).Msg("network setup failed")
			return 1
		}
		// A signal during the accept wait has to unblock it; the event
		// loop arms its own hook once it starts.
		unblock := context.AfterFunc(ctx, func() { _ = nt.Close() })
		err := nt.Accept()
		unblock()
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			log.Error().Err(err).Msg("accept failed")
			_ = nt.Close()
			return 1
		}
		t = nt
	}
	defer t.Close()

	if err := bus.Run(ctx, t, log); err != nil {
		return 1
	}
	log.Debug().Msg("done")
	return 0
}

// parseArgs resolves the configuration: defaults, then the TOML file, then
// the flags that were actually given. It reports everything it rejects to
// stderr itself; a non-nil error just means exit 1.
func parseArgs(args []string, stderr io.Writer) (config.Config, error) {
	fs := flag.NewFlagSet("busd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }

	var (
		debug      bool
		verbose    bool
		port       int
		serialPath string
		cfgPath    string
	)
	fs.BoolVar(&debug, "d", false, "turn on debug output")
	fs.BoolVar(&debug, "debug", false, "turn on debug output")
	fs.BoolVar(&verbose, "v", false, "turn on verbose messages")
	fs.BoolVar(&verbose, "verbose", false, "turn on verbose messages")
	fs.IntVar(&port, "p", bus.DefaultPort, "port to run server on")
	fs.IntVar(&port, "port", bus.DefaultPort, "port to run server on")
	fs.StringVar(&serialPath, "s", "", "serial device to bridge instead of TCP")
	fs.StringVar(&serialPath, "serial", "", "serial device to bridge instead of TCP")
	fs.StringVar(&cfgPath, "c", config.DefaultFile, "config file")
	fs.StringVar(&cfgPath, "config", config.DefaultFile, "config file")

	if err := fs.Parse(args); err != nil {
		// The FlagSet already reported the problem and printed usage.
		return config.Config{}, err
	}

	explicitConfig := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "c" || f.Name == "config" {
			explicitConfig = true
		}
	})

	cfg, err := config.Load(cfgPath, explicitConfig)
	if err != nil {
		fmt.Fprintf(stderr, "busd: %v\n", err)
		return config.Config{}, err
	}

	// Flags beat the file, but only the ones actually given.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d", "debug":
			cfg.Debug = debug
		case "v", "verbose":
			cfg.Verbose = verbose
		case "p", "port":
			cfg.Port = port
		case "s", "serial":
			cfg.Serial = serialPath
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "busd: %v\n", err)
		return config.Config{}, err
	}
	return cfg, nil
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "busd %s\n", version.String())
	fmt.Fprintln(w, "Usage: busd [option(s)]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Bridge one network or serial client to the bioloid bus")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -c, --config PATH   Config file to load (default busd.toml)")
	fmt.Fprintln(w, "  -d, --debug         Turn on debug output")
	fmt.Fprintln(w, "  -h, --help          Display this message")
	fmt.Fprintln(w, "  -p, --port PORT     Port to run server on")
	fmt.Fprintln(w, "  -s, --serial DEV    Serial device to bridge instead of TCP")
	fmt.Fprintln(w, "  -v, --verbose       Turn on verbose messages")
}
