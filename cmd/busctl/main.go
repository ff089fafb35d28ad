// busctl is the interactive console for a running busd bridge. It speaks
// the bioloid wire protocol over TCP: ping devices, read and write control
// table registers, and scan an id range for responders.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertbit/grumble"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bioloid-tools/bridge/internal/bus"
	"github.com/bioloid-tools/bridge/internal/version"
)

const banner = `
 _                    _   _
| |__  _   _ ___  ___| |_| |
| '_ \| | | / __|/ __| __| |
| |_) | |_| \__ \ (__| |_| |
|_.__/ \__,_|___/\___|\__|_|
`

var defaultAddr = fmt.Sprintf("127.0.0.1:%d", bus.DefaultPort)

// serverAddr is the bridge address used when connect is not given one
// explicitly; set from the app-level --addr flag.
var serverAddr = defaultAddr

func main() {
	configureLogging()

	app := setupCLI()
	AddCommands(app)

	if err := app.Run(); err != nil {
		log.Fatal().Msg(err.Error())
	}
}

// configureLogging sets up zerolog with a pretty console writer for
// interactive use.
func configureLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// setupCLI initializes the command-line interface and returns the
// configured grumble App instance.
func setupCLI() *grumble.App {
	var histFile string
	home, err := os.UserHomeDir()
	if err != nil {
		histFile = ".busctl"
	} else {
		histFile = filepath.Join(home, ".busctl")
	}

	app := grumble.New(&grumble.Config{
		Name:        "busctl",
		Description: "console for a bioloid bus bridge",
		HistoryFile: histFile,
		Flags: func(f *grumble.Flags) {
			f.String("a", "addr", defaultAddr, "busd bridge address (host:port)")
			f.Bool("v", "verbose", false, "enable debug logging")
		},
	})

	app.SetPrintASCIILogo(func(a *grumble.App) {
		fmt.Print(banner)
		fmt.Printf("   bioloid bus console %s\n\n", version.String())
	})

	app.OnInit(func(a *grumble.App, flags grumble.FlagMap) error {
		serverAddr = flags.String("addr")
		if flags.Bool("verbose") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		return nil
	})

	return app
}
