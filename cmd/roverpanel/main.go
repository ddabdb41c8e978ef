package main

import (
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/gwillem/roverpanel/pkg/config"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"roverpanel.json" description:"Configuration file"`
	LogLevel string `long:"log-level" description:"Log level (trace, debug, info, warn, error)"`

	Drive  DriveCommand  `command:"drive" alias:"teleop" description:"Drive the rover from the terminal"`
	Serve  ServeCommand  `command:"serve" description:"Run the simulated rover controller"`
	Setup  SetupCommand  `command:"setup" description:"Write the configuration and calibrate the camera gimbal"`
	Ports  PortsCommand  `command:"ports" description:"List serial ports and probe them for a gimbal"`
	Scenes ScenesCommand `command:"scenes" description:"List or import detection scene mappings"`
	Access AccessCommand `command:"access" description:"Show the controller access log"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

// loadConfig reads the configuration file named by --config. A --log-level
// flag beats the file and the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	return cfg, nil
}

func main() {
	parser.LongDescription = "roverpanel - teleoperation panel and simulated controller for a wheeled rover"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
