package main

import (
	"os"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/VolantMQ/alarmping/configuration"
)

var logger *zap.SugaredLogger

// these are provided at compile time
var (
	// GitCommit SHA hash
	GitCommit string

	// GitBranch if any
	GitBranch string

	// GitState repository state
	GitState string

	// GitSummary repository info
	GitSummary string

	// BuildDate build date
	BuildDate string

	// Version application version
	Version string
)

var (
	configFile string
	auditLimit int
)

func init() {
	if Version == "" {
		Version = "UNKNOWN"
	}

	if BuildDate == "" {
		BuildDate = "UNKNOWN"
	}
}

var configFlag = cli.StringFlag{
	Name:        "config, c",
	Usage:       "path to configuration file",
	EnvVar:      "ALARMPING_CONFIG",
	Destination: &configFile,
}

func newApp() *cli.App {
	app := cli.NewApp()

	app.Name = "alarmping"
	app.Usage = "keep MQTT connection alive across device sleep"
	app.Version = Version
	app.Flags = []cli.Flag{configFlag}
	app.Action = run
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "connect to the broker and keep connection alive",
			Action: run,
			Flags:  []cli.Flag{configFlag},
		},
		{
			Name:   "audit",
			Usage:  "print recent wake resource audit records",
			Action: audit,
			Flags: []cli.Flag{
				configFlag,
				cli.IntFlag{
					Name:        "limit, n",
					Usage:       "number of records to print, 0 prints all",
					Value:       20,
					Destination: &auditLimit,
				},
			},
		},
	}

	return app
}

func main() {
	logger = configuration.GetHumanLogger()

	defer func() {
		if r := recover(); r != nil {
			logger.Panic(r)
		}
	}()

	if err := newApp().Run(os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
