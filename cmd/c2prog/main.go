package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/amrbekhit/c2prog"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const appVersion = "0.1.0"

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage:\t%s [options] command [args]\n\nCommands:\n", os.Args[0])
	for _, c := range commands {
		usageCmd(c)
	}
	fmt.Fprintf(flag.CommandLine.Output(), "\nOptions:\n")
	flag.PrintDefaults()
}

func usageCmd(c command) {
	fmt.Fprintf(flag.CommandLine.Output(), "\t%s %s\n\t\t%s\n", c.name, c.args, c.help)
}

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "", "YAML configuration file.")
	backend := flag.String("backend", "", "Line backend, one of gpio, serial, sim.")
	clock := flag.String("clock", "", "C2CK pin name for the gpio backend.")
	data := flag.String("data", "", "C2D pin name for the gpio backend.")
	port := flag.String("port", "", "Serial port of the GPIO bridge.")
	baud := flag.Int("baud", 0, "Baud rate of the GPIO bridge.")
	pollOut := flag.Int("poll-out-retries", 0, "Response polls before a command times out.")
	verbose := flag.Bool("v", false, "Enable verbose logging.")
	flag.Usage = usage
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	c2prog.SetLogger(log.StandardLogger())

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return 1
	}
	cmd, ok := findCommand(args[0])
	if !ok {
		log.Errorf("invalid command %v", args[0])
		usage()
		return 1
	}
	if cmd.noDevice {
		return report(cmd, cmd.handler(nil, args[1:]))
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return 1
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backend
		case "clock":
			cfg.GPIO.Clock = *clock
		case "data":
			cfg.GPIO.Data = *data
		case "port":
			cfg.Serial.Port = *port
		case "baud":
			cfg.Serial.Baud = *baud
		case "poll-out-retries":
			cfg.PollOutRetries = *pollOut
		}
	})
	if err := cfg.validate(); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return 1
	}

	lines, opts, err := cfg.openLines()
	if err != nil {
		log.Errorf("failed to open %v lines: %v", cfg.Backend, err)
		return 1
	}
	c2 := c2prog.NewInterface(lines, opts...)
	defer func() {
		if err := c2.Close(); err != nil {
			log.Warnf("failed to release lines: %v", err)
		}
	}()

	if err := c2.Init(); err != nil {
		log.Errorf("failed to initialise bus: %v", err)
		return 1
	}
	session, err := c2prog.Open(c2, cfg.families())
	if err != nil {
		log.Errorf("%v: %v", c2prog.Kind(err), err)
		return 1
	}
	log.Debugf("connected to %v", session.Family().Name)

	return report(cmd, cmd.handler(session, args[1:]))
}

func report(cmd command, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		if msg := strings.TrimSuffix(err.Error(), ": "+errUsage.Error()); msg != errUsage.Error() {
			log.Error(msg)
		}
		fmt.Fprintf(flag.CommandLine.Output(), "Usage:\t%s [options] ", os.Args[0])
		usageCmd(cmd)
		return 1
	default:
		log.Errorf("command failed: %v (%v)", c2prog.Kind(err), err)
		return 1
	}
}
