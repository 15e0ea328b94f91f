package main

import (
	"io/ioutil"
	"time"

	"github.com/amrbekhit/c2prog"
	"github.com/amrbekhit/c2prog/c2sim"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Line backends.
const (
	backendGPIO   = "gpio"
	backendSerial = "serial"
	backendSim    = "sim"
)

type gpioConfig struct {
	Clock string `yaml:"clock"`
	Data  string `yaml:"data"`
}

type serialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type config struct {
	Backend        string          `yaml:"backend"`
	GPIO           gpioConfig      `yaml:"gpio"`
	Serial         serialConfig    `yaml:"serial"`
	Settle         time.Duration   `yaml:"settle"`
	PollOutRetries int             `yaml:"pollOutRetries"`
	Families       c2prog.Families `yaml:"families"`
	Sim            c2sim.Config    `yaml:"sim"`
}

func defaultConfig() config {
	return config{
		Backend:        backendGPIO,
		GPIO:           gpioConfig{Clock: "GPIO24", Data: "GPIO23"},
		Serial:         serialConfig{Baud: 115200},
		Settle:         time.Microsecond,
		PollOutRetries: c2prog.DefaultPollOutRetries,
		Sim: c2sim.Config{
			DeviceID:   0x30,
			RevisionID: 0x01,
			Version:    0x0D,
			Derivative: 0x41,
			FPDAT:      0xB4,
			PageSize:   512,
			FlashSize:  0x2000,
			BusyPolls:  1,
			ReadyPolls: 1,
		},
	}
}

func parseConfig(data []byte) (config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return config{}, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// validate checks the settings a command line override can also change.
func (c config) validate() error {
	if err := c.Families.Validate(); err != nil {
		return err
	}
	switch c.Backend {
	case backendGPIO, backendSerial, backendSim:
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	if c.Settle <= 0 || c.Settle > c2prog.MaxSettle {
		return errors.Errorf("settle %v outside (0, %v]", c.Settle, c2prog.MaxSettle)
	}
	if c.PollOutRetries <= 0 {
		return errors.Errorf("pollOutRetries %v must be positive", c.PollOutRetries)
	}
	return nil
}

func loadConfig(file string) (config, error) {
	if file == "" {
		return defaultConfig(), nil
	}
	data, err := ioutil.ReadFile(file)
	if err != nil {
		return config{}, errors.Wrapf(c2prog.ErrStorageIO, "%v", err)
	}
	return parseConfig(data)
}

// families returns the configured families ahead of the built-in ones.
func (c config) families() c2prog.Families {
	return append(append(c2prog.Families{}, c.Families...), c2prog.DefaultFamilies...)
}

func (c config) openLines() (c2prog.Lines, []c2prog.Option, error) {
	opts := []c2prog.Option{
		c2prog.WithSettle(c.Settle),
		c2prog.WithPollOutRetries(c.PollOutRetries),
	}
	switch c.Backend {
	case backendSerial:
		if c.Serial.Port == "" {
			return nil, nil, errors.New("must specify serial port")
		}
		lines, err := c2prog.OpenSerialLines(c.Serial.Port, c.Serial.Baud)
		return lines, opts, err
	case backendSim:
		target := c2sim.New(c.Sim)
		return target, append(opts, c2prog.WithSleep(target.Sleep)), nil
	default:
		lines, err := c2prog.OpenGPIOLines(c.GPIO.Clock, c.GPIO.Data)
		return lines, opts, err
	}
}
