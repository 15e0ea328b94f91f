package c2prog

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// gpioLine drives a host GPIO pin.
type gpioLine struct {
	pin   gpio.PinIO
	dir   Direction
	pull  gpio.Pull
	level gpio.Level
}

func (l *gpioLine) SetDirection(d Direction) error {
	l.dir = d
	if d == Output {
		return l.pin.Out(l.level)
	}
	return l.pin.In(l.pull, gpio.NoEdge)
}

func (l *gpioLine) SetPull(up bool) error {
	l.pull = gpio.Float
	if up {
		l.pull = gpio.PullUp
	}
	if l.dir == Input {
		return l.pin.In(l.pull, gpio.NoEdge)
	}
	return nil
}

func (l *gpioLine) Write(high bool) error {
	l.level = gpio.Level(high)
	if l.dir != Output {
		return nil
	}
	return l.pin.Out(l.level)
}

func (l *gpioLine) Read() (bool, error) {
	return l.pin.Read() == gpio.High, nil
}

type gpioLines struct {
	clk, dat *gpioLine
}

// OpenGPIOLines opens the named host GPIO pins, e.g. "GPIO24" and "GPIO23"
// on a Raspberry Pi.
func OpenGPIOLines(clock, data string) (Lines, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host initialisation failed")
	}
	clk := gpioreg.ByName(clock)
	if clk == nil {
		return nil, errors.Errorf("clock pin %v not found", clock)
	}
	dat := gpioreg.ByName(data)
	if dat == nil {
		return nil, errors.Errorf("data pin %v not found", data)
	}
	pkgLog.Debugf("using %v as C2CK and %v as C2D", clk, dat)
	return &gpioLines{
		clk: &gpioLine{pin: clk, dir: Input, pull: gpio.Float, level: gpio.High},
		dat: &gpioLine{pin: dat, dir: Input, pull: gpio.PullUp, level: gpio.High},
	}, nil
}

func (g *gpioLines) Clock() Line { return g.clk }
func (g *gpioLines) Data() Line  { return g.dat }

// Close turns both pins into inputs and halts them.
func (g *gpioLines) Close() error {
	var first error
	for _, l := range []*gpioLine{g.dat, g.clk} {
		if err := l.pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil && first == nil {
			first = err
		}
		if err := l.pin.Halt(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
