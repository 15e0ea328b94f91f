package c2prog

import "time"

// Retry budgets of the polling loops, counted in tries.
const (
	WriteWaitRetries      = 20
	ReadWaitRetries       = 50
	PollInBusyRetries     = 20
	DefaultPollOutRetries = 100
)

// Config holds the bus timing configuration.
type Config struct {
	// Settle is the delay after every line transition. 1µs is the minimum
	// the target hardware is specified for.
	Settle time.Duration

	// PollOutRetries is the number of status polls spent waiting for the
	// target to have a response ready. Erase commands need a large budget.
	PollOutRetries int

	// Sleep is used for every delay on the bus.
	Sleep func(time.Duration)
}

func defaultConfig() Config {
	return Config{
		Settle:         time.Microsecond,
		PollOutRetries: DefaultPollOutRetries,
		Sleep:          delay,
	}
}

// Option is a functional option for configuring the Interface.
type Option func(*Config)

// MaxSettle is the longest accepted settle delay. The clock is held low for
// one settle delay per bit and the target resets after 20µs of low clock.
const MaxSettle = 10 * time.Microsecond

// WithSettle sets the delay after every line transition.
func WithSettle(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 && d <= MaxSettle {
			c.Settle = d
		}
	}
}

// WithPollOutRetries sets the number of polls spent waiting for a response.
//
// Example:
//
//	c2 := c2prog.NewInterface(lines, c2prog.WithPollOutRetries(5000))
func WithPollOutRetries(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.PollOutRetries = n
		}
	}
}

// WithSleep replaces the function used for bus delays. Simulated targets
// use it to run on virtual time.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Config) {
		if sleep != nil {
			c.Sleep = sleep
		}
	}
}

// delay waits for at least d. The scheduler cannot be trusted with the
// microsecond delays of the bit transport, so short waits spin.
func delay(d time.Duration) {
	if d >= time.Millisecond {
		time.Sleep(d)
		return
	}
	for start := time.Now(); time.Since(start) < d; {
	}
}
