package c2prog

// Direction is the direction of a digital line.
type Direction int

// Line directions.
const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Line is a single digital line of the C2 bus.
type Line interface {
	SetDirection(d Direction) error
	SetPull(up bool) error
	Write(high bool) error
	Read() (bool, error)
}

// Lines provides the clock and data lines a C2 bus is driven over.
// Close releases both lines.
type Lines interface {
	Clock() Line
	Data() Line
	Close() error
}
