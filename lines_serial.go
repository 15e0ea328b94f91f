package c2prog

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// Serial GPIO bridge opcodes. The bridge is a small microcontroller that
// owns the two pins and executes one opcode per received byte. Read opcodes
// are answered with '0' or '1'.
const (
	bridgeClockOutput = 'K'
	bridgeClockInput  = 'k'
	bridgeClockHigh   = 'C'
	bridgeClockLow    = 'c'
	bridgeClockRead   = 'r'
	bridgeDataOutput  = 'O'
	bridgeDataInput   = 'I'
	bridgeDataPullUp  = 'P'
	bridgeDataFloat   = 'p'
	bridgeDataHigh    = 'D'
	bridgeDataLow     = 'd'
	bridgeDataRead    = 'R'
)

type bridgeOps struct {
	output, input, high, low, read byte
	pullUp, float                  byte
}

var (
	clockOps = bridgeOps{output: bridgeClockOutput, input: bridgeClockInput, high: bridgeClockHigh, low: bridgeClockLow, read: bridgeClockRead}
	dataOps  = bridgeOps{output: bridgeDataOutput, input: bridgeDataInput, high: bridgeDataHigh, low: bridgeDataLow, read: bridgeDataRead, pullUp: bridgeDataPullUp, float: bridgeDataFloat}
)

type serialBridge struct {
	rw     io.ReadWriter
	closer io.Closer
	clk    *bridgeLine
	dat    *bridgeLine
}

type bridgeLine struct {
	bridge *serialBridge
	ops    bridgeOps
}

func (b *serialBridge) send(op byte) error {
	_, err := b.rw.Write([]byte{op})
	return err
}

func (b *serialBridge) query(op byte) (bool, error) {
	if err := b.send(op); err != nil {
		return false, err
	}
	resp := make([]byte, 1)
	n, err := b.rw.Read(resp)
	if err != nil {
		return false, err
	}
	// tarm/serial returns 0, nil on read timeout
	if n == 0 {
		return false, errors.New("bridge did not answer")
	}
	switch resp[0] {
	case '0':
		return false, nil
	case '1':
		return true, nil
	default:
		return false, errors.Errorf("invalid bridge response %q", resp[0])
	}
}

func (l *bridgeLine) SetDirection(d Direction) error {
	if d == Output {
		return l.bridge.send(l.ops.output)
	}
	return l.bridge.send(l.ops.input)
}

func (l *bridgeLine) SetPull(up bool) error {
	if l.ops.pullUp == 0 {
		return errors.New("line has no configurable pull")
	}
	if up {
		return l.bridge.send(l.ops.pullUp)
	}
	return l.bridge.send(l.ops.float)
}

func (l *bridgeLine) Write(high bool) error {
	if high {
		return l.bridge.send(l.ops.high)
	}
	return l.bridge.send(l.ops.low)
}

func (l *bridgeLine) Read() (bool, error) {
	return l.bridge.query(l.ops.read)
}

func newSerialBridge(rw io.ReadWriter, closer io.Closer) *serialBridge {
	b := &serialBridge{rw: rw, closer: closer}
	b.clk = &bridgeLine{bridge: b, ops: clockOps}
	b.dat = &bridgeLine{bridge: b, ops: dataOps}
	return b
}

// OpenSerialLines opens a serial GPIO bridge on port.
func OpenSerialLines(port string, baud int) (Lines, error) {
	p, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud, ReadTimeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %v", port)
	}
	// Let any pending bytes arrive before discarding them.
	time.Sleep(100 * time.Millisecond)
	p.Flush()
	return newSerialBridge(p, p), nil
}

func (b *serialBridge) Clock() Line { return b.clk }
func (b *serialBridge) Data() Line  { return b.dat }

// Close releases both pins and closes the port.
func (b *serialBridge) Close() error {
	err := b.send(bridgeDataInput)
	if err == nil {
		err = b.send(bridgeClockInput)
	}
	if b.closer != nil {
		if cerr := b.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
