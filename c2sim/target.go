// Package c2sim simulates a C2 target at the line level.
//
// A Target implements c2prog.Lines. It decodes the frames the host clocks
// in, answers register and programming interface accesses from an in-memory
// flash array and records the flash operations it executed. Time is virtual:
// pass Target.Sleep to the bus with c2prog.WithSleep.
package c2sim

import (
	"time"

	"github.com/amrbekhit/c2prog"
)

// The clock must be held low this long to reset the target.
const resetPulse = 20 * time.Microsecond

// Op identifies a recorded target operation.
type Op int

// Recorded operations.
const (
	OpReset Op = iota
	OpHalt
	OpRegisterWrite
	OpBlockRead
	OpBlockWrite
	OpPageErase
	OpDeviceErase
	OpDirectRead
	OpDirectWrite
)

var opNames = [...]string{"reset", "halt", "register-write", "block-read", "block-write", "page-erase", "device-erase", "direct-read", "direct-write"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// Event is an operation executed by the target. Addr is a flash address,
// page number or register depending on Op.
type Event struct {
	Op     Op
	Addr   uint32
	Length int
	Value  byte
}

// Config describes the simulated device and its timing.
type Config struct {
	DeviceID   byte `yaml:"deviceID"`
	RevisionID byte `yaml:"revisionID"`
	Version    byte `yaml:"version"`
	Derivative byte `yaml:"derivative"`
	FPDAT      byte `yaml:"fpdat"`
	PageSize   int  `yaml:"pageSize"`
	FlashSize  int  `yaml:"flashSize"`

	// WaitCycles is the number of WAIT strobes answered not ready.
	WaitCycles int `yaml:"waitCycles"`
	// NeverReady makes the WAIT field never complete.
	NeverReady bool `yaml:"neverReady"`
	// BusyPolls is the number of status reads reporting busy after each
	// byte written to FPDAT.
	BusyPolls int `yaml:"busyPolls"`
	// ReadyPolls is the number of status reads before a response is ready.
	ReadyPolls int `yaml:"readyPolls"`
	// EraseReadyPolls replaces ReadyPolls for the completion of an erase.
	EraseReadyPolls int `yaml:"eraseReadyPolls"`

	// LoopbackAR makes address register reads return the last address
	// written instead of the status bits.
	LoopbackAR bool `yaml:"-"`
	// StatusOverride answers the listed PI commands with the given code.
	StatusOverride map[byte]byte `yaml:"-"`
	// StallBlockReads is the number of block read commands that are never
	// answered. A reset clears the stall.
	StallBlockReads int `yaml:"-"`
}

type frameState int

const (
	stIdle frameState = iota
	stIns
	stAddrWrite
	stAddrRead
	stLength
	stDataWrite
	stWait
	stDataRead
	stStop
)

type piState int

const (
	piIdle piState = iota
	piArgs
	piData
	piStalled
)

// C2 instructions as seen on the wire.
const (
	insReadDR  = 0x00
	insWriteDR = 0x01
	insReadAR  = 0x02
	insWriteAR = 0x03
)

var haltSequence = [...]byte{c2prog.FPCTLReset, c2prog.FPCTLCoreReset, c2prog.FPCTLHalt}

var eraseKey = [3]byte{0xDE, 0xAD, 0xA5}

// Target is a simulated C2 device.
type Target struct {
	Config

	flash []byte
	sfr   [256]byte

	now    time.Duration
	clk    bool
	lowAt  time.Duration
	closed bool

	hostDrives   bool
	hostLevel    bool
	pullUp       bool
	targetDrives bool
	targetLevel  bool

	// frame decoder
	state       frameState
	ins         byte
	n           uint
	shift       byte
	data        byte
	out         byte
	waitLeft    int
	waitStrobes int

	// registers
	ar        byte
	fpctlStep int
	halted    bool

	// programming interface
	pi        piState
	cmd       byte
	args      []byte
	outq      []byte
	outDelay  int
	busy      int
	dataAddr  int
	dataLeft  int
	dataToSFR bool

	events []Event
}

// New creates an erased target.
func New(cfg Config) *Target {
	if cfg.PageSize == 0 {
		cfg.PageSize = 512
	}
	if cfg.FlashSize == 0 {
		cfg.FlashSize = c2prog.AddressSpace
	}
	t := &Target{
		Config: cfg,
		flash:  make([]byte, cfg.FlashSize),
		clk:    true,
		pullUp: true,
	}
	for i := range t.flash {
		t.flash[i] = 0xFF
	}
	return t
}

// Sleep advances virtual time.
func (t *Target) Sleep(d time.Duration) {
	t.now += d
}

// Now returns the virtual time.
func (t *Target) Now() time.Duration {
	return t.now
}

// Flash returns the flash array. Changes to it are seen by the target.
func (t *Target) Flash() []byte {
	return t.flash
}

// SFR returns the value of a special function register.
func (t *Target) SFR(reg byte) byte {
	return t.sfr[reg]
}

// SetSFR sets the value of a special function register.
func (t *Target) SetSFR(reg, v byte) {
	t.sfr[reg] = v
}

// Halted returns true once the FPCTL halt sequence has been received.
func (t *Target) Halted() bool {
	return t.halted
}

// Closed returns true once the lines have been closed.
func (t *Target) Closed() bool {
	return t.closed
}

// WaitStrobes returns the number of WAIT strobes of the last frame.
func (t *Target) WaitStrobes() int {
	return t.waitStrobes
}

// Events returns the operations recorded so far.
func (t *Target) Events() []Event {
	return t.events
}

// EventsOf returns the recorded operations of kind op.
func (t *Target) EventsOf(op Op) []Event {
	var out []Event
	for _, e := range t.events {
		if e.Op == op {
			out = append(out, e)
		}
	}
	return out
}

// ClearEvents discards the recorded operations.
func (t *Target) ClearEvents() {
	t.events = nil
}

func (t *Target) record(e Event) {
	t.events = append(t.events, e)
}

// Clock returns the C2CK line.
func (t *Target) Clock() c2prog.Line { return clockLine{t} }

// Data returns the C2D line.
func (t *Target) Data() c2prog.Line { return dataLine{t} }

// Close releases the lines.
func (t *Target) Close() error {
	t.hostDrives = false
	t.closed = true
	return nil
}

type clockLine struct{ t *Target }

func (l clockLine) SetDirection(c2prog.Direction) error { return nil }
func (l clockLine) SetPull(bool) error                  { return nil }
func (l clockLine) Read() (bool, error)                 { return l.t.clk, nil }

func (l clockLine) Write(high bool) error {
	t := l.t
	switch {
	case !high && t.clk:
		t.clk = false
		t.lowAt = t.now
	case high && !t.clk:
		t.clk = true
		if t.now-t.lowAt >= resetPulse {
			t.reset()
		} else {
			t.strobe()
		}
	}
	return nil
}

type dataLine struct{ t *Target }

func (l dataLine) SetDirection(d c2prog.Direction) error {
	l.t.hostDrives = d == c2prog.Output
	return nil
}

func (l dataLine) SetPull(up bool) error {
	l.t.pullUp = up
	return nil
}

func (l dataLine) Write(high bool) error {
	l.t.hostLevel = high
	return nil
}

func (l dataLine) Read() (bool, error) {
	t := l.t
	switch {
	case t.hostDrives:
		return t.hostLevel, nil
	case t.targetDrives:
		return t.targetLevel, nil
	default:
		return t.pullUp, nil
	}
}

func (t *Target) reset() {
	t.state = stIdle
	t.targetDrives = false
	t.ar = 0
	t.fpctlStep = 0
	t.halted = false
	t.pi = piIdle
	t.outq = nil
	t.busy = 0
	t.record(Event{Op: OpReset})
}

func (t *Target) targetTurn() bool {
	return t.state == stAddrRead || t.state == stWait || t.state == stDataRead
}

func (t *Target) shiftIn(bit bool) {
	if bit {
		t.shift |= 1 << t.n
	}
	t.n++
}

func (t *Target) next(s frameState) {
	t.state = s
	t.n = 0
	t.shift = 0
}

func (t *Target) drive(level bool) {
	t.targetDrives = true
	t.targetLevel = level
}

func (t *Target) startWait() {
	t.waitLeft = t.WaitCycles
	t.next(stWait)
}

// strobe handles one rising clock edge.
func (t *Target) strobe() {
	bit := t.hostLevel
	if t.hostDrives && t.targetTurn() {
		// The host gave up on the frame and is sending a new START.
		t.state = stIdle
	}
	t.targetDrives = false

	switch t.state {
	case stIdle:
		t.waitStrobes = 0
		t.next(stIns)
	case stIns:
		t.shiftIn(bit)
		if t.n == 2 {
			t.dispatch(t.shift)
		}
	case stAddrWrite:
		t.shiftIn(bit)
		if t.n == 8 {
			t.ar = t.shift
			t.next(stStop)
		}
	case stAddrRead, stDataRead:
		t.drive(t.out>>t.n&0x01 != 0)
		t.n++
		if t.n == 8 {
			t.next(stStop)
		}
	case stLength:
		t.shiftIn(bit)
		if t.n == 2 {
			if t.ins == insWriteDR {
				t.next(stDataWrite)
			} else {
				t.startWait()
			}
		}
	case stDataWrite:
		t.shiftIn(bit)
		if t.n == 8 {
			t.data = t.shift
			t.startWait()
		}
	case stWait:
		t.waitStrobes++
		if t.NeverReady || t.waitLeft > 0 {
			t.waitLeft--
			t.drive(false)
			return
		}
		t.drive(true)
		if t.ins == insWriteDR {
			t.writeDR(t.data)
			t.next(stStop)
		} else {
			t.out = t.readDR()
			t.next(stDataRead)
		}
	case stStop:
		t.next(stIdle)
	}
}

func (t *Target) dispatch(ins byte) {
	t.ins = ins
	switch ins {
	case insWriteAR:
		t.next(stAddrWrite)
	case insReadAR:
		t.out = t.status()
		t.next(stAddrRead)
	default:
		t.next(stLength)
	}
}

func (t *Target) status() byte {
	if t.LoopbackAR {
		return t.ar
	}
	var st byte
	if t.busy > 0 {
		st |= c2prog.StatusInBusy
		t.busy--
	}
	if len(t.outq) > 0 {
		if t.outDelay > 0 {
			t.outDelay--
		} else {
			st |= c2prog.StatusOutReady
		}
	}
	return st
}

// readDR answers a data register read. FPDAT may share its address with
// another register; reads with no response pending fall through to it.
func (t *Target) readDR() byte {
	switch {
	case t.ar == t.FPDAT && len(t.outq) > 0:
		b := t.outq[0]
		t.outq = t.outq[1:]
		if len(t.outq) > 0 {
			t.outDelay = t.ReadyPolls
		}
		return b
	case t.ar == c2prog.RegDeviceID:
		return t.DeviceID
	case t.ar == c2prog.RegRevisionID:
		return t.RevisionID
	default:
		return t.sfr[t.ar]
	}
}

func (t *Target) writeDR(v byte) {
	switch t.ar {
	case t.FPDAT:
		t.busy = t.BusyPolls
		t.piInput(v)
	case c2prog.RegFPCTL:
		t.fpctl(v)
	default:
		t.sfr[t.ar] = v
		t.record(Event{Op: OpRegisterWrite, Addr: uint32(t.ar), Value: v})
	}
}

func (t *Target) fpctl(v byte) {
	switch {
	case v == haltSequence[t.fpctlStep]:
		t.fpctlStep++
	case v == haltSequence[0]:
		t.fpctlStep = 1
	default:
		t.fpctlStep = 0
	}
	if t.fpctlStep == len(haltSequence) {
		t.fpctlStep = 0
		t.halted = true
		t.pi = piIdle
		t.outq = nil
		t.record(Event{Op: OpHalt})
	}
}

func (t *Target) push(b byte) {
	if len(t.outq) == 0 {
		t.outDelay = t.ReadyPolls
	}
	t.outq = append(t.outq, b)
}

func (t *Target) piInput(b byte) {
	switch t.pi {
	case piIdle:
		t.piCommand(b)
	case piArgs:
		t.args = append(t.args, b)
		t.piArgs()
	case piData:
		t.piData(b)
	}
}

func knownCommand(cmd byte) bool {
	switch cmd {
	case c2prog.CommandGetVersion, c2prog.CommandGetDerivative, c2prog.CommandDeviceErase,
		c2prog.CommandBlockRead, c2prog.CommandBlockWrite, c2prog.CommandPageErase,
		c2prog.CommandDirectRead, c2prog.CommandDirectWrite:
		return true
	}
	return false
}

func (t *Target) piCommand(cmd byte) {
	t.cmd = cmd
	t.args = t.args[:0]

	if cmd == c2prog.CommandBlockRead && t.StallBlockReads > 0 {
		t.StallBlockReads--
		t.pi = piStalled
		return
	}

	status := byte(c2prog.ResponseCommandOK)
	if !knownCommand(cmd) {
		status = c2prog.ResponseInvalidCommand
	}
	if s, ok := t.StatusOverride[cmd]; ok {
		status = s
	}
	t.push(status)
	if status != c2prog.ResponseCommandOK {
		return
	}

	switch cmd {
	case c2prog.CommandGetVersion:
		t.push(t.Version)
	case c2prog.CommandGetDerivative:
		t.push(t.Derivative)
	default:
		t.pi = piArgs
	}
}

func (t *Target) piArgs() {
	a := t.args
	switch t.cmd {
	case c2prog.CommandBlockRead, c2prog.CommandBlockWrite:
		if len(a) < 3 {
			return
		}
		t.pi = piIdle
		addr := int(a[0])<<8 | int(a[1])
		n := int(a[2])
		if n == 0 {
			n = 256
		}
		if addr+n > len(t.flash) {
			t.push(c2prog.ResponseCommandFailed)
			return
		}
		t.push(c2prog.ResponseCommandOK)
		if t.cmd == c2prog.CommandBlockRead {
			t.record(Event{Op: OpBlockRead, Addr: uint32(addr), Length: n})
			for _, b := range t.flash[addr : addr+n] {
				t.push(b)
			}
			return
		}
		t.record(Event{Op: OpBlockWrite, Addr: uint32(addr), Length: n})
		t.dataAddr, t.dataLeft, t.dataToSFR = addr, n, false
		t.pi = piData

	case c2prog.CommandPageErase:
		page := int(a[0])
		if len(a) == 1 {
			if (page+1)*t.PageSize > len(t.flash) {
				t.pi = piIdle
				t.push(c2prog.ResponseCommandFailed)
				return
			}
			t.push(c2prog.ResponseCommandOK)
			return
		}
		t.pi = piIdle
		for i := page * t.PageSize; i < (page+1)*t.PageSize; i++ {
			t.flash[i] = 0xFF
		}
		t.record(Event{Op: OpPageErase, Addr: uint32(page)})
		t.push(c2prog.ResponseCommandOK)
		t.outDelay = t.EraseReadyPolls

	case c2prog.CommandDeviceErase:
		if len(a) < 3 {
			return
		}
		t.pi = piIdle
		if [3]byte{a[0], a[1], a[2]} != eraseKey {
			t.push(c2prog.ResponseCommandFailed)
			return
		}
		for i := range t.flash {
			t.flash[i] = 0xFF
		}
		t.record(Event{Op: OpDeviceErase})
		t.push(c2prog.ResponseCommandOK)
		t.outDelay = t.EraseReadyPolls

	case c2prog.CommandDirectRead:
		if len(a) < 2 {
			return
		}
		t.pi = piIdle
		reg, n := a[0], int(a[1])
		t.record(Event{Op: OpDirectRead, Addr: uint32(reg), Length: n})
		for i := 0; i < n; i++ {
			t.push(t.sfr[reg+byte(i)])
		}

	case c2prog.CommandDirectWrite:
		if len(a) < 2 {
			return
		}
		t.dataAddr, t.dataLeft, t.dataToSFR = int(a[0]), int(a[1]), true
		t.pi = piData
		if t.dataLeft == 0 {
			t.pi = piIdle
		}

	default:
		t.pi = piIdle
	}
}

func (t *Target) piData(b byte) {
	if t.dataToSFR {
		reg := byte(t.dataAddr)
		t.sfr[reg] = b
		t.record(Event{Op: OpDirectWrite, Addr: uint32(reg), Value: b})
	} else {
		// programming can only clear bits
		t.flash[t.dataAddr] &= b
	}
	t.dataAddr++
	t.dataLeft--
	if t.dataLeft == 0 {
		t.pi = piIdle
	}
}
