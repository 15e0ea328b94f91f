package c2prog

import (
	"io"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// MaxConsecutiveFailures is the number of failed reads in a row after which
// a dump or verify is abandoned. Each failure re-halts the target.
const MaxConsecutiveFailures = 5

// Programmer loads Intel HEX images and programs, verifies and dumps them
// through a Session.
type Programmer struct {
	session *Session
	memory  *gohex.Memory
}

// NewProgrammer creates a programmer working on session.
func NewProgrammer(session *Session) *Programmer {
	return &Programmer{session: session, memory: gohex.NewMemory()}
}

func loadHex(r io.Reader) (*gohex.Memory, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, errors.Wrapf(ErrStorageIO, "parse hex: %v", err)
	}
	return mem, nil
}

// LoadHex loads and parses the specified hex data. Every segment must fit in
// the family's flash.
func (p *Programmer) LoadHex(r io.Reader) error {
	mem, err := loadHex(r)
	if err != nil {
		return err
	}
	for _, segment := range mem.GetDataSegments() {
		if err := p.session.checkRange(segment.Address, len(segment.Data)); err != nil {
			return errors.Wrap(err, "invalid data segment")
		}
		pkgLog.Debugf("loaded segment at %04X length %v", segment.Address, len(segment.Data))
	}
	p.memory = mem
	return nil
}

// Segments returns the loaded data segments.
func (p *Programmer) Segments() []gohex.DataSegment {
	return p.memory.GetDataSegments()
}

// Program writes the loaded segments page by page.
func (p *Programmer) Program(progress ProgressFunc) error {
	segments := p.memory.GetDataSegments()
	total := 0
	for _, segment := range segments {
		total += len(segment.Data)
	}

	done := 0
	for _, segment := range segments {
		base := done
		n, err := p.session.WriteRegion(segment.Address, segment.Data, func(d, _ int) {
			if progress != nil {
				progress(base+d, total)
			}
		})
		if err != nil {
			return &FlashError{Address: segment.Address + uint32(n), Err: err}
		}
		done += n
	}
	return nil
}

// readWithRetry reads flash in MaxBlockSize chunks. A failed chunk halts the
// target and is read again, up to MaxConsecutiveFailures times in a row.
func (p *Programmer) readWithRetry(addr uint32, length int, chunkFunc func(addr uint32, data []byte) error) error {
	buf := make([]byte, MaxBlockSize)
	failures := 0
	for length > 0 {
		chunk := length
		if chunk > len(buf) {
			chunk = len(buf)
		}
		if err := p.session.BlockRead(addr, chunk, buf); err != nil {
			if errors.Is(err, ErrOutOfRange) {
				return err
			}
			failures++
			pkgLog.Warnf("read at %04X failed (%d in a row): %v", addr, failures, err)
			if failures > MaxConsecutiveFailures {
				return errors.Wrapf(err, "giving up after %d failures", failures)
			}
			if herr := p.session.Halt(); herr != nil {
				pkgLog.Warnf("halt failed: %v", herr)
			}
			continue
		}
		failures = 0
		if err := chunkFunc(addr, buf[:chunk]); err != nil {
			return err
		}
		addr += uint32(chunk)
		length -= chunk
	}
	return nil
}

// Verify reads back the loaded segments and compares them to the hex data.
func (p *Programmer) Verify() error {
	for _, segment := range p.memory.GetDataSegments() {
		err := p.readWithRetry(segment.Address, len(segment.Data), func(addr uint32, data []byte) error {
			expected := segment.Data[addr-segment.Address:]
			for i := range data {
				if data[i] != expected[i] {
					return &MismatchError{Address: addr + uint32(i), Expected: expected[i], Read: data[i]}
				}
			}
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "failed to verify flash")
		}
	}
	return nil
}

// Dump reads length bytes of flash starting at addr.
func (p *Programmer) Dump(addr uint32, length int) ([]byte, error) {
	if err := p.session.checkRange(addr, length); err != nil {
		return nil, err
	}
	out := make([]byte, 0, length)
	err := p.readWithRetry(addr, length, func(_ uint32, data []byte) error {
		out = append(out, data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DumpHex reads length bytes of flash starting at addr and writes them to w
// in Intel HEX format.
func (p *Programmer) DumpHex(w io.Writer, addr uint32, length int) error {
	data, err := p.Dump(addr, length)
	if err != nil {
		return err
	}
	mem := gohex.NewMemory()
	if err := mem.AddBinary(addr, data); err != nil {
		return errors.Wrapf(ErrStorageIO, "hex: %v", err)
	}
	if err := mem.DumpIntelHex(w, 16); err != nil {
		return errors.Wrapf(ErrStorageIO, "write hex: %v", err)
	}
	return nil
}
