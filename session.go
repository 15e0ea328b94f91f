package c2prog

import (
	"github.com/pkg/errors"
)

// MaxBlockSize is the largest block the PI transfers in one command.
const MaxBlockSize = 256

// PSBANK restore written after a page erase on families that need it.
const (
	regPSBank     = 0xF5
	psBankDefault = 0x11
)

// Session binds a halted target on an Interface to its device family and
// provides the flash operations.
type Session struct {
	c2     *Interface
	family Family
	info   DeviceInfo
}

// NewSession creates a session for a target of the given family.
func NewSession(c2 *Interface, family Family) *Session {
	return &Session{c2: c2, family: family}
}

// Open halts the target, reads its device ID and resolves its family.
func Open(c2 *Interface, families Families) (*Session, error) {
	if err := c2.Halt(); err != nil {
		return nil, errors.Wrap(err, "failed to halt device")
	}
	info, err := c2.DeviceInfo()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get device info")
	}
	family, err := families.Resolve(info.DeviceID)
	if err != nil {
		return nil, err
	}
	pkgLog.Debugf("device id %02X revision %02X: family %v", info.DeviceID, info.RevisionID, family.Name)

	s := NewSession(c2, family)
	s.info = info
	return s, nil
}

// Interface returns the bus the session runs on.
func (s *Session) Interface() *Interface {
	return s.c2
}

// Family returns the family the session was opened for.
func (s *Session) Family() Family {
	return s.family
}

// DeviceInfo returns the device info read when the session was opened.
func (s *Session) DeviceInfo() DeviceInfo {
	return s.info
}

// Halt resets and halts the target again. This is the recovery path after a
// failed command.
func (s *Session) Halt() error {
	return s.c2.Halt()
}

func (s *Session) selectFPDAT() error {
	return s.c2.WriteAR(s.family.FPDAT)
}

func (s *Session) checkRange(addr uint32, length int) error {
	if length < 0 || uint64(addr)+uint64(length) > uint64(s.family.Size()) {
		return errors.WithMessagef(ErrOutOfRange, "%d bytes at %04X", length, addr)
	}
	return nil
}

// PIInfo reads the programming interface version and derivative.
func (s *Session) PIInfo() (PIInfo, error) {
	var info PIInfo
	var err error

	if err = s.selectFPDAT(); err != nil {
		return PIInfo{}, err
	}
	if info.Version, err = s.c2.PIQuery(CommandGetVersion); err != nil {
		return PIInfo{}, errors.Wrap(err, "get version")
	}
	if info.Derivative, err = s.c2.PIQuery(CommandGetDerivative); err != nil {
		return PIInfo{}, errors.Wrap(err, "get derivative")
	}
	return info, nil
}

// ReadDirect reads a special function register through the PI.
func (s *Session) ReadDirect(reg byte) (byte, error) {
	if err := s.selectFPDAT(); err != nil {
		return 0, err
	}
	if err := s.c2.PICommand(CommandDirectRead, true); err != nil {
		return 0, errors.Wrap(err, "direct read")
	}
	if err := s.c2.PIWrite(reg); err != nil {
		return 0, errors.Wrap(err, "direct read")
	}
	if err := s.c2.PIWrite(0x01); err != nil {
		return 0, errors.Wrap(err, "direct read")
	}
	v, err := s.c2.PIGet()
	if err != nil {
		return 0, errors.Wrap(err, "direct read")
	}
	return v, nil
}

// WriteDirect writes a special function register through the PI.
func (s *Session) WriteDirect(reg, value byte) error {
	if err := s.selectFPDAT(); err != nil {
		return err
	}
	if err := s.c2.PICommand(CommandDirectWrite, true); err != nil {
		return errors.Wrap(err, "direct write")
	}
	for _, b := range []byte{reg, 0x01, value} {
		if err := s.c2.PIWrite(b); err != nil {
			return errors.Wrap(err, "direct write")
		}
	}
	return nil
}

// startBlock sends the command, address and length header of a block
// transfer. A length byte of 0 means 256.
func (s *Session) startBlock(cmd byte, addr uint32, size int) error {
	if err := s.c2.PICommand(cmd, true); err != nil {
		return err
	}
	if err := s.c2.PICommand(byte(addr>>8), false); err != nil {
		return err
	}
	if err := s.c2.PICommand(byte(addr), false); err != nil {
		return err
	}
	return s.c2.PICommand(byte(size), true)
}

func blockSize(length int) int {
	if length > MaxBlockSize-1 {
		return MaxBlockSize
	}
	return length
}

// BlockRead reads length bytes of flash starting at addr into dest. If dest
// is nil the data is read and discarded.
func (s *Session) BlockRead(addr uint32, length int, dest []byte) error {
	if err := s.checkRange(addr, length); err != nil {
		return err
	}
	if dest != nil && len(dest) < length {
		return errors.Errorf("block read: buffer of %d bytes too short for %d", len(dest), length)
	}
	if err := s.selectFPDAT(); err != nil {
		return err
	}

	for length > 0 {
		size := blockSize(length)
		if err := s.startBlock(CommandBlockRead, addr, size); err != nil {
			return &FlashError{Address: addr, Err: errors.Wrap(err, "block read")}
		}
		for k := 0; k < size; k++ {
			b, err := s.c2.PIGet()
			if err != nil {
				return &FlashError{Address: addr + uint32(k), Err: errors.Wrap(err, "block read")}
			}
			if dest != nil {
				dest[k] = b
			}
		}
		if dest != nil {
			dest = dest[size:]
		}
		length -= size
		addr += uint32(size)
	}
	return nil
}

// Read returns length bytes of flash starting at addr.
func (s *Session) Read(addr uint32, length int) ([]byte, error) {
	buf := make([]byte, length)
	if err := s.BlockRead(addr, length, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// BlockWrite writes src to flash starting at addr. The flash must have been
// erased beforehand.
func (s *Session) BlockWrite(addr uint32, src []byte) error {
	if err := s.checkRange(addr, len(src)); err != nil {
		return err
	}
	if err := s.selectFPDAT(); err != nil {
		return err
	}

	for len(src) > 0 {
		size := blockSize(len(src))
		if err := s.startBlock(CommandBlockWrite, addr, size); err != nil {
			return &FlashError{Address: addr, Err: errors.Wrap(err, "block write")}
		}
		for k, b := range src[:size] {
			if err := s.c2.PICommand(b, false); err != nil {
				return &FlashError{Address: addr + uint32(k), Err: errors.Wrap(err, "block write")}
			}
		}
		src = src[size:]
		addr += uint32(size)
	}
	return nil
}

// ErasePage erases one flash page.
func (s *Session) ErasePage(page int) error {
	if page < 0 || uint32(page) >= s.family.Size()/s.family.PageSize {
		return errors.WithMessagef(ErrOutOfRange, "page %d", page)
	}
	if err := s.selectFPDAT(); err != nil {
		return err
	}
	for _, b := range []byte{CommandPageErase, byte(page), 0} {
		if err := s.c2.PICommand(b, true); err != nil {
			return &FlashError{Address: uint32(page) * s.family.PageSize, Err: errors.Wrap(err, "page erase")}
		}
	}

	if s.family.RestorePSBank {
		if err := s.c2.WriteSFR(regPSBank, psBankDefault); err != nil {
			return errors.Wrap(err, "restore PSBANK")
		}
	}
	pkgLog.Debugf("erased page %d", page)
	return nil
}

// EraseDevice erases the whole flash.
func (s *Session) EraseDevice() error {
	if err := s.selectFPDAT(); err != nil {
		return err
	}
	if err := s.c2.PICommand(CommandDeviceErase, true); err != nil {
		return errors.Wrap(err, "device erase")
	}
	for _, b := range deviceEraseKey {
		if err := s.c2.PIWrite(b); err != nil {
			return errors.Wrap(err, "device erase")
		}
	}
	if err := s.c2.checkOK(CommandDeviceErase); err != nil {
		return errors.Wrap(err, "device erase")
	}
	pkgLog.Debugf("erased device")
	return nil
}
