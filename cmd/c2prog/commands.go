package main

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/amrbekhit/c2prog"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var errUsage = errors.New("invalid arguments")

type command struct {
	name string
	args string
	help string
	// noDevice commands run without opening the bus.
	noDevice bool
	handler  func(s *c2prog.Session, args []string) error
}

var commands = []command{
	{name: "version", help: "Show SW version.", noDevice: true, handler: processVersion},
	{name: "info", help: "Show device and programming interface information.", handler: processInfo},
	{name: "dump", args: "[offset] [len]", help: "Dump flash memory of connected device.", handler: processDump},
	{name: "read", args: "<file> [offset] [len]", help: "Read flash memory into an Intel HEX file.", handler: processRead},
	{name: "write", args: "<addr> <datafile>", help: "Write a binary file to flash memory at addr.", handler: processWrite},
	{name: "flash", args: "<file>", help: "Write an Intel HEX file to flash memory and verify it.", handler: processFlash},
	{name: "verify", args: "<file>", help: "Verify flash memory against an Intel HEX file.", handler: processVerify},
	{name: "erase", help: "Erase flash memory of connected device.", handler: processErase},
	{name: "erase-page", args: "<page>", help: "Erase one flash page.", handler: processErasePage},
	{name: "sfr-read", args: "<reg>", help: "Read a special function register.", handler: processSFRRead},
	{name: "sfr-write", args: "<reg> <value>", help: "Write a special function register.", handler: processSFRWrite},
	{name: "reset", help: "Reset the device and let it run.", handler: processReset},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func parseUint(s string, bits int, what string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, errors.Wrapf(errUsage, "invalid %v: %v", what, err)
	}
	return v, nil
}

// getAddrAndLen parses the optional offset and length arguments.
func getAddrAndLen(args []string, length int) (uint32, int, error) {
	var addr uint64
	var err error
	if len(args) > 2 {
		return 0, 0, errUsage
	}
	if len(args) > 0 {
		if addr, err = parseUint(args[0], 16, "address"); err != nil {
			return 0, 0, err
		}
	}
	if len(args) > 1 {
		l, err := parseUint(args[1], 32, "length")
		if err != nil {
			return 0, 0, err
		}
		length = int(l)
	}
	return uint32(addr), length, nil
}

func readFile(name string) ([]byte, error) {
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(c2prog.ErrStorageIO, "%v", err)
	}
	return data, nil
}

func processVersion(s *c2prog.Session, args []string) error {
	fmt.Printf("c2prog version %s\n", appVersion)
	return nil
}

func processInfo(s *c2prog.Session, args []string) error {
	dev := s.DeviceInfo()
	fmt.Printf("device id:   0x%02x\n", dev.DeviceID)
	fmt.Printf("revision id: 0x%02x\n", dev.RevisionID)
	fmt.Printf("family:      %v (page size %v)\n", s.Family().Name, s.Family().PageSize)

	pi, err := s.PIInfo()
	if err != nil {
		return errors.Wrap(err, "failed to read PI info")
	}
	fmt.Printf("pi version:  0x%02x\n", pi.Version)
	fmt.Printf("derivative:  0x%02x\n", pi.Derivative)
	return nil
}

func processDump(s *c2prog.Session, args []string) error {
	addr, length, err := getAddrAndLen(args, c2prog.MaxBlockSize)
	if err != nil {
		return err
	}
	data, err := c2prog.NewProgrammer(s).Dump(addr, length)
	if err != nil {
		return err
	}
	fmt.Print(hex.Dump(data))
	return nil
}

func processRead(s *c2prog.Session, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	size := s.Family().Size()
	addr, length, err := getAddrAndLen(args[1:], -1)
	if err != nil {
		return err
	}
	if addr >= size {
		return errors.Wrapf(c2prog.ErrOutOfRange, "address %04X beyond %v bytes of flash", addr, size)
	}
	if length < 0 {
		length = int(size - addr)
	}
	if uint64(addr)+uint64(length) > uint64(size) {
		return errors.Wrapf(c2prog.ErrOutOfRange, "%v bytes at %04X", length, addr)
	}

	file, err := os.Create(args[0])
	if err != nil {
		return errors.Wrapf(c2prog.ErrStorageIO, "%v", err)
	}
	log.Infof("reading %v bytes at %04X...", length, addr)
	err = c2prog.NewProgrammer(s).DumpHex(file, addr, length)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = errors.Wrapf(c2prog.ErrStorageIO, "%v", cerr)
	}
	if err != nil {
		os.Remove(args[0])
	}
	return err
}

func processWrite(s *c2prog.Session, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	addr, err := parseUint(args[0], 16, "address")
	if err != nil {
		return err
	}
	data, err := readFile(args[1])
	if err != nil {
		return err
	}
	n, err := s.WriteRegion(uint32(addr), data, logProgress)
	if err != nil {
		return errors.Wrapf(err, "wrote %v of %v bytes", n, len(data))
	}
	log.Infof("wrote %v bytes", n)
	return nil
}

func logProgress(done, total int) {
	log.Debugf("%v/%v bytes", done, total)
}

func loadProgrammer(s *c2prog.Session, name string) (*c2prog.Programmer, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrapf(c2prog.ErrStorageIO, "%v", err)
	}
	defer file.Close()

	prog := c2prog.NewProgrammer(s)
	if err := prog.LoadHex(file); err != nil {
		return nil, err
	}
	log.Infof("hex file loaded")
	return prog, nil
}

func processFlash(s *c2prog.Session, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	prog, err := loadProgrammer(s, args[0])
	if err != nil {
		return err
	}

	log.Infof("programming...")
	if err := prog.Program(logProgress); err != nil {
		return err
	}
	log.Infof("verifying...")
	if err := prog.Verify(); err != nil {
		return err
	}
	log.Infof("complete")
	return nil
}

func processVerify(s *c2prog.Session, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	prog, err := loadProgrammer(s, args[0])
	if err != nil {
		return err
	}
	log.Infof("verifying...")
	if err := prog.Verify(); err != nil {
		return err
	}
	log.Infof("verify ok")
	return nil
}

func processErase(s *c2prog.Session, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	log.Infof("erasing device...")
	return s.EraseDevice()
}

func processErasePage(s *c2prog.Session, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	page, err := parseUint(args[0], 8, "page")
	if err != nil {
		return err
	}
	return s.ErasePage(int(page))
}

func processSFRRead(s *c2prog.Session, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	reg, err := parseUint(args[0], 8, "register")
	if err != nil {
		return err
	}
	v, err := s.ReadDirect(byte(reg))
	if err != nil {
		return err
	}
	fmt.Printf("0x%02x: 0x%02x\n", reg, v)
	return nil
}

func processSFRWrite(s *c2prog.Session, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	reg, err := parseUint(args[0], 8, "register")
	if err != nil {
		return err
	}
	v, err := parseUint(args[1], 8, "value")
	if err != nil {
		return err
	}
	return s.WriteDirect(byte(reg), byte(v))
}

func processReset(s *c2prog.Session, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	return s.Interface().Reset()
}
