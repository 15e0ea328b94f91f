package c2prog

import "github.com/pkg/errors"

// C2 instructions, sent LSB first after the START field.
const (
	insReadDR  = 0x00
	insWriteDR = 0x01
	insReadAR  = 0x02
	insWriteAR = 0x03
)

func (c *Interface) start(ins byte) {
	c.driveData()
	c.setData(true)
	c.strobe()
	c.sendBits(ins, 2)
}

// WriteAR writes the Address register, selecting the register subsequent
// data register accesses go to.
func (c *Interface) WriteAR(addr byte) error {
	c.begin()
	c.start(insWriteAR)
	c.sendBits(addr, 8)

	// STOP
	c.setData(true)
	c.strobe()
	c.settle()
	c.releaseData()
	return c.end("write AR")
}

// ReadAR reads the Address register. On a running PI this returns the
// status bits StatusOutReady and StatusInBusy.
func (c *Interface) ReadAR() (byte, error) {
	c.begin()
	c.start(insReadAR)

	c.setData(true)
	c.releaseData()
	v := c.receiveByte()

	// STOP
	c.strobe()
	if err := c.end("read AR"); err != nil {
		return 0, err
	}
	return v, nil
}

// WriteDR writes one byte to the Data register.
func (c *Interface) WriteDR(data byte) error {
	c.begin()
	c.start(insWriteDR)
	// LENGTH 00b: one byte
	c.sendBits(0, 2)
	c.sendBits(data, 8)

	if !c.wait(WriteWaitRetries) {
		if err := c.end("write DR"); err != nil {
			return err
		}
		return errors.WithMessage(ErrBusTimeout, "write DR: wait")
	}

	// STOP
	c.strobe()
	return c.end("write DR")
}

// ReadDR reads one byte from the Data register.
func (c *Interface) ReadDR() (byte, error) {
	c.begin()
	c.start(insReadDR)
	c.sendBits(0, 2)

	if !c.wait(ReadWaitRetries) {
		if err := c.end("read DR"); err != nil {
			return 0, err
		}
		return 0, errors.WithMessage(ErrBusTimeout, "read DR: wait")
	}
	v := c.receiveByte()

	// STOP
	c.strobe()
	if err := c.end("read DR"); err != nil {
		return 0, err
	}
	return v, nil
}

// ReadSFR selects reg and reads it through the Data register.
func (c *Interface) ReadSFR(reg byte) (byte, error) {
	if err := c.WriteAR(reg); err != nil {
		return 0, err
	}
	return c.ReadDR()
}

// WriteSFR selects reg and writes value to it through the Data register.
func (c *Interface) WriteSFR(reg, value byte) error {
	if err := c.WriteAR(reg); err != nil {
		return err
	}
	return c.WriteDR(value)
}
