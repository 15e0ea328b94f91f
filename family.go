package c2prog

import (
	"fmt"

	"github.com/pkg/errors"
)

// AddressSpace is the size of the 16-bit flash address space.
const AddressSpace = 0x10000

// Family describes the programming parameters shared by a group of devices.
type Family struct {
	Name      string `yaml:"name"`
	DeviceIDs []int  `yaml:"deviceIDs"`
	// FPDAT is the address of the PI data register.
	FPDAT byte `yaml:"fpdat"`
	// PageSize is the flash erase page size in bytes.
	PageSize uint32 `yaml:"pageSize"`
	// FlashSize limits flash accesses. Zero means the whole address space.
	FlashSize uint32 `yaml:"flashSize"`
	// RestorePSBank writes PSBANK (0xF5) back to 0x11 after a page erase.
	// The C8051F58x/F59x erase leaves the bank select clobbered.
	RestorePSBank bool `yaml:"restorePSBank"`
}

// Match returns true if id belongs to the family.
func (f Family) Match(id byte) bool {
	for _, d := range f.DeviceIDs {
		if d == int(id) {
			return true
		}
	}
	return false
}

// Size returns the number of bytes of flash that can be accessed.
func (f Family) Size() uint32 {
	if f.FlashSize == 0 || f.FlashSize > AddressSpace {
		return AddressSpace
	}
	return f.FlashSize
}

// Validate checks the family parameters.
func (f Family) Validate() error {
	if f.PageSize == 0 || f.PageSize&(f.PageSize-1) != 0 {
		return fmt.Errorf("family %v: page size %v is not a power of two", f.Name, f.PageSize)
	}
	if f.PageSize > AddressSpace || f.Size()%f.PageSize != 0 {
		return fmt.Errorf("family %v: page size %v does not divide flash size %v", f.Name, f.PageSize, f.Size())
	}
	if f.Size()/f.PageSize > 256 {
		return fmt.Errorf("family %v: page size %v gives more than 256 pages", f.Name, f.PageSize)
	}
	if len(f.DeviceIDs) == 0 {
		return fmt.Errorf("family %v: no device ids", f.Name)
	}
	return nil
}

// Families is a device family table.
type Families []Family

// DefaultFamilies holds the families known to the package.
var DefaultFamilies = Families{
	{Name: "C8051F32x", DeviceIDs: []int{0x09}, FPDAT: 0xB4, PageSize: 512, FlashSize: 0x4000},
	{Name: "C8051F34x", DeviceIDs: []int{0x0F}, FPDAT: 0xAD, PageSize: 512, FlashSize: 0x10000},
	{Name: "C8051F38x", DeviceIDs: []int{0x28}, FPDAT: 0xAD, PageSize: 512, FlashSize: 0x10000},
	{Name: "C8051F58x/F59x", DeviceIDs: []int{0x20}, FPDAT: 0xB4, PageSize: 512, FlashSize: 0x10000, RestorePSBank: true},
	{Name: "EFM8BB1", DeviceIDs: []int{0x30}, FPDAT: 0xB4, PageSize: 512, FlashSize: 0x2000},
	{Name: "EFM8LB1", DeviceIDs: []int{0x34}, FPDAT: 0xB4, PageSize: 512, FlashSize: 0x10000},
}

// Validate checks every family and that no device ID is claimed twice.
func (fs Families) Validate() error {
	owner := map[int]string{}
	for _, f := range fs {
		if err := f.Validate(); err != nil {
			return err
		}
		for _, id := range f.DeviceIDs {
			if prev, ok := owner[id]; ok {
				return fmt.Errorf("device id %02X claimed by %v and %v", id, prev, f.Name)
			}
			owner[id] = f.Name
		}
	}
	return nil
}

// Resolve returns the family id belongs to.
func (fs Families) Resolve(id byte) (Family, error) {
	for _, f := range fs {
		if f.Match(id) {
			return f, nil
		}
	}
	return Family{}, errors.WithMessagef(ErrUnsupportedDevice, "device family 0x%02x", id)
}
