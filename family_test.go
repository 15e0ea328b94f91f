package c2prog

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestDefaultFamiliesValid(t *testing.T) {
	require.NoError(t, DefaultFamilies.Validate())
}

func TestFamilyValidate(t *testing.T) {
	tests := []struct {
		name   string
		family Family
		ok     bool
	}{
		{"ok", Family{Name: "a", DeviceIDs: []int{1}, PageSize: 512}, true},
		{"small flash", Family{Name: "a", DeviceIDs: []int{1}, PageSize: 512, FlashSize: 0x2000}, true},
		{"zero page", Family{Name: "a", DeviceIDs: []int{1}}, false},
		{"not power of two", Family{Name: "a", DeviceIDs: []int{1}, PageSize: 384}, false},
		{"flash not paged", Family{Name: "a", DeviceIDs: []int{1}, PageSize: 512, FlashSize: 0x2100}, false},
		{"too many pages", Family{Name: "a", DeviceIDs: []int{1}, PageSize: 128}, false},
		{"small pages in small flash", Family{Name: "a", DeviceIDs: []int{1}, PageSize: 128, FlashSize: 0x2000}, true},
		{"no ids", Family{Name: "a", PageSize: 512}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.family.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFamiliesDuplicateID(t *testing.T) {
	fs := Families{
		{Name: "a", DeviceIDs: []int{0x30}, PageSize: 512},
		{Name: "b", DeviceIDs: []int{0x31, 0x30}, PageSize: 512},
	}
	assert.Error(t, fs.Validate())
}

func TestResolve(t *testing.T) {
	fs := Families{
		{Name: "a", DeviceIDs: []int{0x30}, FPDAT: 0xB4, PageSize: 512},
		{Name: "b", DeviceIDs: []int{0x05, 0x06}, FPDAT: 0x01, PageSize: 256},
	}
	f, err := fs.Resolve(0x06)
	require.NoError(t, err)
	assert.Equal(t, "b", f.Name)

	_, err = fs.Resolve(0x07)
	assert.True(t, errors.Is(err, ErrUnsupportedDevice))
	assert.Equal(t, "unsupported device", Kind(err))
}

func TestFamilyYAML(t *testing.T) {
	doc := `
- name: EFM8UB1
  deviceIDs: [0x32]
  fpdat: 0xB4
  pageSize: 512
  flashSize: 0x4000
- name: F58x
  deviceIDs: [0x20]
  fpdat: 0xB4
  pageSize: 512
  restorePSBank: true
`
	var fs Families
	require.NoError(t, yaml.Unmarshal([]byte(doc), &fs))
	require.NoError(t, fs.Validate())
	require.Len(t, fs, 2)
	assert.Equal(t, Family{Name: "EFM8UB1", DeviceIDs: []int{0x32}, FPDAT: 0xB4, PageSize: 512, FlashSize: 0x4000}, fs[0])
	assert.True(t, fs[1].RestorePSBank)
	assert.Equal(t, uint32(AddressSpace), fs[1].Size())
}
