package c2prog_test

import (
	"testing"

	"github.com/amrbekhit/c2prog"
	"github.com/amrbekhit/c2prog/c2sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	target, c2 := newBus(t, testConfig())
	s, err := c2prog.Open(c2, c2prog.Families{testFamily})
	require.NoError(t, err)
	assert.True(t, target.Halted())
	assert.Equal(t, "test", s.Family().Name)
	assert.Equal(t, c2prog.DeviceInfo{DeviceID: 0x05, RevisionID: 0x02}, s.DeviceInfo())
}

func TestOpenUnsupported(t *testing.T) {
	cfg := testConfig()
	cfg.DeviceID = 0x77
	_, c2 := newBus(t, cfg)
	_, err := c2prog.Open(c2, c2prog.Families{testFamily})
	require.ErrorIs(t, err, c2prog.ErrUnsupportedDevice)
}

func TestPIInfo(t *testing.T) {
	_, s := openSession(t, testConfig())
	info, err := s.PIInfo()
	require.NoError(t, err)
	assert.Equal(t, c2prog.PIInfo{Version: 0x11, Derivative: 0x42}, info)
}

func TestBlockChunking(t *testing.T) {
	for _, length := range []int{0, 1, 255, 256, 257, 512} {
		target, s := openSession(t, testConfig())
		data := pattern(length, 3)
		copy(target.Flash()[0x100:], data)

		buf := make([]byte, length)
		require.NoError(t, s.BlockRead(0x100, length, buf))
		assert.Equal(t, data, buf, "length %d", length)
		assertBlocks(t, target.EventsOf(c2sim.OpBlockRead), 0x100, length)

		require.NoError(t, s.BlockWrite(0x1000, data))
		assert.Equal(t, data, target.Flash()[0x1000:0x1000+length], "length %d", length)
		assertBlocks(t, target.EventsOf(c2sim.OpBlockWrite), 0x1000, length)
	}
}

func assertBlocks(t *testing.T, events []c2sim.Event, addr uint32, length int) {
	t.Helper()
	total := 0
	for i, e := range events {
		require.LessOrEqual(t, e.Length, c2prog.MaxBlockSize)
		if i < len(events)-1 {
			assert.Equal(t, c2prog.MaxBlockSize, e.Length)
		}
		assert.Equal(t, addr+uint32(total), e.Addr)
		total += e.Length
	}
	assert.Equal(t, length, total)
	assert.Len(t, events, (length+c2prog.MaxBlockSize-1)/c2prog.MaxBlockSize)
}

func TestBlockReadDiscard(t *testing.T) {
	target, s := openSession(t, testConfig())
	require.NoError(t, s.BlockRead(0, 300, nil))
	assert.Len(t, target.EventsOf(c2sim.OpBlockRead), 2)
}

func TestBlockReadShortBuffer(t *testing.T) {
	_, s := openSession(t, testConfig())
	require.Error(t, s.BlockRead(0, 10, make([]byte, 5)))
}

func TestOutOfRange(t *testing.T) {
	_, s := openSession(t, testConfig())
	_, err := s.Read(0xFFF0, 0x20)
	require.ErrorIs(t, err, c2prog.ErrOutOfRange)
	require.ErrorIs(t, s.BlockWrite(0xFFFF, []byte{1, 2}), c2prog.ErrOutOfRange)
	require.ErrorIs(t, s.ErasePage(256), c2prog.ErrOutOfRange)
	_, err = s.FlashChunk(0x10000, []byte{1})
	require.ErrorIs(t, err, c2prog.ErrOutOfRange)
}

func TestBlockReadTimeoutReportsAddress(t *testing.T) {
	cfg := testConfig()
	cfg.StallBlockReads = 1
	_, s := openSession(t, cfg)

	_, err := s.Read(0x0200, 16)
	require.ErrorIs(t, err, c2prog.ErrBusTimeout)
	var ferr *c2prog.FlashError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, uint32(0x0200), ferr.Address)
}

func TestErasePage(t *testing.T) {
	target, s := openSession(t, testConfig())
	for i := range target.Flash() {
		target.Flash()[i] = 0
	}

	require.NoError(t, s.ErasePage(2))
	flash := target.Flash()
	for i := 0; i < 0x400; i++ {
		if i >= 0x200 && i < 0x300 {
			require.Equal(t, byte(0xFF), flash[i], "offset %x", i)
		} else {
			require.Equal(t, byte(0), flash[i], "offset %x", i)
		}
	}
	assert.Equal(t, []c2sim.Event{{Op: c2sim.OpPageErase, Addr: 2}}, target.Events())
}

func TestErasePageRestoresPSBank(t *testing.T) {
	family := testFamily
	family.RestorePSBank = true

	target, c2 := newBus(t, testConfig())
	s, err := c2prog.Open(c2, c2prog.Families{family})
	require.NoError(t, err)

	require.NoError(t, s.ErasePage(1))
	assert.Equal(t, byte(0x11), target.SFR(0xF5))
	writes := target.EventsOf(c2sim.OpRegisterWrite)
	require.Len(t, writes, 1)
	assert.Equal(t, c2sim.Event{Op: c2sim.OpRegisterWrite, Addr: 0xF5, Value: 0x11}, writes[0])

	// the bus is back on FPDAT for the next command
	_, err = s.PIInfo()
	require.NoError(t, err)
}

func TestErasePageWithoutPSBank(t *testing.T) {
	target, s := openSession(t, testConfig())
	require.NoError(t, s.ErasePage(1))
	assert.Equal(t, byte(0), target.SFR(0xF5))
	assert.Empty(t, target.EventsOf(c2sim.OpRegisterWrite))
}

func TestEraseDevice(t *testing.T) {
	target, s := openSession(t, testConfig())
	copy(target.Flash(), pattern(1024, 1))

	require.NoError(t, s.EraseDevice())
	for _, b := range target.Flash() {
		require.Equal(t, byte(0xFF), b)
	}
	assert.Len(t, target.EventsOf(c2sim.OpDeviceErase), 1)
}

func TestEraseDeviceRejected(t *testing.T) {
	cfg := testConfig()
	cfg.StatusOverride = map[byte]byte{c2prog.CommandDeviceErase: c2prog.ResponseCommandFailed}
	target, s := openSession(t, cfg)

	require.ErrorIs(t, s.EraseDevice(), c2prog.ErrProtocolRejected)
	assert.Empty(t, target.EventsOf(c2sim.OpDeviceErase))
}

func TestDirectAccess(t *testing.T) {
	target, s := openSession(t, testConfig())
	target.SetSFR(0xE0, 0x3C)

	v, err := s.ReadDirect(0xE0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x3C), v)

	require.NoError(t, s.WriteDirect(0xA4, 0x81))
	assert.Equal(t, byte(0x81), target.SFR(0xA4))
	assert.Equal(t, []c2sim.Event{
		{Op: c2sim.OpDirectRead, Addr: 0xE0, Length: 1},
		{Op: c2sim.OpDirectWrite, Addr: 0xA4, Value: 0x81},
	}, target.Events())
}
