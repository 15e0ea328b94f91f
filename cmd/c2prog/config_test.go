package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amrbekhit/c2prog"
	"github.com/amrbekhit/c2prog/c2sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]byte(`
backend: serial
serial:
  port: /dev/ttyACM0
settle: 2us
pollOutRetries: 5000
families:
  - name: EFM8UB1
    deviceIDs: [0x32]
    fpdat: 0xB4
    pageSize: 512
sim:
  deviceID: 0x32
`))
	require.NoError(t, err)
	assert.Equal(t, backendSerial, cfg.Backend)
	assert.Equal(t, serialConfig{Port: "/dev/ttyACM0", Baud: 115200}, cfg.Serial)
	assert.Equal(t, 2*time.Microsecond, cfg.Settle)
	assert.Equal(t, 5000, cfg.PollOutRetries)
	assert.Equal(t, byte(0x32), cfg.Sim.DeviceID)
	assert.Equal(t, byte(0xB4), cfg.Sim.FPDAT)

	f, err := cfg.families().Resolve(0x32)
	require.NoError(t, err)
	assert.Equal(t, "EFM8UB1", f.Name)
	_, err = cfg.families().Resolve(0x30)
	require.NoError(t, err)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := parseConfig([]byte("backend: jtag\n"))
	assert.Error(t, err)

	_, err = parseConfig([]byte("families:\n  - name: x\n    deviceIDs: [1]\n    pageSize: 300\n"))
	assert.Error(t, err)

	_, err = parseConfig([]byte("settle: 50us\n"))
	assert.Error(t, err)

	cfg := defaultConfig()
	require.NoError(t, cfg.validate())
	cfg.Backend = "jtag"
	assert.Error(t, cfg.validate())

	_, err = loadConfig("/nonexistent/c2prog.yaml")
	assert.ErrorIs(t, err, c2prog.ErrStorageIO)
}

func TestSimBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.Backend = backendSim

	lines, opts, err := cfg.openLines()
	require.NoError(t, err)
	target := lines.(*c2sim.Target)

	c2 := c2prog.NewInterface(lines, opts...)
	require.NoError(t, c2.Init())
	s, err := c2prog.Open(c2, cfg.families())
	require.NoError(t, err)
	assert.Equal(t, "EFM8BB1", s.Family().Name)

	require.NoError(t, processSFRWrite(s, []string{"0xA4", "0x5"}))
	assert.Equal(t, byte(0x05), target.SFR(0xA4))
	require.NoError(t, processErasePage(s, []string{"3"}))
	assert.ErrorIs(t, processErasePage(s, []string{"x"}), errUsage)
	assert.ErrorIs(t, processDump(s, []string{"0", "16", "9"}), errUsage)

	dir := t.TempDir()
	out := filepath.Join(dir, "out.hex")
	target.Flash()[0x1FFF] = 0x5A
	require.NoError(t, processRead(s, []string{out, "0x1F00"}))
	hexData, err := ioutil.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(hexData), ":00000001FF")
	assert.Contains(t, string(hexData), ":101FF000"+strings.Repeat("FF", 15)+"5A96")

	require.NoError(t, processRead(s, []string{out, "0x100"}))

	bad := filepath.Join(dir, "bad.hex")
	assert.ErrorIs(t, processRead(s, []string{bad, "0x100", "0x2000"}), c2prog.ErrOutOfRange)
	assert.ErrorIs(t, processRead(s, []string{bad, "0x2000"}), c2prog.ErrOutOfRange)
	_, err = os.Stat(bad)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, c2.Close())
	assert.True(t, target.Closed())
}

func TestCommandTable(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range commands {
		assert.False(t, seen[c.name], c.name)
		seen[c.name] = true
		assert.NotNil(t, c.handler, c.name)
	}
	c, ok := findCommand("flash")
	require.True(t, ok)
	assert.Equal(t, "<file>", c.args)
	_, ok = findCommand("program")
	assert.False(t, ok)
}
