package c2prog_test

import (
	"testing"

	"github.com/amrbekhit/c2prog"
	"github.com/amrbekhit/c2prog/c2sim"
	"github.com/stretchr/testify/require"
)

var testFamily = c2prog.Family{Name: "test", DeviceIDs: []int{0x05}, FPDAT: 0x01, PageSize: 256}

func testConfig() c2sim.Config {
	return c2sim.Config{
		DeviceID:   0x05,
		RevisionID: 0x02,
		Version:    0x11,
		Derivative: 0x42,
		FPDAT:      testFamily.FPDAT,
		PageSize:   int(testFamily.PageSize),
		WaitCycles: 2,
		BusyPolls:  1,
		ReadyPolls: 1,
	}
}

func newBus(t *testing.T, cfg c2sim.Config, opts ...c2prog.Option) (*c2sim.Target, *c2prog.Interface) {
	t.Helper()
	target := c2sim.New(cfg)
	c2 := c2prog.NewInterface(target, append([]c2prog.Option{c2prog.WithSleep(target.Sleep)}, opts...)...)
	require.NoError(t, c2.Init())
	return target, c2
}

func openSession(t *testing.T, cfg c2sim.Config, opts ...c2prog.Option) (*c2sim.Target, *c2prog.Session) {
	t.Helper()
	target, c2 := newBus(t, cfg, opts...)
	s, err := c2prog.Open(c2, c2prog.Families{testFamily})
	require.NoError(t, err)
	target.ClearEvents()
	return target, s
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)*7 + seed
	}
	return b
}
