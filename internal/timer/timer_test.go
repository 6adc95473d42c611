package timer

import (
	"testing"

	"github.com/dmgcore/gbcore/internal/interrupt"
)

func TestDIVIncrementsEvery256Cycles(t *testing.T) {
	tm := New()
	ic := interrupt.New()
	tm.Step(256*3+10, ic)
	if got, want := tm.DIV(), byte(3); got != want {
		t.Fatalf("DIV got %d want %d", got, want)
	}
}

func TestDIVWriteResetsToZero(t *testing.T) {
	tm := New()
	ic := interrupt.New()
	tm.Step(1000, ic)
	tm.WriteDIV(0x99)
	if tm.DIV() != 0 {
		t.Fatalf("DIV after write got %d, want 0 regardless of written value", tm.DIV())
	}
}

func TestTIMAOverflowReloadsAndInterrupts(t *testing.T) {
	tm := New()
	ic := interrupt.New()
	tm.WriteTAC(0x05) // enabled, select 01 -> every 16 cycles (262144 Hz)
	tm.WriteTMA(0x7A)
	tm.WriteTIMA(0xFF)

	tm.Step(16, ic) // one tick period -> overflow to 0x00, delay starts
	if tm.TIMA() != 0x00 {
		t.Fatalf("TIMA immediately after overflow got %#02x want 0x00", tm.TIMA())
	}
	if ic.Pending() {
		t.Fatalf("interrupt should not fire before the 4-cycle reload delay elapses")
	}

	tm.Step(4, ic) // reload delay elapses
	if tm.TIMA() != 0x7A {
		t.Fatalf("TIMA after reload got %#02x want TMA 0x7A", tm.TIMA())
	}
	if tm.reloadDelay != 0 {
		t.Fatalf("reload delay should be consumed")
	}
	ic.EnableAll(byte(interrupt.Timer))
	ic.IME = true // Next only reports interrupts while IME is set
	if k, ok := ic.Next(); !ok || k != interrupt.Timer {
		t.Fatalf("expected Timer interrupt requested, got %v,%v", k, ok)
	}
}

func TestTACPeriodMapping(t *testing.T) {
	// 00:4096Hz(1024 cyc) 01:262144Hz(16 cyc) 10:65536Hz(64 cyc) 11:16384Hz(256 cyc)
	cases := []struct {
		sel    byte
		period int
	}{
		{0x00, 1024},
		{0x01, 16},
		{0x02, 64},
		{0x03, 256},
	}
	for _, c := range cases {
		tm := New()
		ic := interrupt.New()
		tm.WriteTAC(0x04 | c.sel)
		tm.Step(c.period-1, ic)
		if tm.TIMA() != 0 {
			t.Fatalf("sel=%02b TIMA incremented early: %d cycles -> %d", c.sel, c.period-1, tm.TIMA())
		}
		tm.Step(1, ic)
		if tm.TIMA() != 1 {
			t.Fatalf("sel=%02b TIMA after %d cycles got %d want 1", c.sel, c.period, tm.TIMA())
		}
	}
}

func TestWriteTIMADuringReloadCancelsIt(t *testing.T) {
	tm := New()
	ic := interrupt.New()
	tm.WriteTAC(0x05)
	tm.WriteTMA(0x55)
	tm.WriteTIMA(0xFF)
	tm.Step(16, ic) // overflow, reload pending
	tm.WriteTIMA(0x10)
	tm.Step(10, ic)
	if tm.TIMA() == 0x55 {
		t.Fatalf("TIMA write during pending reload should cancel the reload")
	}
}
