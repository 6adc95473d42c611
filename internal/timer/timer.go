// Package timer implements the DMG DIV/TIMA/TMA/TAC timer unit.
//
// TIMA increments on the falling edge of a bit of the internal 16-bit
// divider selected by TAC, gated by the TAC enable bit; this matches real
// hardware behavior (and the teacher's bus.go), not the naive "accumulate
// cycles until a fixed period" textbook description.
package timer

import (
	"bytes"
	"encoding/gob"

	"github.com/dmgcore/gbcore/internal/interrupt"
)

// TAC input-clock selector -> divider bit sampled for the falling edge.
// 00:4096Hz (bit9) 01:262144Hz (bit3) 10:65536Hz (bit5) 11:16384Hz (bit7).
var tacBit = [4]uint{9, 3, 5, 7}

// Timer models DIV (upper 8 bits of a free-running 16-bit divider) and the
// TIMA/TMA/TAC counter/reload/control registers.
type Timer struct {
	divInternal uint16
	tima        byte
	tma         byte
	tac         byte // low 3 bits meaningful: bit2 enable, bits1:0 clock select

	// TIMA overflow reloads from TMA and requests the Timer interrupt four
	// T-cycles later; writes to TIMA during that window cancel the reload.
	reloadDelay int
}

// New returns a timer in its post-boot DMG state (DIV free-running from 0).
func New() *Timer {
	return &Timer{}
}

func (t *Timer) DIV() byte  { return byte(t.divInternal >> 8) }
func (t *Timer) TIMA() byte { return t.tima }
func (t *Timer) TMA() byte  { return t.tma }
func (t *Timer) TAC() byte  { return 0xF8 | (t.tac & 0x07) }

// WriteDIV resets the divider to zero regardless of the value written. A
// reset can itself cause a falling edge on the selected bit, incrementing
// TIMA immediately.
func (t *Timer) WriteDIV(byte) {
	old := t.input()
	t.divInternal = 0
	if old && !t.input() {
		t.bumpTIMA()
	}
}

// WriteTIMA sets TIMA directly; if a delayed TMA reload was pending, writing
// TIMA cancels it.
func (t *Timer) WriteTIMA(v byte) {
	t.tima = v
	t.reloadDelay = 0
}

func (t *Timer) WriteTMA(v byte) { t.tma = v }

// WriteTAC updates the enable bit and clock selector; like DIV, changing the
// effective input can itself cause a falling edge.
func (t *Timer) WriteTAC(v byte) {
	old := t.input()
	t.tac = v & 0x07
	if old && !t.input() {
		t.bumpTIMA()
	}
}

// Step advances the timer by cycles T-cycles, requesting a Timer interrupt
// through ic on TIMA overflow.
func (t *Timer) Step(cycles int, ic *interrupt.Controller) {
	for i := 0; i < cycles; i++ {
		old := t.input()
		t.divInternal++
		falling := old && !t.input()

		if t.reloadDelay > 0 {
			t.reloadDelay--
			if t.reloadDelay == 0 {
				t.tima = t.tma
				ic.Request(interrupt.Timer)
			}
		}

		if falling {
			t.bumpTIMA()
		}
	}
}

func (t *Timer) input() bool {
	if t.tac&0x04 == 0 {
		return false
	}
	bit := tacBit[t.tac&0x03]
	return (t.divInternal>>bit)&1 != 0
}

func (t *Timer) bumpTIMA() {
	if t.reloadDelay > 0 {
		return
	}
	if t.tima == 0xFF {
		t.tima = 0x00
		t.reloadDelay = 4
		return
	}
	t.tima++
}

type timerState struct {
	DivInternal uint16
	TIMA, TMA, TAC byte
	ReloadDelay int
}

func (t *Timer) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(timerState{
		DivInternal: t.divInternal, TIMA: t.tima, TMA: t.tma, TAC: t.tac,
		ReloadDelay: t.reloadDelay,
	})
	return buf.Bytes()
}

func (t *Timer) LoadState(data []byte) {
	var s timerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	t.divInternal, t.tima, t.tma, t.tac, t.reloadDelay = s.DivInternal, s.TIMA, s.TMA, s.TAC, s.ReloadDelay
}
