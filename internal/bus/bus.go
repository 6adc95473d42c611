// Package bus implements the Interconnect: the DMG's single 16-bit address
// space, wiring the cartridge, work/high RAM, the PPU, the timer, the
// interrupt controller, and the simple IO registers (joypad, serial, OAM
// DMA, boot ROM overlay) behind one CPU-facing Read/Write surface.
package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/dmgcore/gbcore/internal/bootrom"
	"github.com/dmgcore/gbcore/internal/cart"
	"github.com/dmgcore/gbcore/internal/interrupt"
	"github.com/dmgcore/gbcore/internal/ppu"
	"github.com/dmgcore/gbcore/internal/timer"
)

// Bus is the Interconnect: the CPU's only view of memory and IO.
type Bus struct {
	cart cart.Cartridge
	boot *bootrom.Bootrom

	// Work RAM (WRAM) 8 KiB at 0xC000-0xDFFF; Echo 0xE000-0xFDFF mirrors it.
	wram [0x2000]byte
	// High RAM (HRAM) 0xFF80-0xFFFE.
	hram [0x7F]byte

	ppu *ppu.PPU
	ic  *interrupt.Controller
	tm  *timer.Timer

	bootOverlayEnabled bool

	joypSelect byte
	joypad     byte
	joypLower4 byte

	sb byte
	sc byte
	sw io.Writer

	dma       byte
	dmaActive bool
	dmaSrc    uint16
	dmaIndex  int
}

// New constructs a Bus with no boot ROM, wrapping rom in whichever
// cartridge type its header indicates (falling back to a ROM-only mapping
// if the image can't be parsed as a full cartridge).
func New(rom []byte) *Bus {
	c, err := cart.New(rom)
	if err != nil {
		c = cart.NewROMOnly(rom)
	}
	return NewWithCartridge(c)
}

// NewWithCartridge wires a provided cartridge implementation.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c, ic: interrupt.New(), tm: timer.New()}
	b.ppu = ppu.New(func(bit int) {
		if bit == 0 {
			b.ic.Request(interrupt.VBlank)
		} else {
			b.ic.Request(interrupt.LCDStat)
		}
	})
	boot, _ := bootrom.New(nil)
	b.boot = boot
	return b
}

// PPU returns the internal PPU for rendering/debug access.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// Cart returns the underlying cartridge, e.g. for battery-RAM persistence.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// Interrupts returns the shared interrupt controller the CPU dispatches from.
func (b *Bus) Interrupts() *interrupt.Controller { return b.ic }

// SetBootROM loads a DMG boot ROM, mapped over 0x0000-0x00FF until disabled
// by a write to 0xFF50.
func (b *Bus) SetBootROM(data []byte) error {
	boot, err := bootrom.New(data)
	if err != nil {
		return err
	}
	b.boot = boot
	b.bootOverlayEnabled = boot.IsUsed()
	return nil
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootOverlayEnabled && addr < 0x0100 {
			return b.boot.ReadB(addr)
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0x2000-0xC000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF // prohibited region
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFF00:
		return b.readJoyp()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF04:
		return b.tm.DIV()
	case addr == 0xFF05:
		return b.tm.TIMA()
	case addr == 0xFF06:
		return b.tm.TMA()
	case addr == 0xFF07:
		return b.tm.TAC()
	case addr == 0xFF0F:
		return 0xE0 | (b.ic.IF & 0x1F)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return b.dma
	case addr == 0xFF50:
		return 0xFF
	case addr == 0xFFFF:
		return b.ic.IE
	default:
		// APU (0xFF10-0xFF3F) and other unimplemented MMIO: reads as 0.
		return 0
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.wram[addr-0x2000-0xC000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// writes to the prohibited region are ignored
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFF00:
		b.joypSelect = value & 0x30
		b.updateJoypadIRQ()
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.ic.Request(interrupt.Serial)
			b.sc &^= 0x80
		}
	case addr == 0xFF04:
		b.tm.WriteDIV(value)
	case addr == 0xFF05:
		b.tm.WriteTIMA(value)
	case addr == 0xFF06:
		b.tm.WriteTMA(value)
	case addr == 0xFF07:
		b.tm.WriteTAC(value)
	case addr == 0xFF0F:
		b.ic.IF = value & 0x1F
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.dma = value
		b.dmaActive = true
		b.dmaSrc = uint16(value) << 8
		b.dmaIndex = 0
	case addr == 0xFF50:
		// Any nonzero write latches the boot ROM overlay off permanently.
		if value != 0x00 {
			b.bootOverlayEnabled = false
		}
	case addr == 0xFFFF:
		b.ic.IE = value
	}
}

func (b *Bus) readJoyp() byte {
	res := byte(0xC0 | (b.joypSelect & 0x30) | 0x0F)
	if b.joypSelect&0x10 == 0 {
		if b.joypad&JoypRight != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			res &^= 0x08
		}
	}
	if b.joypSelect&0x20 == 0 {
		if b.joypad&JoypA != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			res &^= 0x08
		}
	}
	return res
}

// Joypad button bitmasks for SetJoypadState. Set bits mean "pressed".
const (
	JoypRight     = 1 << 0
	JoypLeft      = 1 << 1
	JoypUp        = 1 << 2
	JoypDown      = 1 << 3
	JoypA         = 1 << 4
	JoypB         = 1 << 5
	JoypSelectBtn = 1 << 6
	JoypStart     = 1 << 7
)

// SetJoypadState sets which buttons are currently pressed.
func (b *Bus) SetJoypadState(mask byte) {
	b.joypad = mask
	b.updateJoypadIRQ()
}

// SetSerialWriter sets a sink that receives bytes written via the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

func (b *Bus) updateJoypadIRQ() {
	newLower := byte(0x0F)
	if b.joypSelect&0x10 == 0 {
		if b.joypad&JoypRight != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			newLower &^= 0x08
		}
	}
	if b.joypSelect&0x20 == 0 {
		if b.joypad&JoypA != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			newLower &^= 0x08
		}
	}
	if b.joypLower4&^newLower != 0 {
		b.ic.Request(interrupt.Joypad)
	}
	b.joypLower4 = newLower
}

// Tick advances the timer, PPU, and OAM DMA by cycles T-cycles.
func (b *Bus) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		b.tm.Step(1, b.ic)
		b.ppu.Tick(1)
		if b.dmaActive {
			if b.dmaIndex < 0xA0 {
				v := b.Read(b.dmaSrc + uint16(b.dmaIndex))
				b.ppu.CPUWrite(0xFE00+uint16(b.dmaIndex), v)
				b.dmaIndex++
			}
			if b.dmaIndex >= 0xA0 {
				b.dmaActive = false
			}
		}
	}
}

// --- Save/Load state ---

type busState struct {
	WRAM               [0x2000]byte
	HRAM               [0x7F]byte
	IE, IF             byte
	IME                bool
	JoypSel            byte
	Joypad             byte
	JoypL4             byte
	SB, SC             byte
	DMA                byte
	DMAActive          bool
	DMASrc             uint16
	DMAIdx             int
	BootOverlayEnabled bool
}

// SaveState serializes WRAM/HRAM/IO/interrupt state plus the timer, PPU and
// cartridge's own states, in that order, via encoding/gob.
func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	_ = enc.Encode(busState{
		WRAM: b.wram, HRAM: b.hram,
		IE: b.ic.IE, IF: b.ic.IF, IME: b.ic.IME,
		JoypSel: b.joypSelect, Joypad: b.joypad, JoypL4: b.joypLower4,
		SB: b.sb, SC: b.sc,
		DMA: b.dma, DMAActive: b.dmaActive, DMASrc: b.dmaSrc, DMAIdx: b.dmaIndex,
		BootOverlayEnabled: b.bootOverlayEnabled,
	})
	_ = enc.Encode(b.tm.SaveState())
	_ = enc.Encode(b.ppu.SaveState())
	_ = enc.Encode(b.cart.SaveState())
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s busState
	if err := dec.Decode(&s); err != nil {
		return
	}
	b.wram, b.hram = s.WRAM, s.HRAM
	b.ic.IE, b.ic.IF, b.ic.IME = s.IE, s.IF, s.IME
	b.joypSelect, b.joypad, b.joypLower4 = s.JoypSel, s.Joypad, s.JoypL4
	b.sb, b.sc = s.SB, s.SC
	b.dma, b.dmaActive, b.dmaSrc, b.dmaIndex = s.DMA, s.DMAActive, s.DMASrc, s.DMAIdx
	b.bootOverlayEnabled = s.BootOverlayEnabled

	var ts []byte
	if err := dec.Decode(&ts); err == nil {
		b.tm.LoadState(ts)
	}
	var ps []byte
	if err := dec.Decode(&ps); err == nil {
		b.ppu.LoadState(ps)
	}
	var cs []byte
	if err := dec.Decode(&cs); err == nil {
		b.cart.LoadState(cs)
	}
}
