// Package gameboy wires the CPU, bus, cartridge, and boot ROM into a single
// runnable unit: the same top-level role original_source/src/gameboy.rs
// plays over its own cpu/interconnect/cartridge/bootrom modules.
package gameboy

import (
	"errors"

	"github.com/dmgcore/gbcore/internal/bus"
	"github.com/dmgcore/gbcore/internal/cart"
	"github.com/dmgcore/gbcore/internal/cpu"
)

// CPUHz is the DMG's fixed clock rate in Hz.
const CPUHz = 4_194_304

const (
	ScreenW = 160
	ScreenH = 144
)

// Buttons is the joypad state for one input poll.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.Right {
		m |= bus.JoypRight
	}
	if b.Left {
		m |= bus.JoypLeft
	}
	if b.Up {
		m |= bus.JoypUp
	}
	if b.Down {
		m |= bus.JoypDown
	}
	if b.A {
		m |= bus.JoypA
	}
	if b.B {
		m |= bus.JoypB
	}
	if b.Select {
		m |= bus.JoypSelectBtn
	}
	if b.Start {
		m |= bus.JoypStart
	}
	return m
}

// GameBoy is a complete, runnable DMG: one cartridge, one bus, one CPU.
type GameBoy struct {
	cpu *cpu.CPU
	bus *bus.Bus
}

// New constructs a GameBoy around c. When bootROM is non-empty, execution
// starts at 0x0000 with the boot overlay mapped in; otherwise the CPU is
// seeded with the standard DMG post-boot register state and starts at
// 0x0100, the cartridge entry point.
func New(c cart.Cartridge, bootROM []byte) (*GameBoy, error) {
	if c == nil {
		return nil, errors.New("gameboy: cartridge is required")
	}
	b := bus.NewWithCartridge(c)
	gb := &GameBoy{bus: b, cpu: cpu.New(b)}
	if len(bootROM) > 0 {
		if err := b.SetBootROM(bootROM); err != nil {
			return nil, err
		}
	} else {
		gb.cpu.ResetNoBoot()
		gb.cpu.SetPC(0x0100)
	}
	return gb, nil
}

// Run executes instructions until more than timeslice T-cycles have elapsed,
// and returns the actual number of cycles consumed (which may overshoot
// timeslice by up to one instruction's cost, matching the original's loop).
func (g *GameBoy) Run(timeslice int) int {
	ticks := 0
	for {
		ticks += g.cpu.Step()
		if ticks > timeslice {
			return ticks
		}
	}
}

// RunFrame advances by one DMG video frame's worth of cycles (70224
// T-cycles at 4.194304 MHz, ~59.7275 Hz), overshooting by part of one
// instruction as Run does.
func (g *GameBoy) RunFrame() int {
	const cyclesPerFrame = 70224
	return g.Run(cyclesPerFrame)
}

// BackBuffer returns the rendered frame, one shade (0-3) per pixel,
// row-major 160x144, after BGP/OBPn palette lookup.
func (g *GameBoy) BackBuffer() *[ScreenW * ScreenH]byte {
	return g.bus.PPU().BackBuffer()
}

// dmgPalette maps a shade index to an RGBA color approximating the
// original DMG LCD's green-tinted display, lightest shade first.
var dmgPalette = [4][4]byte{
	{0xE0, 0xF8, 0xD0, 0xFF},
	{0x88, 0xC0, 0x70, 0xFF},
	{0x34, 0x68, 0x56, 0xFF},
	{0x08, 0x18, 0x20, 0xFF},
}

// Framebuffer renders the back buffer as packed RGBA bytes (160*144*4),
// ready for an ebiten.Image.WritePixels call.
func (g *GameBoy) Framebuffer() []byte {
	shades := g.bus.PPU().BackBuffer()
	out := make([]byte, ScreenW*ScreenH*4)
	for i, ci := range shades {
		rgba := dmgPalette[ci&0x03]
		copy(out[i*4:i*4+4], rgba[:])
	}
	return out
}

// SetButtons updates the joypad state read by the running program.
func (g *GameBoy) SetButtons(b Buttons) { g.bus.SetJoypadState(b.mask()) }

// ResetPostBoot reseeds the CPU with DMG post-boot defaults and restarts
// execution at the cartridge entry point, skipping the boot overlay.
func (g *GameBoy) ResetPostBoot() {
	g.cpu.ResetNoBoot()
	g.cpu.SetPC(0x0100)
}

// ResetWithBoot reloads bootROM and restarts execution at 0x0000 through
// the boot overlay.
func (g *GameBoy) ResetWithBoot(bootROM []byte) error {
	if err := g.bus.SetBootROM(bootROM); err != nil {
		return err
	}
	g.cpu.SetPC(0x0000)
	return nil
}

// SaveState serializes the bus, PPU, timer and cartridge state (not the CPU
// registers) for later restoration via LoadState.
func (g *GameBoy) SaveState() []byte { return g.bus.SaveState() }

// LoadState restores a snapshot produced by SaveState. CPU registers are
// not part of the snapshot; callers that persist across process restarts
// should pair this with their own CPU register save, or simply restart
// execution at a known point.
func (g *GameBoy) LoadState(data []byte) { g.bus.LoadState(data) }

// SaveRAM returns the cartridge's external RAM contents, or nil if the
// cartridge has none worth persisting.
func (g *GameBoy) SaveRAM() []byte {
	if bb, ok := g.bus.Cart().(cart.BatteryBacked); ok {
		return bb.SaveRAM()
	}
	return nil
}

// LoadRAM restores previously-saved external RAM contents, if the
// cartridge supports it.
func (g *GameBoy) LoadRAM(data []byte) {
	if bb, ok := g.bus.Cart().(cart.BatteryBacked); ok {
		bb.LoadRAM(data)
	}
}
