// Package ppu implements the DMG pixel-processing unit: the OAM/VRAM/
// HBlank/VBlank mode state machine, its registers, VRAM/OAM CPU-access
// gating, and a background/window/sprite scanline renderer driven by the
// fetcher and compositing helpers in fetcher.go, scanline.go and sprite.go.
package ppu

import (
	"bytes"
	"encoding/gob"
)

const (
	oamCycles    = 80
	vramCycles   = 172
	hblankCycles = 204
	lineCycles   = oamCycles + vramCycles + hblankCycles // 456

	screenW = 160
	screenH = 144
)

// STAT enable bits (bits 3-6) and mode bits (0-1).
const (
	statHBlankInt = 1 << 3
	statVBlankInt = 1 << 4
	statOAMInt    = 1 << 5
	statLYCInt    = 1 << 6
	statLYCFlag   = 1 << 2
)

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT).
type InterruptRequester func(bit int)

// LineRegs captures the registers that govern rendering of one scanline,
// snapshotted at the start of that line's pixel-transfer period since real
// hardware locks SCX/SCY/WX/WY/LCDC for the duration of the line.
type LineRegs struct {
	LCDC, SCX, SCY, WX, WY byte
	WinLine                int
}

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, and scanline timing, and
// renders background, window, and sprite layers into a 160x144 back buffer.
type PPU struct {
	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F: 40 sprites * 4 bytes

	lcdc byte
	stat byte // mode bits 0-1, coincidence flag bit2, enables bits 3-6
	scy  byte
	scx  byte
	ly   byte
	lyc  byte
	bgp  byte
	obp0 byte
	obp1 byte
	wy   byte
	wx   byte

	dot int // dots elapsed within the current line (0..455)

	winLine  int
	lineRegs [screenH]LineRegs

	buffer [screenW * screenH]byte // one shade (0-3) per pixel, row-major

	req InterruptRequester
}

// New returns a PPU with the LCD off, matching cold-boot register state.
func New(req InterruptRequester) *PPU { return &PPU{req: req} }

// BackBuffer returns the rendered frame, row-major, one byte per pixel
// holding a shade in 0..3 after BGP/OBPn palette lookup.
func (p *PPU) BackBuffer() *[screenW * screenH]byte { return &p.buffer }

// LineRegs returns the register snapshot captured when line y entered
// pixel transfer, for introspection and testing.
func (p *PPU) LineRegs(y int) LineRegs {
	if y < 0 || y >= screenH {
		return LineRegs{}
	}
	return p.lineRegs[y]
}

func (p *PPU) mode() byte { return p.stat & 0x03 }

func (p *PPU) lcdEnabled() bool { return p.lcdc&0x80 != 0 }

// CPURead returns bytes for VRAM, OAM, and PPU IO registers; VRAM reads
// during mode 3 and OAM reads during modes 2/3 return 0xFF, matching the
// CPU-visible access gating (the renderer itself reads past this gate).
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.mode() == 3 {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.mode()
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO registers.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.mode() == 3 {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.mode()
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if prev&0x80 != 0 && value&0x80 == 0 {
			p.ly = 0
			p.dot = 0
			p.setMode(0)
		} else if prev&0x80 == 0 && value&0x80 != 0 {
			p.ly = 0
			p.dot = 0
			p.winLine = 0
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		p.ly = 0
		p.dot = 0
		p.updateLYC()
		if p.lcdEnabled() {
			p.setMode(2)
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// Tick advances the PPU by cycles dots, raising interrupts through req and
// rendering each scanline into the back buffer as it leaves pixel transfer.
func (p *PPU) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		if !p.lcdEnabled() {
			continue
		}
		p.dot++

		var want byte
		switch {
		case p.ly >= screenH:
			want = 1
		case p.dot < oamCycles:
			want = 2
		case p.dot < oamCycles+vramCycles:
			want = 3
		default:
			want = 0
		}
		if want == 3 && p.mode() == 2 {
			p.captureLineRegs(int(p.ly))
		}
		if want == 0 && p.mode() == 3 {
			p.renderLine(p.ly)
			if p.windowVisible(p.ly) {
				p.winLine++
			}
		}
		p.setMode(want)

		if p.dot >= lineCycles {
			p.dot = 0
			p.ly++
			if p.ly == screenH {
				p.reqBit(0) // VBlank
				if p.stat&statVBlankInt != 0 {
					p.reqBit(1)
				}
			} else if p.ly > 153 {
				p.ly = 0
				p.winLine = 0
			}
			p.updateLYC()
			if p.ly >= screenH {
				p.setMode(1)
			} else {
				p.setMode(2)
			}
		}
	}
}

func (p *PPU) setMode(mode byte) {
	prev := p.mode()
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case 0:
		if p.stat&statHBlankInt != 0 {
			p.reqBit(1)
		}
	case 2:
		if p.stat&statOAMInt != 0 {
			p.reqBit(1)
		}
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= statLYCFlag
		if p.stat&statLYCInt != 0 {
			p.reqBit(1)
		}
	} else {
		p.stat &^= statLYCFlag
	}
}

func (p *PPU) reqBit(bit int) {
	if p.req != nil {
		p.req(bit)
	}
}

// windowVisible reports whether the window layer draws on line ly given
// the current WY/WX/LCDC state.
func (p *PPU) windowVisible(ly byte) bool {
	return p.lcdc&0x20 != 0 && p.wy <= ly && p.wx < 167
}

// captureLineRegs snapshots the registers governing rendering of line y,
// recording the pre-render window line counter.
func (p *PPU) captureLineRegs(y int) {
	if y < 0 || y >= screenH {
		return
	}
	p.lineRegs[y] = LineRegs{
		LCDC: p.lcdc, SCX: p.scx, SCY: p.scy, WX: p.wx, WY: p.wy,
		WinLine: p.winLine,
	}
}

// renderLine composes background, window, and sprite pixels for line ly
// into the back buffer using the registers captured for that line; window
// visibility and the BGP/OBP palettes are read from the live registers.
func (p *PPU) renderLine(ly byte) {
	lr := p.lineRegs[ly]
	row := int(ly) * screenW

	if lr.LCDC&0x01 == 0 {
		for x := 0; x < screenW; x++ {
			p.buffer[row+x] = 0
		}
		return
	}

	bgMap := uint16(0x9800)
	if lr.LCDC&0x08 != 0 {
		bgMap = 0x9C00
	}
	tileData8000 := lr.LCDC&0x10 != 0
	bgci := RenderBGScanlineUsingFetcher(p, bgMap, tileData8000, lr.SCX, lr.SCY, ly)

	if p.windowVisible(ly) {
		winMap := uint16(0x9800)
		if lr.LCDC&0x40 != 0 {
			winMap = 0x9C00
		}
		winX := int(lr.WX) - 7
		winci := RenderWindowScanlineUsingFetcher(p, winMap, tileData8000, winX, byte(lr.WinLine))
		start := winX
		if start < 0 {
			start = 0
		}
		for x := start; x < screenW; x++ {
			bgci[x] = winci[x]
		}
	}

	for x := 0; x < screenW; x++ {
		p.buffer[row+x] = decodePalette(p.bgp, bgci[x])
	}

	if lr.LCDC&0x02 != 0 {
		tall := lr.LCDC&0x04 != 0
		sprites := spritesOnLine(p.oam, ly, tall)
		spci, spPal, behindBG := composeSpritesFull(p, sprites, ly, tall)
		for x := 0; x < screenW; x++ {
			if spci[x] == 0 {
				continue
			}
			if behindBG[x] && bgci[x] != 0 {
				continue
			}
			pal := p.obp0
			if spPal[x] {
				pal = p.obp1
			}
			p.buffer[row+x] = decodePalette(pal, spci[x])
		}
	}
}

func decodePalette(pal, ci byte) byte {
	return (pal >> (ci * 2)) & 0x03
}

// Read implements VRAMReader for the PPU's own internal renderer, which
// bypasses the CPU-facing mode gating in CPURead/CPUWrite.
func (p *PPU) Read(addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	return p.vram[addr-0x8000]
}

// --- register accessors used by the renderer, bus, and debug tooling ---

func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }

type ppuState struct {
	VRAM                          [0x2000]byte
	OAM                           [0xA0]byte
	LCDC, STAT, SCY, SCX, LY, LYC byte
	BGP, OBP0, OBP1, WY, WX       byte
	Dot, WinLine                  int
}

// SaveState serializes VRAM, OAM, registers, and timing state. The back
// buffer is not persisted: it is fully regenerated by the next rendered
// line after a restore.
func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(ppuState{
		VRAM: p.vram, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1, WY: p.wy, WX: p.wx,
		Dot: p.dot, WinLine: p.winLine,
	})
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) {
	var s ppuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	p.vram, p.oam = s.VRAM, s.OAM
	p.lcdc, p.stat, p.scy, p.scx, p.ly, p.lyc = s.LCDC, s.STAT, s.SCY, s.SCX, s.LY, s.LYC
	p.bgp, p.obp0, p.obp1, p.wy, p.wx = s.BGP, s.OBP0, s.OBP1, s.WY, s.WX
	p.dot, p.winLine = s.Dot, s.WinLine
}
