package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC1 implements ROM banking up to 2 MiB and RAM banking up to 32 KiB.
//
// The 2-bit secondary register (set by writes to 0x4000-0x5FFF) is
// context-sensitive on real hardware: in ROM banking mode (mode_select
// false) it extends the ROM bank number with two high bits; in RAM banking
// mode (mode_select true) it instead selects the RAM bank. See spec.md §9
// for why this differs from a naive reading of the source this was ported
// from, which conflated the two cases.
type MBC1 struct {
	rom []byte
	ram []byte

	romBankLow5 byte // lower 5 bits of the ROM bank number; 0 is remapped to 1
	secondary   byte // 2-bit register: ROM-bank high bits (mode 0) or RAM bank (mode 1)
	ramEnabled  bool
	modeSelect  bool // false: ROM banking mode; true: RAM banking mode
}

// NewMBC1 constructs an MBC1 cartridge over rom with ramSize bytes of
// external RAM (0 for none).
func NewMBC1(rom []byte, ramSize int) *MBC1 {
	m := &MBC1{rom: rom, romBankLow5: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		bank := 0
		if m.modeSelect {
			bank = int(m.secondary&0x03) << 5
		}
		return m.romByte(bank, int(addr))
	case addr < 0x8000:
		bank := int(m.effectiveROMBank())
		return m.romByte(bank, int(addr)-0x4000)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		off := m.ramOffset(addr)
		if off < 0 || off >= len(m.ram) {
			return 0xFF
		}
		return m.ram[off]
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		// Any value whose low nibble is 0x0A enables RAM, not strictly 0x0A.
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		bank := value & 0x1F
		if bank == 0 {
			bank = 1
		}
		m.romBankLow5 = bank
	case addr < 0x6000:
		m.secondary = value & 0x03
	case addr < 0x8000:
		m.modeSelect = value&0x01 != 0
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		off := m.ramOffset(addr)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

// effectiveROMBank combines the low-5-bit register with the secondary
// register's two bits, only in ROM banking mode. Zero-mapping to 1 already
// happened on write, so the forbidden banks 0x20/0x40/0x60 never arise
// here: their low 5 bits are always remapped to 1 before the high bits are
// OR'd in.
func (m *MBC1) effectiveROMBank() byte {
	if m.modeSelect {
		return m.romBankLow5
	}
	return m.romBankLow5 | (m.secondary&0x03)<<5
}

func (m *MBC1) ramOffset(addr uint16) int {
	bank := 0
	if m.modeSelect {
		bank = int(m.secondary & 0x03)
	}
	return bank*0x2000 + int(addr-0xA000)
}

func (m *MBC1) romByte(bank, offset int) byte {
	idx := bank*0x4000 + offset
	if idx < 0 || idx >= len(m.rom) {
		return 0xFF
	}
	return m.rom[idx]
}

func (m *MBC1) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC1) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}

type mbc1State struct {
	RAM                    []byte
	RomBankLow5, Secondary byte
	RamEnabled, ModeSelect bool
}

func (m *MBC1) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc1State{
		RAM: m.ram, RomBankLow5: m.romBankLow5, Secondary: m.secondary,
		RamEnabled: m.ramEnabled, ModeSelect: m.modeSelect,
	})
	return buf.Bytes()
}

func (m *MBC1) LoadState(data []byte) {
	var s mbc1State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(s.RAM) == len(m.ram) {
		copy(m.ram, s.RAM)
	}
	m.romBankLow5, m.secondary = s.RomBankLow5, s.Secondary
	m.ramEnabled, m.modeSelect = s.RamEnabled, s.ModeSelect
}
