// Package cart implements the cartridge: ROM storage, header parsing, and
// MBC1 bank switching. Per spec, MBCs beyond MBC1 are out of scope; any
// other cartridge type falls back to a plain ROM-only mapping.
package cart

import "fmt"

// Cartridge is what the bus needs to route 0x0000-0x7FFF reads, bank
// control writes in that same range, and 0xA000-0xBFFF external RAM
// accesses.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000-0x7FFF) and external RAM (0xA000-0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000-0x7FFF) and external RAM writes (0xA000-0xBFFF).
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize internal banking registers and external RAM for save states.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is implemented by cartridges that carry persistable
// external RAM (save-RAM persistence across runs is a host/CLI concern,
// not the core's).
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// New validates rom and constructs the Cartridge implementation indicated
// by its header. A ROM shorter than 32 KiB, or one whose length is not a
// power of two, is a configuration error the caller cannot recover from
// within the core.
func New(rom []byte) (Cartridge, error) {
	if len(rom) < 32*1024 {
		return nil, fmt.Errorf("cart: ROM is %d bytes, minimum is 32 KiB", len(rom))
	}
	if len(rom)&(len(rom)-1) != 0 {
		return nil, fmt.Errorf("cart: ROM length %d is not a power of two", len(rom))
	}

	h, err := ParseHeader(rom)
	if err != nil {
		return nil, err
	}

	switch h.CartType {
	case 0x00:
		return NewROMOnly(rom), nil
	case 0x01, 0x02, 0x03: // MBC1 variants; RAM/RAM+battery transparent here
		return NewMBC1(rom, h.RAMSizeBytes), nil
	default:
		// Unsupported MBC types (beyond MBC1) fall back to a ROM-only mapping
		// rather than failing construction, so that homebrew/no-MBC-banking
		// ROMs using an unrecognized type byte still run.
		return NewROMOnly(rom), nil
	}
}
