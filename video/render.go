package video

import "github.com/kestrelgb/dmgcore/bit"

// renderScanline draws the background, window, and sprite layers for the
// current line (p.ly) into the framebuffer, applying BGP/OBP0/OBP1 so the
// framebuffer stores final 2-bit shade indices.
func (p *PPU) renderScanline() {
	line := int(p.ly)
	if line >= Height {
		return
	}

	p.drawBackground(line)
	p.drawWindow(line)
	p.drawSprites(line)
}

func (p *PPU) drawBackground(line int) {
	if p.lcdc&(1<<lcdcBGEnable) == 0 {
		color0 := applyPalette(p.bgp, 0)
		for x := 0; x < Width; x++ {
			p.fb.Set(x, line, color0)
			p.bgIndex[x] = 0
		}
		return
	}

	tileData, tileMap := p.bgWindowAddressing(p.lcdc&(1<<lcdcBGTileMap) != 0)

	scrolledY := (line + int(p.scy)) & 0xFF
	tileRow := (scrolledY / 8) * 32
	pixelY2 := (scrolledY % 8) * 2

	for x := 0; x < Width; x++ {
		scrolledX := (x + int(p.scx)) & 0xFF
		tileCol := scrolledX / 8
		tileIndex := p.vram[tileMap+uint16(tileRow+tileCol)-0x8000]

		low, high := p.tileRowBytes(tileData, tileIndex, pixelY2)
		bitIdx := uint8(7 - (scrolledX % 8))
		pixel := pixelValue(low, high, bitIdx)

		color := applyPalette(p.bgp, pixel)
		p.fb.Set(x, line, color)
		p.bgIndex[x] = pixel
	}
}

func (p *PPU) drawWindow(line int) {
	if p.lcdc&(1<<lcdcWindowEnable) == 0 {
		return
	}
	wx := int(p.wx) - 7
	wy := int(p.wy)
	if wy > line || p.windowLine > Height {
		return
	}

	tileData, tileMap := p.bgWindowAddressing(p.lcdc&(1<<lcdcWindowTileMap) != 0)

	tileRow := (p.windowLine / 8) * 32
	pixelY2 := (p.windowLine % 8) * 2
	drewAny := false

	for screenX := 0; screenX < Width; screenX++ {
		x := screenX - wx
		if x < 0 {
			continue
		}
		tileCol := x / 8
		tileIndex := p.vram[tileMap+uint16(tileRow+tileCol)-0x8000]

		low, high := p.tileRowBytes(tileData, tileIndex, pixelY2)
		bitIdx := uint8(7 - (x % 8))
		pixel := pixelValue(low, high, bitIdx)

		color := applyPalette(p.bgp, pixel)
		p.fb.Set(screenX, line, color)
		p.bgIndex[screenX] = pixel
		drewAny = true
	}
	if drewAny {
		p.windowLine++
	}
}

func (p *PPU) drawSprites(line int) {
	if p.lcdc&(1<<lcdcObjEnable) == 0 {
		return
	}

	spriteHeight := 8
	if p.lcdc&(1<<lcdcObjSize) != 0 {
		spriteHeight = 16
	}

	var onLine []int
	for i := 0; i < 40 && len(onLine) < 10; i++ {
		y := int(p.oam[i*4]) - 16
		if y <= line && line < y+spriteHeight {
			onLine = append(onLine, i)
		}
	}

	p.prio.clear()
	for _, sprite := range onLine {
		x := int(p.oam[sprite*4+1]) - 8
		for px := 0; px < 8; px++ {
			p.prio.tryClaim(x+px, sprite, x)
		}
	}

	for _, sprite := range onLine {
		base := sprite * 4
		y := int(p.oam[base]) - 16
		x := int(p.oam[base+1]) - 8
		tile := p.oam[base+2]
		flags := p.oam[base+3]

		if spriteHeight == 16 {
			tile &^= 0x01
		}

		flipX := bit.IsSet(5, flags)
		flipY := bit.IsSet(6, flags)
		aboveBG := !bit.IsSet(7, flags)
		palette := p.obp0
		if bit.IsSet(4, flags) {
			palette = p.obp1
		}

		row := line - y
		if flipY {
			row = spriteHeight - 1 - row
		}

		tileAddr := 0x8000 + uint16(tile)*16 + uint16(row*2)
		low := p.vram[tileAddr-0x8000]
		high := p.vram[tileAddr+1-0x8000]

		for px := 0; px < 8; px++ {
			bufferX := x + px
			if p.prio.ownerOf(bufferX) != sprite {
				continue
			}
			bitIdx := uint8(7 - px)
			if flipX {
				bitIdx = uint8(px)
			}
			pixel := pixelValue(low, high, bitIdx)
			if pixel == 0 {
				continue
			}
			if !aboveBG && p.bgIndex[bufferX] != 0 {
				continue
			}
			p.fb.Set(bufferX, line, applyPalette(palette, pixel))
		}
	}
}

// bgWindowAddressing resolves the tile-data and tile-map base addresses for
// the background or window layer given the relevant LCDC bits.
func (p *PPU) bgWindowAddressing(useTileMapOne bool) (tileData, tileMap uint16) {
	tileData = 0x9000
	if p.lcdc&(1<<lcdcTileDataSelect) != 0 {
		tileData = 0x8000
	}
	tileMap = 0x9800
	if useTileMapOne {
		tileMap = 0x9C00
	}
	return
}

func (p *PPU) tileRowBytes(tileDataBase uint16, tileIndex uint8, pixelY2 int) (low, high uint8) {
	var addr uint16
	if tileDataBase == 0x8000 {
		addr = tileDataBase + uint16(tileIndex)*16 + uint16(pixelY2)
	} else {
		addr = uint16(int(tileDataBase) + int(int8(tileIndex))*16 + pixelY2)
	}
	return p.vram[addr-0x8000], p.vram[addr+1-0x8000]
}

func pixelValue(low, high uint8, bitIdx uint8) uint8 {
	var pixel uint8
	if bit.IsSet(bitIdx, low) {
		pixel |= 1
	}
	if bit.IsSet(bitIdx, high) {
		pixel |= 2
	}
	return pixel
}

func applyPalette(palette uint8, colorIndex uint8) uint8 {
	return (palette >> (colorIndex * 2)) & 0x03
}
