package render

import "image/color"

type Theme struct {
	Canvas       color.RGBA
	Page         color.RGBA
	Border       color.RGBA
	Accent       color.RGBA
	Shadow       color.RGBA
	Broken       color.RGBA
	HandleDp     int
	OutlineDp    int
	PageMarginDp int
}

func DefaultTheme() Theme {
	return Theme{
		Canvas:       color.RGBA{0xE2, 0xE7, 0xEF, 0xFF},
		Page:         color.RGBA{0xFF, 0xFF, 0xFF, 0xFF},
		Border:       color.RGBA{0xB2, 0xBF, 0xD0, 0xFF},
		Accent:       color.RGBA{0x2B, 0x57, 0x9A, 0xFF},
		Shadow:       color.RGBA{0xC8, 0xCF, 0xDB, 0xFF},
		Broken:       color.RGBA{0xA3, 0x15, 0x15, 0xFF},
		HandleDp:     8,
		OutlineDp:    2,
		PageMarginDp: 12,
	}
}
