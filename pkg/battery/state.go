package battery

import (
	"fmt"
	"image/color"
)

// DisplayState is the glyph drawn next to a device icon and its color.
type DisplayState struct {
	Glyph string
	Color color.RGBA
}

// Hex returns the color as #rrggbb.
func (s DisplayState) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", s.Color.R, s.Color.G, s.Color.B)
}

var (
	ColorRed    = color.RGBA{R: 0xff, G: 0x12, B: 0x12, A: 0xff}
	ColorOrange = color.RGBA{R: 0xff, G: 0x9f, B: 0x00, A: 0xff}
	ColorYellow = color.RGBA{R: 0xff, G: 0xf5, B: 0x2a, A: 0xff}
	ColorGreen  = color.RGBA{R: 0x23, G: 0xfd, B: 0x71, A: 0xff}
)

const (
	glyphDot      = "●"
	glyphSquare   = "■"
	glyphQuestion = "?"
)

var budsStates = [...]DisplayState{
	BudsDisconnected: {Glyph: glyphDot, Color: ColorRed},
	BudsWearing:      {Glyph: glyphDot, Color: ColorYellow},
	BudsIdle:         {Glyph: glyphDot, Color: ColorOrange},
	BudsInCase:       {Glyph: glyphDot, Color: ColorGreen},
	BudsInClosedCase: {Glyph: glyphDot, Color: ColorGreen},
}

var peripheralStates = [...]DisplayState{
	PeripheralUnknown:      {Glyph: glyphQuestion, Color: ColorRed},
	PeripheralCharging:     {Glyph: glyphDot, Color: ColorGreen},
	PeripheralCharged:      {Glyph: glyphSquare, Color: ColorGreen},
	PeripheralDischarging:  {Glyph: glyphDot, Color: ColorYellow},
	PeripheralDisconnected: {Glyph: glyphDot, Color: ColorRed},
}

// Resolve maps a status code of the given family to its display state.
// It returns nil when the code is absent or outside the family's table.
func Resolve(f Family, code *int) *DisplayState {
	if code == nil {
		return nil
	}

	var table []DisplayState
	switch f {
	case FamilyBuds:
		table = budsStates[:]
	case FamilyPeripheral:
		table = peripheralStates[:]
	default:
		return nil
	}

	if *code < 0 || *code >= len(table) {
		return nil
	}
	s := table[*code]
	return &s
}

// StatusName returns the human-readable name of a status code.
func StatusName(f Family, code *int) string {
	if code == nil {
		return "-"
	}
	switch f {
	case FamilyBuds:
		return BudsStatus(*code).String()
	case FamilyPeripheral:
		return PeripheralStatus(*code).String()
	default:
		return "Unknown"
	}
}
