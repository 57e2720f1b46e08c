package common

import (
	"strings"

	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
)

const (
	RightGlyph = "ooooooo=>"
	LeftGlyph  = "<=ooooooo"

	// ElementWidth is the number of columns the element occupies.
	ElementWidth = len(RightGlyph)
)

var Blank = strings.Repeat(" ", ElementWidth)

// Glyph returns the element drawn facing d.
func Glyph(d state.Direction) string {
	if d == state.Left {
		return LeftGlyph
	}
	return RightGlyph
}

const (
	Black  = "\u001b[30m"
	Red    = "\u001b[31m"
	Green  = "\u001b[32m"
	Yellow = "\u001b[33m"
	Cyan   = "\u001b[36m"
	White  = "\u001b[37m"

	Grey         = "\u001b[90m"
	BrightRed    = "\u001b[91m"
	BrightGreen  = "\u001b[92m"
	BrightYellow = "\u001b[93m"
	BrightWhite  = "\u001b[97m"

	Bold  = "\u001b[1m"
	Reset = "\u001b[0m"
)

const (
	ClearEnd  = "\u001b[0K" // clears from cursor to end of line
	ClearLine = "\u001b[2K" // clears entire line
)
