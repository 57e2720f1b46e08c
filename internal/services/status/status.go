package status

import (
	"fmt"

	"github.td.teradata.com/sandbox/bouncer/internal/services/common"
	"github.td.teradata.com/sandbox/bouncer/internal/services/timer"
)

const (
	slow   = common.Green
	medium = common.Yellow
	fast   = common.BrightRed
	key    = common.Cyan
)

// KeyWidth is the width of the last key field, drawn flush right.
const KeyWidth = len("Last char: x")

// SpeedText is the plain status line for a speed.
func SpeedText(speed int) string {
	return fmt.Sprintf("Current speed: %d (chr/s)", speed)
}

// KeyText is the plain last key field. Unprintable keys show as '?'.
func KeyText(k byte) string {
	switch {
	case k == 0:
		return "Last char:  "
	case k < ' ' || k > '~':
		return "Last char: ?"
	}
	return fmt.Sprintf("Last char: %c", k)
}

// KeyColumn is the zero based column of the last key field.
func KeyColumn(width int) int {
	col := width - KeyWidth
	if col < 0 {
		col = 0
	}
	return col
}

// SpeedBlock colours the speed by how close the period is to the bounds.
func SpeedBlock(speed int) string {
	colour := medium
	switch period := timer.PeriodMs(speed); {
	case period > 100:
		colour = slow
	case period <= 10:
		colour = fast
	}
	return fmt.Sprintf("Current speed: %s%d%s (chr/s)%s", colour, speed, common.Reset, common.ClearEnd)
}

// KeyBlock is KeyText in colour.
func KeyBlock(k byte) string {
	return fmt.Sprintf("%s%s%s", key, KeyText(k), common.Reset)
}
