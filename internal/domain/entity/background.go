package entity

// Background selects how the output canvas is filled before the skeleton is drawn.
type Background int

const (
	// BackgroundPlain is pure black. Any unrecognised style name maps here.
	BackgroundPlain Background = iota
	BackgroundGrid
	BackgroundSolid
	BackgroundGradient
)

// ParseBackground maps a style name to a Background. Matching is exact;
// unknown or empty names fall back to BackgroundPlain.
func ParseBackground(name string) Background {
	switch name {
	case "grid":
		return BackgroundGrid
	case "solid":
		return BackgroundSolid
	case "gradient":
		return BackgroundGradient
	default:
		return BackgroundPlain
	}
}

func (b Background) String() string {
	switch b {
	case BackgroundGrid:
		return "grid"
	case BackgroundSolid:
		return "solid"
	case BackgroundGradient:
		return "gradient"
	default:
		return "plain"
	}
}
