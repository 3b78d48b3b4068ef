package swipe

import (
	"math"

	"github.com/m-mizutani/moltender/pkg/model"
)

// DefaultThreshold is the horizontal displacement a drag must exceed to commit
const DefaultThreshold = 100.0

const (
	rotationDivisor = 10.0
	fadeDistance    = 300.0
	indicatorOnset  = 50.0
	indicatorFullAt = 100.0
)

// Visual is the presentational state of a dragged card
type Visual struct {
	OffsetX     float64
	Rotation    float64 // degrees
	Opacity     float64
	LikeOpacity float64
	PassOpacity float64
}

// RestVisual is the card at its origin
var RestVisual = Visual{Opacity: 1}

// Gesture tracks one horizontal drag and turns it into a decision on release
type Gesture struct {
	threshold float64
	active    bool
	startX    float64
	currentX  float64
}

func NewGesture(threshold float64) *Gesture {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gesture{threshold: threshold}
}

// Threshold returns the commit boundary
func (g *Gesture) Threshold() float64 {
	return g.threshold
}

// Active reports whether a drag is in progress
func (g *Gesture) Active() bool {
	return g.active
}

// Start begins a drag at x
func (g *Gesture) Start(x float64) {
	g.active = true
	g.startX = x
	g.currentX = x
}

// Move updates the drag to x and returns how the card should look
func (g *Gesture) Move(x float64) Visual {
	if !g.active {
		return RestVisual
	}
	g.currentX = x
	return VisualFor(g.currentX - g.startX)
}

// End releases the drag. A displacement beyond the threshold commits a decision,
// anything else snaps the card back without one.
func (g *Gesture) End() (model.Direction, bool) {
	if !g.active {
		return "", false
	}
	g.active = false
	return Finalize(g.currentX-g.startX, g.threshold)
}

// Cancel drops the drag without a decision
func (g *Gesture) Cancel() {
	g.active = false
}

// Finalize maps a horizontal displacement to a decision
func Finalize(dx, threshold float64) (model.Direction, bool) {
	switch {
	case dx > threshold:
		return model.DirectionLike, true
	case dx < -threshold:
		return model.DirectionPass, true
	default:
		return "", false
	}
}

// VisualFor maps a horizontal displacement to the card presentation
func VisualFor(dx float64) Visual {
	v := Visual{
		OffsetX:  dx,
		Rotation: dx / rotationDivisor,
		Opacity:  math.Max(0, 1-math.Abs(dx)/fadeDistance),
	}
	if dx > indicatorOnset {
		v.LikeOpacity = math.Min(1, dx/indicatorFullAt)
	}
	if dx < -indicatorOnset {
		v.PassOpacity = math.Min(1, -dx/indicatorFullAt)
	}
	return v
}
