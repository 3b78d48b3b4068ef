package swipe_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/usecase/swipe"
)

func TestFinalizeBoundary(t *testing.T) {
	testCases := map[string]struct {
		dx        float64
		committed bool
		dir       model.Direction
	}{
		"at threshold right":   {dx: 100, committed: false},
		"past threshold right": {dx: 100.5, committed: true, dir: model.DirectionLike},
		"at threshold left":    {dx: -100, committed: false},
		"past threshold left":  {dx: -101, committed: true, dir: model.DirectionPass},
		"small drag":           {dx: 30, committed: false},
		"no drag":              {dx: 0, committed: false},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			dir, ok := swipe.Finalize(tc.dx, swipe.DefaultThreshold)
			gt.Equal(t, ok, tc.committed)
			gt.Equal(t, dir, tc.dir)
		})
	}
}

func TestGestureDrag(t *testing.T) {
	g := swipe.NewGesture(0)
	gt.Equal(t, g.Threshold(), swipe.DefaultThreshold)

	_, ok := g.End()
	gt.False(t, ok)

	g.Start(200)
	v := g.Move(350)
	gt.Equal(t, v.OffsetX, 150.0)
	gt.Equal(t, v.Rotation, 15.0)
	gt.Equal(t, v.Opacity, 0.5)
	gt.Equal(t, v.LikeOpacity, 1.0)
	gt.Equal(t, v.PassOpacity, 0.0)

	dir, ok := g.End()
	gt.True(t, ok)
	gt.Equal(t, dir, model.DirectionLike)
	gt.False(t, g.Active())
}

func TestGestureSnapBack(t *testing.T) {
	g := swipe.NewGesture(120)
	g.Start(0)
	v := g.Move(-60)
	gt.Equal(t, v.PassOpacity, 0.6)
	gt.Equal(t, v.LikeOpacity, 0.0)

	g.Move(-110)
	_, ok := g.End()
	gt.False(t, ok)
}

func TestVisualIndicatorsStayHiddenNearOrigin(t *testing.T) {
	v := swipe.VisualFor(40)
	gt.Equal(t, v.LikeOpacity, 0.0)
	gt.Equal(t, v.PassOpacity, 0.0)

	v = swipe.VisualFor(-600)
	gt.Equal(t, v.Opacity, 0.0)
	gt.Equal(t, v.PassOpacity, 1.0)
}
