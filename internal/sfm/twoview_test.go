package sfm

import (
	"testing"

	"github.com/banshee-data/sfm/internal/geometry"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestTwoViewInfoSwap(t *testing.T) {
	t.Parallel()

	info := TwoViewInfo{
		FocalLength1:       800,
		FocalLength2:       900,
		Rotation2:          geometry.RotationFromAngleAxis(r3.Vec{X: 0.1, Y: -0.3, Z: 0.05}),
		Position2:          r3.Unit(r3.Vec{X: 1, Y: 0.2, Z: -0.1}),
		NumVerifiedMatches: 42,
	}
	approx := cmpopts.EquateApprox(0, 1e-12)

	t.Run("involution", func(t *testing.T) {
		if diff := cmp.Diff(info, info.Swap().Swap(), approx); diff != "" {
			t.Errorf("swap twice mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("maps view 1 centre into view 2 frame", func(t *testing.T) {
		// In the swapped frame, view 1's centre expressed from view 2 is
		// Position2 of the swapped info.
		p2 := geometry.Pose{Rotation: info.Rotation2, Position: info.Position2}
		want := p2.Transform(r3.Vec{})
		got := info.Swap().Position2
		if diff := cmp.Diff(want, got, approx); diff != "" {
			t.Errorf("position mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("counts and focals", func(t *testing.T) {
		s := info.Swap()
		if s.FocalLength1 != 900 || s.FocalLength2 != 800 || s.NumVerifiedMatches != 42 {
			t.Errorf("unexpected swap: %+v", s)
		}
	})
}
