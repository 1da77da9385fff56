package sampling_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/internal/fixture"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
	"github.com/askiada/go-looprelax/pkg/pipeline/topology"
)

var (
	loop      = region.Set{{Start: 4, Stop: 8, Cut: 6}}
	fragments = []model.FragmentLibrary{{Name: "frag9", Length: 9, Count: 200}, {Name: "frag3", Length: 3, Count: 200}}
)

// shiftUnits moves every atom of units from..to by delta.
func shiftUnits(pose *model.Pose, from, to int, delta r3.Vec) {
	for i := from; i <= to; i++ {
		res := pose.Residue(i)
		for idx := range res.Atoms {
			res.Atoms[idx].XYZ = r3.Add(res.Atoms[idx].XYZ, delta)
		}
	}
}

// brokenLoop returns a helix of n units whose region units after the cut were pulled away,
// with the region topology installed.
func brokenLoop(t *testing.T, n int, regions region.Set) *model.Pose {
	t.Helper()

	pose := fixture.Helix(n)
	for _, r := range regions {
		shiftUnits(pose, r.Cut+1, r.Stop, r3.Vec{X: 6, Y: -3})
	}
	topo, err := topology.Build(n, regions, false)
	require.NoError(t, err)
	pose.SetTopology(topo)

	return pose
}

func caOf(t *testing.T, pose *model.Pose, i int) r3.Vec {
	t.Helper()

	xyz, ok := pose.Residue(i).CA()
	require.True(t, ok)

	return xyz
}

func gapAt(t *testing.T, pose *model.Pose, c int) float64 {
	t.Helper()

	return r3.Norm(r3.Sub(caOf(t, pose, c), caOf(t, pose, c+1)))
}

func params(family stage.Family, name string, regions region.Set, seed int64) stage.Params {
	return stage.Params{
		Family:    family,
		Name:      name,
		Regions:   regions,
		Fragments: fragments,
		Objective: score.New("test", map[score.Term]float64{score.Bond: 1, score.Chainbreak: 1}),
		Tag:       "test",
		Rand:      rand.New(rand.NewSource(seed)),
	}
}

// unchangedOutside asserts that every unit outside regions kept its alpha carbon.
func unchangedOutside(t *testing.T, want, got *model.Pose, regions region.Set) {
	t.Helper()

	for i := 1; i <= want.Len(); i++ {
		if regions.Contains(i) {
			continue
		}
		require.InDelta(t, 0, r3.Norm(r3.Sub(caOf(t, want, i), caOf(t, got, i))), 1e-9, "unit %d moved", i)
	}
}
