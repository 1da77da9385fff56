package modelio_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/internal/fixture"
	"github.com/askiada/go-looprelax/internal/modelio"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
)

func write(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestPoseRoundTrip(t *testing.T) {
	t.Parallel()

	pose := fixture.Helix(5, fixture.WithTrailingVirtual(1))
	scores := model.NewScoreTable()
	scores.Set("rms", 1.25)

	path := filepath.Join(t.TempDir(), "out", "model.yaml")
	require.NoError(t, modelio.WritePose(path, pose, scores))

	got, err := modelio.ReadPose(path)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(pose.Residues, got.Residues, cmpopts.EquateEmpty()))
	assert.Equal(t, pose.Representation, got.Representation)
	assert.Equal(t, pose.Len(), got.Topology.Len())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: rms")
}

func TestDecodePose(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		doc     string
		wantErr bool
		check   func(t *testing.T, pose *model.Pose)
	}{
		"yaml with defaults": {
			doc: `
residues:
  - name: GLY
    atoms:
      - {name: CA, xyz: [1, 2, 3]}
  - name: HOH
    protein: false
    atoms: []
`,
			check: func(t *testing.T, pose *model.Pose) {
				t.Helper()
				assert.Equal(t, model.FullAtom, pose.Representation)
				assert.True(t, pose.Residue(1).Protein)
				assert.False(t, pose.Residue(2).Protein)
				xyz, ok := pose.Residue(1).CA()
				require.True(t, ok)
				assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, xyz)
			},
		},
		"json": {
			doc: `{"representation": "centroid", "residues": [{"name": "ALA", "atoms": [{"name": "CA", "xyz": [0, 0, 0]}]}]}`,
			check: func(t *testing.T, pose *model.Pose) {
				t.Helper()
				assert.Equal(t, model.Centroid, pose.Representation)
				assert.Equal(t, 1, pose.Len())
			},
		},
		"unknown representation": {doc: "representation: coarse\nresidues: [{name: ALA}]\n", wantErr: true},
		"unknown key":            {doc: "residues: [{name: ALA, colour: red}]\n", wantErr: true},
		"unnamed unit":           {doc: "residues: [{atoms: []}]\n", wantErr: true},
		"no units":               {doc: "residues: []\n", wantErr: true},
		"empty document":         {doc: "", wantErr: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pose, err := modelio.DecodePose(strings.NewReader(tc.doc))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, pose)
		})
	}
}

func TestEncodePoseKeepsNonProteinFlag(t *testing.T) {
	t.Parallel()

	pose, err := model.NewPose([]model.Residue{
		{Name: "ALA", Protein: true, Atoms: []model.Atom{{Name: model.AtomCA}}},
		{Name: "HOH"},
	}, model.FullAtom)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, modelio.EncodePose(&buf, pose, nil))
	got, err := modelio.DecodePose(&buf)
	require.NoError(t, err)
	assert.True(t, got.Residue(1).Protein)
	assert.False(t, got.Residue(2).Protein)
	assert.NotContains(t, buf.String(), "scores")
}

func TestReadRegions(t *testing.T) {
	t.Parallel()

	got, err := modelio.ReadRegions(write(t, "regions.yaml", `
regions:
  - {start: 4, stop: 8, cut: 6}
  - {start: 12, stop: 15, extended: true, skip_rate: 0.5}
`))
	require.NoError(t, err)
	assert.Equal(t, region.Set{
		{Start: 4, Stop: 8, Cut: 6},
		{Start: 12, Stop: 15, Extended: true, SkipRate: 0.5},
	}, got)

	_, err = modelio.ReadRegions(write(t, "empty.yaml", "regions: []\n"))
	assert.ErrorIs(t, err, modelio.ErrInvalidDocument)

	_, err = modelio.ReadRegions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestReadFragments(t *testing.T) {
	t.Parallel()

	got, err := modelio.ReadFragments(write(t, "frags.yaml", `
fragments:
  - {name: frag9, length: 9, count: 200}
  - {name: frag3, length: 3, count: 200}
`))
	require.NoError(t, err)
	assert.Equal(t, []model.FragmentLibrary{
		{Name: "frag9", Length: 9, Count: 200},
		{Name: "frag3", Length: 3, Count: 200},
	}, got)

	_, err = modelio.ReadFragments(write(t, "bad.yaml", "fragments: [{name: broken, length: 0}]\n"))
	assert.ErrorIs(t, err, modelio.ErrInvalidDocument)
}

func TestReadRestraints(t *testing.T) {
	t.Parallel()

	got, err := modelio.ReadRestraints(write(t, "restraints.yaml", `
coordinate:
  - {unit: 2, atom: CA, target: [1, 0, 0], stdev: 0.5}
atom_pair:
  - {unit_a: 2, atom_a: CA, unit_b: 9, atom_b: CA, distance: 10, stdev: 1}
`))
	require.NoError(t, err)
	assert.Equal(t, model.Constraints{
		Coordinate: []model.CoordinateConstraint{{Unit: 2, Atom: model.AtomCA, Target: r3.Vec{X: 1}, Stdev: 0.5}},
		AtomPair:   []model.AtomPairConstraint{{UnitA: 2, AtomA: model.AtomCA, UnitB: 9, AtomB: model.AtomCA, Distance: 10, Stdev: 1}},
	}, got)
}
