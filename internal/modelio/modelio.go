// Package modelio reads and writes the YAML documents the command line works with: models,
// region sets, fragment library lists and restraints. JSON documents are accepted as well.
package modelio

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
)

var ErrInvalidDocument = errors.New("invalid document")

type atomDoc struct {
	Name string     `yaml:"name"`
	XYZ  [3]float64 `yaml:"xyz,flow"`
}

// residueDoc uses a pointer for protein so that a missing key means a protein unit.
type residueDoc struct {
	Name    string    `yaml:"name"`
	Protein *bool     `yaml:"protein,omitempty"`
	Virtual bool      `yaml:"virtual,omitempty"`
	Atoms   []atomDoc `yaml:"atoms"`
}

type scoreDoc struct {
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
}

type poseDoc struct {
	Representation string       `yaml:"representation,omitempty"`
	Residues       []residueDoc `yaml:"residues"`
	// Scores is written in recording order and ignored on read.
	Scores []scoreDoc `yaml:"scores,omitempty"`
}

type regionsDoc struct {
	Regions region.Set `yaml:"regions"`
}

type fragmentsDoc struct {
	Fragments []model.FragmentLibrary `yaml:"fragments"`
}

type coordinateDoc struct {
	Unit   int        `yaml:"unit"`
	Atom   string     `yaml:"atom"`
	Target [3]float64 `yaml:"target,flow"`
	Stdev  float64    `yaml:"stdev"`
}

type atomPairDoc struct {
	UnitA    int     `yaml:"unit_a"`
	AtomA    string  `yaml:"atom_a"`
	UnitB    int     `yaml:"unit_b"`
	AtomB    string  `yaml:"atom_b"`
	Distance float64 `yaml:"distance"`
	Stdev    float64 `yaml:"stdev"`
}

type restraintsDoc struct {
	Coordinate []coordinateDoc `yaml:"coordinate"`
	AtomPair   []atomPairDoc   `yaml:"atom_pair"`
}

func decodeFile(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", path)
	}
	defer f.Close()

	return errors.Wrapf(decode(f, out), "unable to read %s", path)
}

func decode(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(out)
	if errors.Is(err, io.EOF) {
		return errors.Wrap(ErrInvalidDocument, "empty document")
	}

	return errors.Wrap(err, "unable to decode document")
}

// ReadPose reads a model document.
func ReadPose(path string) (*model.Pose, error) {
	var doc poseDoc
	err := decodeFile(path, &doc)
	if err != nil {
		return nil, err
	}

	return doc.pose()
}

// DecodePose reads a model document from r.
func DecodePose(r io.Reader) (*model.Pose, error) {
	var doc poseDoc
	err := decode(r, &doc)
	if err != nil {
		return nil, err
	}

	return doc.pose()
}

func (d poseDoc) pose() (*model.Pose, error) {
	rep := model.Representation(d.Representation)
	switch rep {
	case "":
		rep = model.FullAtom
	case model.FullAtom, model.Centroid:
	default:
		return nil, errors.Wrapf(ErrInvalidDocument, "unknown representation %q", d.Representation)
	}

	residues := make([]model.Residue, 0, len(d.Residues))
	for idx, rd := range d.Residues {
		if rd.Name == "" {
			return nil, errors.Wrapf(ErrInvalidDocument, "unit %d has no name", idx+1)
		}
		res := model.Residue{
			Name:    rd.Name,
			Protein: rd.Protein == nil || *rd.Protein,
			Virtual: rd.Virtual,
		}
		for _, a := range rd.Atoms {
			res.Atoms = append(res.Atoms, model.Atom{Name: a.Name, XYZ: vec(a.XYZ)})
		}
		residues = append(residues, res)
	}

	pose, err := model.NewPose(residues, rep)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build model")
	}

	return pose, nil
}

// WritePose writes pose, and the scores when given, to path.
func WritePose(path string, pose *model.Pose, scores *model.ScoreTable) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	defer f.Close()

	err = EncodePose(f, pose, scores)
	if err != nil {
		return err
	}

	return errors.Wrapf(f.Close(), "unable to close %s", path)
}

// EncodePose writes a model document to w.
func EncodePose(w io.Writer, pose *model.Pose, scores *model.ScoreTable) error {
	doc := poseDoc{Representation: string(pose.Representation)}
	for _, res := range pose.Residues {
		rd := residueDoc{Name: res.Name, Virtual: res.Virtual}
		if !res.Protein {
			protein := false
			rd.Protein = &protein
		}
		for _, a := range res.Atoms {
			rd.Atoms = append(rd.Atoms, atomDoc{Name: a.Name, XYZ: [3]float64{a.XYZ.X, a.XYZ.Y, a.XYZ.Z}})
		}
		doc.Residues = append(doc.Residues, rd)
	}
	if scores != nil {
		for _, e := range scores.Entries() {
			doc.Scores = append(doc.Scores, scoreDoc{Name: e.Name, Value: e.Value})
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(doc)
	if err != nil {
		return errors.Wrap(err, "unable to encode model")
	}

	return errors.Wrap(enc.Close(), "unable to flush model")
}

// ReadRegions reads a region set document.
func ReadRegions(path string) (region.Set, error) {
	var doc regionsDoc
	err := decodeFile(path, &doc)
	if err != nil {
		return nil, err
	}
	if len(doc.Regions) == 0 {
		return nil, errors.Wrapf(ErrInvalidDocument, "%s lists no region", path)
	}

	return doc.Regions, nil
}

// ReadFragments reads a fragment library list.
func ReadFragments(path string) ([]model.FragmentLibrary, error) {
	var doc fragmentsDoc
	err := decodeFile(path, &doc)
	if err != nil {
		return nil, err
	}
	for _, lib := range doc.Fragments {
		if lib.Length < 1 {
			return nil, errors.Wrapf(ErrInvalidDocument, "fragment library %q has length %d", lib.Name, lib.Length)
		}
	}

	return doc.Fragments, nil
}

// ReadRestraints reads a restraint document.
func ReadRestraints(path string) (model.Constraints, error) {
	var doc restraintsDoc
	err := decodeFile(path, &doc)
	if err != nil {
		return model.Constraints{}, err
	}

	var out model.Constraints
	for _, c := range doc.Coordinate {
		out.Coordinate = append(out.Coordinate, model.CoordinateConstraint{
			Unit: c.Unit, Atom: c.Atom, Target: vec(c.Target), Stdev: c.Stdev,
		})
	}
	for _, c := range doc.AtomPair {
		out.AtomPair = append(out.AtomPair, model.AtomPairConstraint(c))
	}

	return out, nil
}

func vec(xyz [3]float64) r3.Vec {
	return r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
}
