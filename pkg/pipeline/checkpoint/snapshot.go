package checkpoint

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"

	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
)

// Encode serialises a model as a gzip compressed gob blob.
func Encode(pose *model.Pose) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	err := gob.NewEncoder(gz).Encode(pose)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode model")
	}
	err = gz.Close()
	if err != nil {
		return nil, errors.Wrap(err, "unable to compress model")
	}

	return buf.Bytes(), nil
}

// Decode is the counterpart of Encode.
func Decode(blob []byte) (*model.Pose, error) {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, errors.Wrap(err, "unable to open snapshot")
	}
	defer gz.Close()

	var pose model.Pose
	err = gob.NewDecoder(gz).Decode(&pose)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode model")
	}
	if pose.Energies == nil {
		pose.Energies = map[string]float64{}
	}

	return &pose, nil
}
