package sampling

import (
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
)

// DefaultBreakDistance is the alpha carbon distance above which two consecutive units are
// considered broken apart.
const DefaultBreakDistance = 4.5

// ChainbreakPicker finds regions around chain breaks of the input model.
type ChainbreakPicker struct {
	// BreakDistance defaults to DefaultBreakDistance.
	BreakDistance float64
}

// Detect returns one region per break, centred on it and padded to minLength units.
// Regions that touch are merged.
func (p ChainbreakPicker) Detect(pose *model.Pose, minLength int) (region.Set, error) {
	threshold := p.BreakDistance
	if threshold <= 0 {
		threshold = DefaultBreakDistance
	}
	n := pose.TrimmedLen()

	var out region.Set
	for i := 1; i < n; i++ {
		d, ok := gap(pose, i)
		if !ok || d <= threshold {
			continue
		}
		r := pad(region.Region{Start: i, Stop: i + 1, Cut: i}, n, minLength)
		if len(out) > 0 && out[len(out)-1].Stop+1 >= r.Start {
			out[len(out)-1].Stop = max(out[len(out)-1].Stop, r.Stop)
			continue
		}
		out = append(out, r)
	}

	return out, nil
}

// pad widens r alternately on both sides until it has minLength units or fills the model.
func pad(r region.Region, n, minLength int) region.Region {
	for left := true; r.Len() < minLength && (r.Start > 1 || r.Stop < n); left = !left {
		switch {
		case left && r.Start > 1:
			r.Start--
		case !left && r.Stop < n:
			r.Stop++
		}
	}

	return r
}

var _ region.Detector[*model.Pose] = ChainbreakPicker{}
