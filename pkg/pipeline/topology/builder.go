package topology

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/region"
)

type jump struct {
	from, to int
}

type segment struct {
	start, stop int
}

func (s segment) contains(i int) bool {
	return i >= s.start && i <= s.stop
}

// Build derives a topology over n units from the regions. Every region gets one cut with a
// jump from the unit before the region to the unit after it. Regions touching the first or
// last unit only get a cut when allowTerminalCuts is set. Inputs are not modified.
func Build(n int, regions region.Set, allowTerminalCuts bool) (*Topology, error) {
	err := regions.Verify(n)
	if err != nil {
		return nil, err
	}

	cuts, jumps := plan(n, regions, allowTerminalCuts)

	segments := make([]segment, 0, len(cuts)+1)
	start := 1
	for _, c := range cuts {
		segments = append(segments, segment{start: start, stop: c})
		start = c + 1
	}
	segments = append(segments, segment{start: start, stop: n})

	t, err := newTopology(n, 1)
	if err != nil {
		return nil, err
	}
	t.cuts = cuts

	entry := make(map[int]int, len(segments))
	entry[0] = 1
	queue := []int{0}
	label := 0
	for len(queue) > 0 || len(entry) < len(segments) {
		if len(queue) == 0 {
			// a jump anchored inside a single segment leaves the next one unreachable
			for idx, seg := range segments {
				if _, ok := entry[idx]; ok {
					continue
				}
				label++
				err := t.addEdge(Edge{From: t.root, To: seg.start, Kind: Jump, Label: label})
				if err != nil {
					return nil, err
				}
				entry[idx] = seg.start
				queue = append(queue, idx)
				break
			}
		}

		idx := queue[0]
		queue = queue[1:]
		seg := segments[idx]

		err := t.addChain(seg, entry[idx])
		if err != nil {
			return nil, err
		}

		for _, j := range jumps {
			from, to, ok := orient(j, seg)
			if !ok {
				continue
			}
			target := segmentOf(segments, to)
			if _, seen := entry[target]; seen {
				continue
			}
			label++
			err := t.addEdge(Edge{From: from, To: to, Kind: Jump, Label: label})
			if err != nil {
				return nil, err
			}
			entry[target] = to
			queue = append(queue, target)
		}
	}

	err = t.validate()
	if err != nil {
		return nil, errors.Wrap(err, "built topology is invalid")
	}

	return t, nil
}

// plan returns the sorted cuts and the jumps bridging them.
func plan(n int, regions region.Set, allowTerminalCuts bool) ([]int, []jump) {
	var (
		cuts  []int
		jumps []jump
	)
	for _, r := range regions {
		if r.Start == 1 && r.Stop == n {
			continue
		}
		cut := r.Cut
		switch {
		case r.Start == 1:
			if !allowTerminalCuts {
				continue
			}
			cut = r.Stop
			jumps = append(jumps, jump{from: r.Stop + 1, to: r.Stop})
		case r.Stop == n:
			if !allowTerminalCuts {
				continue
			}
			cut = r.Start - 1
			jumps = append(jumps, jump{from: r.Start - 1, to: r.Start})
		default:
			if !r.ValidCut(n) {
				cut = r.Midpoint()
			}
			jumps = append(jumps, jump{from: r.Start - 1, to: r.Stop + 1})
		}
		if !slices.Contains(cuts, cut) {
			cuts = append(cuts, cut)
		}
	}
	slices.Sort(cuts)

	return cuts, jumps
}

// addChain links every unit of the segment outward from its entry point.
func (t *Topology) addChain(seg segment, entry int) error {
	for i := entry; i < seg.stop; i++ {
		err := t.addEdge(Edge{From: i, To: i + 1, Kind: Chain})
		if err != nil {
			return err
		}
	}
	for i := entry; i > seg.start; i-- {
		err := t.addEdge(Edge{From: i, To: i - 1, Kind: Chain})
		if err != nil {
			return err
		}
	}

	return nil
}

// orient returns the jump going out of seg, if one of its anchors lies in seg.
func orient(j jump, seg segment) (int, int, bool) {
	switch {
	case seg.contains(j.from) && !seg.contains(j.to):
		return j.from, j.to, true
	case seg.contains(j.to) && !seg.contains(j.from):
		return j.to, j.from, true
	default:
		return 0, 0, false
	}
}

func segmentOf(segments []segment, unit int) int {
	idx, _ := slices.BinarySearchFunc(segments, unit, func(s segment, u int) int {
		switch {
		case s.stop < u:
			return -1
		case s.start > u:
			return 1
		default:
			return 0
		}
	})

	return idx
}
