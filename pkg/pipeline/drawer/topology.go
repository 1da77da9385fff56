package drawer

import (
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/topology"
)

// WriteTopology renders the topology as a DOT digraph. Jump edges carry their number.
func WriteTopology(wrt io.Writer, topo *topology.Topology) error {
	if topo == nil {
		return errors.New("no topology to draw")
	}

	return dot(topo.Graph(), wrt, GraphAttribute("rankdir", "LR"), GraphAttribute("label", cutLabel(topo)))
}

func cutLabel(topo *topology.Topology) string {
	cuts := topo.Cutpoints()
	if len(cuts) == 0 {
		return "no cut"
	}
	label := "cuts:"
	for _, c := range cuts {
		label += " " + strconv.Itoa(c)
	}

	return label
}
