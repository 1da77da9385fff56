// Package topology builds the kinematic tree of a structural model: which units move
// together, where the chain is broken and which jumps bridge the breaks.
package topology

import (
	"cmp"
	"encoding/json"
	"slices"
	"strconv"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/internal/store"
)

var (
	ErrEmptyModel   = errors.New("model has no units")
	ErrInvalidEdge  = errors.New("invalid topology edge")
	ErrDisconnected = errors.New("topology does not reach every unit")
)

// Kind is the type of a topology edge.
type Kind string

const (
	// Chain edges follow the covalent chain between adjacent units.
	Chain Kind = "chain"
	// Jump edges bridge a cut between two anchor units.
	Jump Kind = "jump"
)

const (
	attrKind  = "kind"
	attrLabel = "label"
)

// Edge is one parent to child connection of the tree. Label numbers jumps from 1.
type Edge struct {
	From  int  `json:"from"`
	To    int  `json:"to"`
	Kind  Kind `json:"kind"`
	Label int  `json:"label,omitempty"`
}

// Topology is a tree over units 1..n rooted at Root.
type Topology struct {
	n     int
	root  int
	cuts  []int
	store store.CustomStore[int, int]
	graph graph.Graph[int, int]
}

func newTopology(n, root int) (*Topology, error) {
	if n < 1 {
		return nil, ErrEmptyModel
	}
	st := store.NewMemoryStore[int, int](cmp.Less[int])
	t := &Topology{
		n:     n,
		root:  root,
		store: st,
		graph: graph.NewWithStore(graph.IntHash, st, graph.Directed(), graph.Acyclic()),
	}
	for i := 1; i <= n; i++ {
		err := t.graph.AddVertex(i)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add unit %d", i)
		}
	}

	return t, nil
}

// Simple returns a single chain over n units rooted at the first one.
func Simple(n int) (*Topology, error) {
	t, err := newTopology(n, 1)
	if err != nil {
		return nil, err
	}
	for i := 1; i < n; i++ {
		err := t.addEdge(Edge{From: i, To: i + 1, Kind: Chain})
		if err != nil {
			return nil, err
		}
	}

	return t, nil
}

// FromEdges rebuilds a topology from its edge list.
func FromEdges(n, root int, edges []Edge) (*Topology, error) {
	t, err := newTopology(n, root)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		err := t.addEdge(e)
		if err != nil {
			return nil, err
		}
	}
	t.cuts = cutsOf(n, edges)

	return t, t.validate()
}

func (t *Topology) addEdge(e Edge) error {
	if e.From < 1 || e.From > t.n || e.To < 1 || e.To > t.n {
		return errors.Wrapf(ErrInvalidEdge, "%d -> %d outside 1..%d", e.From, e.To, t.n)
	}
	if e.Kind == Chain && abs(e.From-e.To) != 1 {
		return errors.Wrapf(ErrInvalidEdge, "chain edge %d -> %d joins non adjacent units", e.From, e.To)
	}
	err := t.graph.AddEdge(e.From, e.To,
		graph.EdgeAttribute(attrKind, string(e.Kind)),
		graph.EdgeAttribute(attrLabel, strconv.Itoa(e.Label)),
	)
	if err != nil {
		return errors.Wrapf(err, "unable to add %s edge %d -> %d", e.Kind, e.From, e.To)
	}

	return nil
}

func (t *Topology) validate() error {
	edges, err := t.store.ListEdges()
	if err != nil {
		return errors.Wrap(err, "unable to list edges")
	}
	if len(edges) != t.n-1 {
		return errors.Wrapf(ErrDisconnected, "%d edges for %d units", len(edges), t.n)
	}
	for i := 1; i <= t.n; i++ {
		_, hasParent := t.store.Parent(i)
		if i == t.root && hasParent {
			return errors.Wrapf(ErrInvalidEdge, "root %d has a parent", i)
		}
		if i != t.root && !hasParent {
			return errors.Wrapf(ErrDisconnected, "unit %d is not reachable from root %d", i, t.root)
		}
	}

	return nil
}

// Len returns the number of units.
func (t *Topology) Len() int {
	return t.n
}

// Root returns the root unit.
func (t *Topology) Root() int {
	return t.root
}

// Cutpoints returns the sorted units after which the chain is broken.
func (t *Topology) Cutpoints() []int {
	return slices.Clone(t.cuts)
}

// IsCutpoint reports whether the chain is broken after unit i.
func (t *Topology) IsCutpoint(i int) bool {
	_, found := slices.BinarySearch(t.cuts, i)
	return found
}

// Edges returns every edge ordered by parent then child.
func (t *Topology) Edges() []Edge {
	raw, err := t.store.ListEdges()
	if err != nil {
		return nil
	}
	edges := make([]Edge, 0, len(raw))
	for _, e := range raw {
		edges = append(edges, toEdge(e))
	}

	return edges
}

// Jumps returns the jump edges ordered by label.
func (t *Topology) Jumps() []Edge {
	var jumps []Edge
	for _, e := range t.Edges() {
		if e.Kind == Jump {
			jumps = append(jumps, e)
		}
	}
	slices.SortFunc(jumps, func(a, b Edge) int {
		return a.Label - b.Label
	})

	return jumps
}

// Graph exposes the underlying graph for rendering.
func (t *Topology) Graph() graph.Graph[int, int] {
	return t.graph
}

// Equal reports whether both topologies have the same root and edges.
func (t *Topology) Equal(other *Topology) bool {
	if t == nil || other == nil {
		return t == other
	}

	return t.n == other.n && t.root == other.root && slices.Equal(t.Edges(), other.Edges())
}

// Clone returns a deep copy.
func (t *Topology) Clone() *Topology {
	if t == nil {
		return nil
	}
	st := t.store.Clone()

	return &Topology{
		n:     t.n,
		root:  t.root,
		cuts:  slices.Clone(t.cuts),
		store: st,
		graph: graph.NewWithStore(graph.IntHash, st, graph.Directed(), graph.Acyclic()),
	}
}

type flatTopology struct {
	N     int    `json:"n"`
	Root  int    `json:"root"`
	Edges []Edge `json:"edges"`
}

// MarshalJSON writes the flat edge list form.
func (t *Topology) MarshalJSON() ([]byte, error) {
	return json.Marshal(flatTopology{N: t.n, Root: t.root, Edges: t.Edges()})
}

// UnmarshalJSON rebuilds the topology from its flat edge list form.
func (t *Topology) UnmarshalJSON(data []byte) error {
	var flat flatTopology
	err := json.Unmarshal(data, &flat)
	if err != nil {
		return errors.Wrap(err, "unable to decode topology")
	}
	rebuilt, err := FromEdges(flat.N, flat.Root, flat.Edges)
	if err != nil {
		return err
	}
	*t = *rebuilt

	return nil
}

// MarshalBinary lets snapshots embed the topology.
func (t *Topology) MarshalBinary() ([]byte, error) {
	return t.MarshalJSON()
}

// UnmarshalBinary is the counterpart of MarshalBinary.
func (t *Topology) UnmarshalBinary(data []byte) error {
	return t.UnmarshalJSON(data)
}

func toEdge(e graph.Edge[int]) Edge {
	label, _ := strconv.Atoi(e.Properties.Attributes[attrLabel])

	return Edge{
		From:  e.Source,
		To:    e.Target,
		Kind:  Kind(e.Properties.Attributes[attrKind]),
		Label: label,
	}
}

// cutsOf returns the units i for which no chain edge joins i and i+1.
func cutsOf(n int, edges []Edge) []int {
	linked := make(map[int]bool, len(edges))
	for _, e := range edges {
		if e.Kind == Chain {
			linked[min(e.From, e.To)] = true
		}
	}
	var cuts []int
	for i := 1; i < n; i++ {
		if !linked[i] {
			cuts = append(cuts, i)
		}
	}

	return cuts
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
