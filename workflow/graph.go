package workflow

import (
	"io"
	"slices"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// Graph builds the stage dependency graph. An edge a -> b means stage b
// reads a field of stage a.
func (s Spec) Graph() (graph.Graph[string, string], error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, st := range s.Stages {
		if err := g.AddVertex(st.Name, graph.VertexAttribute("label", st.Name+"\n"+st.Executable.String())); err != nil {
			if errors.Is(err, graph.ErrVertexAlreadyExists) {
				return nil, errors.Wrapf(ErrDuplicateStage, "%q in %s", st.Name, s.Name)
			}
			return nil, errors.Wrap(err, s.Name)
		}
	}

	for _, st := range s.Stages {
		fields := map[string][]string{}
		for _, key := range sortedKeys(st.Input) {
			for _, r := range refs(st.Input[key]) {
				if _, ok := s.Stage(r.Stage); !ok {
					return nil, errors.Wrapf(ErrUnknownStage, "%s.%s refers to %q", st.Name, key, r.Stage)
				}
				if r.Stage == st.Name {
					return nil, errors.Wrapf(ErrCycle, "%s.%s refers to its own stage", st.Name, key)
				}
				fields[r.Stage] = append(fields[r.Stage], r.Field)
			}
		}
		for _, from := range sortedKeys(fields) {
			label := strings.Join(fields[from], ",")
			if err := g.AddEdge(from, st.Name, graph.EdgeAttribute("label", label)); err != nil {
				if errors.Is(err, graph.ErrEdgeCreatesCycle) {
					return nil, errors.Wrapf(ErrCycle, "%s -> %s", from, st.Name)
				}
				return nil, errors.Wrap(err, s.Name)
			}
		}
	}
	return g, nil
}

// Validate checks that stage names are unique and every reference names a
// stage of s without forming a cycle. It returns the stage names in an
// order where each stage follows the stages it refers to; ties keep the
// declaration order.
func (s Spec) Validate() ([]string, error) {
	g, err := s.Graph()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(s.Stages))
	for i, st := range s.Stages {
		index[st.Name] = i
	}
	order, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return index[a] < index[b]
	})
	if err != nil {
		return nil, errors.Wrap(err, s.Name)
	}
	return order, nil
}

// WriteDOT renders the stage graph in Graphviz format.
func WriteDOT(s Spec, w io.Writer) error {
	g, err := s.Graph()
	if err != nil {
		return err
	}
	return draw.DOT(g, w, draw.GraphAttribute("label", s.Name), draw.GraphAttribute("rankdir", "LR"))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
