package probe

import (
	"io"

	"github.com/emicklei/dot"
)

// WriteGraph renders the plan as a Graphviz DOT digraph: probes in run
// order, with labeled edges from each capturing probe to the probes that
// interpolate its value.
func WriteGraph(plan *Plan, w io.Writer) error {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "TB")
	g.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})

	nodes := make(map[string]dot.Node, len(plan.Probes))
	producers := map[string]string{}

	for i, p := range plan.Probes {
		n := g.Node(p.Name)
		n.Attr("label", p.Method+" "+p.Path+"\n"+p.Name)
		nodes[p.Name] = n

		// Run-order edge to the previous probe keeps the sequence visible.
		if i > 0 {
			prev := nodes[plan.Probes[i-1].Name]
			g.Edge(prev, n).Attr("style", "dotted")
		}

		for _, ref := range p.placeholders() {
			if producer, ok := producers[ref]; ok {
				g.Edge(nodes[producer], n).Attr("label", "{{"+ref+"}}")
			}
		}
		if p.CaptureFirstAs != "" {
			producers[p.CaptureFirstAs] = p.Name
		}
	}

	_, err := w.Write([]byte(g.String()))
	return err
}
