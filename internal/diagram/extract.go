package diagram

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pbaille/pathwayqa/internal/domain"
)

// Legacy documents name elements after the drawing tool's render classes.
const legacyPrefix = "org.gk.render.Renderable"

var edgeKinds = map[string]EdgeType{
	"Reaction":                  EdgeReaction,
	"FlowLine":                  EdgeProcess,
	"Interaction":               EdgeProcess,
	"EntitySetAndMemberLink":    EdgeProcess,
	"EntitySetAndEntitySetLink": EdgeProcess,
}

type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []element  `xml:",any"`
}

func (e *element) name() string {
	return strings.TrimPrefix(e.XMLName.Local, legacyPrefix)
}

func (e *element) attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (e *element) intAttr(name string) (int64, bool, error) {
	v, ok := e.attr(name)
	if !ok || strings.TrimSpace(v) == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("<%s %s=%q>: not an integer", e.name(), name, v)
	}
	return n, true, nil
}

func (e *element) entityID() (domain.ID, error) {
	n, ok, err := e.intAttr("reactomeId")
	if err != nil || !ok {
		return 0, err
	}
	return domain.ID(n), nil
}

// Extract parses a diagram document. Empty or absent documents yield an
// empty graph; anything unparseable yields a MalformedDiagramError.
func Extract(raw []byte) (*Graph, error) {
	g := newGraph()
	if len(bytes.TrimSpace(raw)) == 0 {
		return g, nil
	}

	var root element
	if err := xml.Unmarshal(raw, &root); err != nil {
		return nil, malformed(err)
	}
	if root.name() != "Process" {
		return nil, malformed(fmt.Errorf("unexpected root element <%s>", root.XMLName.Local))
	}
	pid, err := root.entityID()
	if err != nil {
		return nil, malformed(err)
	}
	g.ProcessID = pid

	// Nodes first so that edges can resolve their connections.
	var edges []*element
	for i := range root.Children {
		container := &root.Children[i]
		switch container.name() {
		case "Nodes", "Edges":
		default:
			continue
		}
		for j := range container.Children {
			el := &container.Children[j]
			if _, isEdge := edgeKinds[el.name()]; isEdge {
				edges = append(edges, el)
				continue
			}
			if err := g.addNode(el); err != nil {
				return nil, malformed(err)
			}
		}
	}
	for _, el := range edges {
		if err := g.addEdge(el); err != nil {
			return nil, malformed(err)
		}
	}
	return g, nil
}

func malformed(err error) error {
	return &domain.MalformedDiagramError{Err: err}
}

func (g *Graph) addNode(el *element) error {
	id, ok, err := el.intAttr("id")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("<%s> without id", el.name())
	}
	if _, dup := g.nodes[int(id)]; dup {
		return fmt.Errorf("duplicate node id %d", id)
	}
	entityID, err := el.entityID()
	if err != nil {
		return err
	}

	n := &Node{ID: int(id), Kind: el.name(), EntityID: entityID}
	for i := range el.Children {
		child := &el.Children[i]
		if child.name() != "NodeAttachments" {
			continue
		}
		for j := range child.Children {
			f := &child.Children[j]
			fid, err := f.entityID()
			if err != nil {
				return err
			}
			label, _ := f.attr("label")
			n.Features = append(n.Features, Feature{EntityID: fid, Label: label})
		}
	}

	g.nodes[n.ID] = n
	g.Nodes = append(g.Nodes, n)
	return nil
}

func (g *Graph) addEdge(el *element) error {
	id, ok, err := el.intAttr("id")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("<%s> without id", el.name())
	}
	entityID, err := el.entityID()
	if err != nil {
		return err
	}

	e := &Edge{
		ID:                  int(id),
		Kind:                el.name(),
		Type:                edgeKinds[el.name()],
		EntityID:            entityID,
		InputStoichiometry:  make(map[int]int),
		OutputStoichiometry: make(map[int]int),
	}
	for i := range el.Children {
		group := &el.Children[i]
		var target *[]*Node
		var counts map[int]int
		switch group.name() {
		case "Inputs":
			target, counts = &e.Inputs, e.InputStoichiometry
		case "Outputs":
			target, counts = &e.Outputs, e.OutputStoichiometry
		case "Catalysts":
			target = &e.Helpers
		case "Activators":
			target = &e.Activators
		case "Inhibitors":
			target = &e.Inhibitors
		default:
			continue
		}
		for j := range group.Children {
			conn := &group.Children[j]
			nid, ok, err := conn.intAttr("id")
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("edge %d: <%s> without id", e.ID, conn.name())
			}
			n, ok := g.nodes[int(nid)]
			if !ok {
				return fmt.Errorf("edge %d: connection to unknown node %d", e.ID, nid)
			}
			*target = append(*target, n)
			if counts == nil {
				continue
			}
			count, ok, err := conn.intAttr("stoichiometry")
			if err != nil {
				return err
			}
			if ok {
				if count < 1 {
					return fmt.Errorf("edge %d: stoichiometry %d for node %d", e.ID, count, nid)
				}
				counts[n.ID] = int(count)
			}
		}
	}

	g.Edges = append(g.Edges, e)
	return nil
}

var entityIDPattern = regexp.MustCompile(`reactomeId="(\d+)"`)

// ScanEntityIDs collects every reactomeId attribute value from the raw text
// without building the graph. It never fails; malformed documents simply
// yield whatever ids are present.
func ScanEntityIDs(raw []byte) domain.IDSet {
	out := make(domain.IDSet)
	for _, m := range entityIDPattern.FindAllSubmatch(raw, -1) {
		n, err := strconv.ParseInt(string(m[1]), 10, 64)
		if err != nil {
			continue
		}
		out.Add(domain.ID(n))
	}
	return out
}
