package testhelpers

import (
	"fmt"
	"strings"

	"github.com/pbaille/pathwayqa/internal/domain"
)

// Conn attaches a node to a drawn edge
type Conn struct {
	Group         string // Inputs, Outputs, Catalysts, Activators, Inhibitors
	Node          int
	Stoichiometry int
}

func In(node int, stoichiometry ...int) Conn  { return conn("Inputs", node, stoichiometry) }
func Out(node int, stoichiometry ...int) Conn { return conn("Outputs", node, stoichiometry) }
func Cat(node int) Conn                       { return Conn{Group: "Catalysts", Node: node} }
func Act(node int) Conn                       { return Conn{Group: "Activators", Node: node} }
func Inh(node int) Conn                       { return Conn{Group: "Inhibitors", Node: node} }

func conn(group string, node int, stoichiometry []int) Conn {
	c := Conn{Group: group, Node: node}
	if len(stoichiometry) > 0 {
		c.Stoichiometry = stoichiometry[0]
	}
	return c
}

// Doc builds diagram documents for tests
type Doc struct {
	processID domain.ID
	elements  []string
}

// NewDoc starts a document whose root represents processID
func NewDoc(processID domain.ID) *Doc {
	return &Doc{processID: processID}
}

// Node adds a drawn node; entityID 0 omits the reference
func (d *Doc) Node(id int, kind string, entityID domain.ID) *Doc {
	d.elements = append(d.elements, fmt.Sprintf("    <%s id=\"%d\"%s/>", kind, id, ref(entityID)))
	return d
}

// Reaction adds a reaction edge
func (d *Doc) Reaction(id int, entityID domain.ID, conns ...Conn) *Doc {
	return d.Edge("Reaction", id, entityID, conns...)
}

// Edge adds an edge element of any kind
func (d *Doc) Edge(kind string, id int, entityID domain.ID, conns ...Conn) *Doc {
	var sb strings.Builder
	fmt.Fprintf(&sb, "    <%s id=\"%d\"%s>\n", kind, id, ref(entityID))
	for _, group := range []string{"Inputs", "Outputs", "Catalysts", "Activators", "Inhibitors"} {
		var members []Conn
		for _, c := range conns {
			if c.Group == group {
				members = append(members, c)
			}
		}
		if len(members) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "      <%s>\n", group)
		for _, c := range members {
			stoich := ""
			if c.Stoichiometry != 0 {
				stoich = fmt.Sprintf(" stoichiometry=\"%d\"", c.Stoichiometry)
			}
			fmt.Fprintf(&sb, "        <%s id=\"%d\"%s/>\n", strings.TrimSuffix(group, "s"), c.Node, stoich)
		}
		fmt.Fprintf(&sb, "      </%s>\n", group)
	}
	fmt.Fprintf(&sb, "    </%s>", kind)
	d.elements = append(d.elements, sb.String())
	return d
}

func (d *Doc) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<Process%s>\n  <Nodes>\n", ref(d.processID))
	for _, el := range d.elements {
		sb.WriteString(el)
		sb.WriteString("\n")
	}
	sb.WriteString("  </Nodes>\n</Process>\n")
	return sb.String()
}

func ref(id domain.ID) string {
	if id == 0 {
		return ""
	}
	return fmt.Sprintf(" reactomeId=\"%d\"", id)
}
