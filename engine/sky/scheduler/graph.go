package scheduler

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
)

// Node is one node of the frame graph.
type Node int

const (
	// NodeSetup publishes the atmosphere snapshot and writes the frame uniforms.
	NodeSetup Node = iota
	NodeLUT
	NodeRadiance
	// NodeMainPass is the renderer's scene pass, writing each view's colour and depth.
	NodeMainPass
	NodePostProcess
	// NodeTonemapping is the renderer's final pass into the presented image.
	NodeTonemapping
)

var nodeNames = map[Node]string{
	NodeSetup:       "setup",
	NodeLUT:         "lut",
	NodeRadiance:    "radiance",
	NodeMainPass:    "main_pass",
	NodePostProcess: "post_process",
	NodeTonemapping: "tonemapping",
}

func (n Node) String() string {
	if name, ok := nodeNames[n]; ok {
		return name
	}
	return fmt.Sprintf("node(%d)", int(n))
}

// External reports whether the node is recorded by a renderer hook rather than a sky stage.
func (n Node) External() bool {
	return n == NodeMainPass || n == NodeTonemapping
}

func (n Node) kind() stage.Kind {
	switch n {
	case NodeLUT:
		return stage.KindLUT
	case NodeRadiance:
		return stage.KindRadiance
	case NodePostProcess:
		return stage.KindPostProcess
	default:
		return -1
	}
}

// Edge means To reads what From writes.
type Edge struct {
	From Node
	To   Node
}

// order is a topological order of edges. It is also the recording order.
var order = []Node{NodeSetup, NodeLUT, NodeRadiance, NodeMainPass, NodePostProcess, NodeTonemapping}

var edges = []Edge{
	{NodeSetup, NodeLUT},
	{NodeSetup, NodeMainPass},
	{NodeLUT, NodeRadiance},
	{NodeLUT, NodePostProcess},
	{NodeRadiance, NodeMainPass},
	{NodeMainPass, NodePostProcess},
	{NodePostProcess, NodeTonemapping},
}

// Nodes returns the fixed node order every scheduler records in.
func Nodes() []Node {
	out := make([]Node, len(order))
	copy(out, order)
	return out
}

// Edges returns the dependencies of the fixed frame graph.
func Edges() []Edge {
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}
