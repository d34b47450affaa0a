package graph

// Node identifies a control node of the task graph.
type Node string

const (
	NodeAgent     Node = "agent"
	NodeCheckLog  Node = "check_log"
	NodeVerify    Node = "verify"
	NodeHumanHelp Node = "human_help"
	NodeHumanGate Node = "human_gate"
	NodeDone      Node = "done" // terminal
)

// Edges lists every transition the executor can take.
var Edges = map[Node][]Node{
	NodeAgent:     {NodeAgent, NodeHumanHelp, NodeCheckLog, NodeVerify, NodeHumanGate, NodeDone},
	NodeCheckLog:  {NodeAgent, NodeVerify, NodeHumanGate, NodeDone},
	NodeVerify:    {NodeAgent, NodeHumanGate, NodeDone},
	NodeHumanGate: {NodeAgent, NodeDone},
	NodeHumanHelp: {NodeAgent},
}

// Allowed reports whether from -> to is a defined edge.
func Allowed(from, to Node) bool {
	for _, n := range Edges[from] {
		if n == to {
			return true
		}
	}
	return false
}

// routes holds which optional nodes a graph has.
type routes struct {
	checkLog  bool
	verify    bool
	humanGate bool
}

// completion returns the first configured node after from in the order
// check_log, verify, human_gate, falling through to done.
func (r routes) completion(from Node) Node {
	order := []struct {
		node Node
		on   bool
	}{
		{NodeCheckLog, r.checkLog},
		{NodeVerify, r.verify},
		{NodeHumanGate, r.humanGate},
	}
	passed := from == NodeAgent
	for _, o := range order {
		if !passed {
			passed = o.node == from
			continue
		}
		if o.on {
			return o.node
		}
	}
	return NodeDone
}

func (r routes) afterAgent(looped, final bool) Node {
	switch {
	case looped:
		return NodeHumanHelp
	case !final:
		return NodeAgent
	default:
		return r.completion(NodeAgent)
	}
}

func (r routes) afterCheckLog(logsOK bool) Node {
	if !logsOK {
		return NodeAgent
	}
	return r.completion(NodeCheckLog)
}

func (r routes) afterVerify(passed bool) Node {
	if !passed {
		return NodeAgent
	}
	return r.completion(NodeVerify)
}

func (r routes) afterHumanGate(accepted bool) Node {
	if accepted {
		return NodeDone
	}
	return NodeAgent
}

func (r routes) afterHumanHelp() Node {
	return NodeAgent
}
