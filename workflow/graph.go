package workflow

import (
	"fmt"
	"strings"

	"github.com/songzhibin97/sentinel/rules"
	"github.com/songzhibin97/sentinel/types"
)

// Node IDs of the default workflow.
const (
	NodeStart      = "start"
	NodeTriage     = "triage"
	NodeLegitimate = "legitimate"
	NodeFraudulent = "fraudulent"
	NodeRejected   = "rejected"
	NodeEnd        = "end"
)

// DefaultWorkflow returns the transaction risk assessment graph:
// start -> triage -> {legitimate | fraudulent | rejected} -> end.
func DefaultWorkflow() types.Workflow {
	return types.Workflow{
		Name: "transaction-risk-assessment",
		Nodes: []types.Node{
			{ID: NodeStart, Type: NodeTypeStart},
			{ID: NodeTriage, Type: NodeTypeTriage},
			{ID: NodeLegitimate, Type: NodeTypeTerminal, Recommendation: types.RecommendationApproved},
			{ID: NodeFraudulent, Type: NodeTypeTerminal, Recommendation: types.RecommendationBlocked},
			{ID: NodeRejected, Type: NodeTypeTerminal, Recommendation: types.RecommendationRejected},
			{ID: NodeEnd, Type: NodeTypeEnd},
		},
		Transitions: []types.Transition{
			{FromNodeID: NodeStart, ToNodeID: NodeTriage, Condition: "true"},
			{FromNodeID: NodeTriage, ToNodeID: NodeRejected, Condition: rules.ConditionRejected},
			{FromNodeID: NodeTriage, ToNodeID: NodeFraudulent, Condition: rules.ConditionFraudulent},
			{FromNodeID: NodeTriage, ToNodeID: NodeLegitimate, Condition: rules.ConditionLegitimate},
			{FromNodeID: NodeLegitimate, ToNodeID: NodeEnd, Condition: "true"},
			{FromNodeID: NodeFraudulent, ToNodeID: NodeEnd, Condition: "true"},
			{FromNodeID: NodeRejected, ToNodeID: NodeEnd, Condition: "true"},
		},
	}
}

// graph is a validated, read-only form of a workflow.
type graph struct {
	name      string
	nodes     map[string]types.Node
	next      map[string]string
	routes    []types.Transition
	evaluator rules.Evaluator
	start     string
	triage    string
	end       string
	rejected  string
}

func unconditional(condition string) bool {
	c := strings.TrimSpace(condition)
	return c == "" || c == "true"
}

// compile validates wf and proves, for every verdict shape the adapter can
// produce, that exactly one route matches and that it reaches the matching
// recommendation.
func compile(wf types.Workflow, evaluator rules.Evaluator) (*graph, error) {
	g := &graph{
		name:      wf.Name,
		nodes:     make(map[string]types.Node, len(wf.Nodes)),
		next:      make(map[string]string),
		evaluator: evaluator,
	}

	counts := make(map[string]int)
	for _, node := range wf.Nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("%w: node ID cannot be empty", ErrInvalidWorkflow)
		}
		if _, dup := g.nodes[node.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node ID %q", ErrInvalidWorkflow, node.ID)
		}
		switch node.Type {
		case NodeTypeStart:
			g.start = node.ID
		case NodeTypeTriage:
			g.triage = node.ID
		case NodeTypeEnd:
			g.end = node.ID
		case NodeTypeTerminal:
			if !node.Recommendation.Valid() {
				return nil, fmt.Errorf("%w: terminal node %q has invalid recommendation %q", ErrInvalidWorkflow, node.ID, node.Recommendation)
			}
			if node.Recommendation == types.RecommendationRejected {
				if g.rejected != "" {
					return nil, fmt.Errorf("%w: more than one rejected terminal node", ErrInvalidWorkflow)
				}
				g.rejected = node.ID
			}
		default:
			return nil, fmt.Errorf("%w: node %q has unknown type %q", ErrInvalidWorkflow, node.ID, node.Type)
		}
		counts[node.Type]++
		g.nodes[node.ID] = node
	}

	for _, typ := range []string{NodeTypeStart, NodeTypeTriage, NodeTypeEnd} {
		if counts[typ] != 1 {
			return nil, fmt.Errorf("%w: expected exactly one %s node, got %d", ErrInvalidWorkflow, typ, counts[typ])
		}
	}
	if g.rejected == "" {
		return nil, fmt.Errorf("%w: workflow must have a rejected terminal node", ErrInvalidWorkflow)
	}

	for _, t := range wf.Transitions {
		from, ok := g.nodes[t.FromNodeID]
		if !ok {
			return nil, fmt.Errorf("%w: transition from unknown node %q", ErrInvalidWorkflow, t.FromNodeID)
		}
		to, ok := g.nodes[t.ToNodeID]
		if !ok {
			return nil, fmt.Errorf("%w: transition to unknown node %q", ErrInvalidWorkflow, t.ToNodeID)
		}

		switch from.Type {
		case NodeTypeTriage:
			if to.Type != NodeTypeTerminal {
				return nil, fmt.Errorf("%w: triage must route to terminal nodes, %q is %s", ErrInvalidWorkflow, to.ID, to.Type)
			}
			g.routes = append(g.routes, t)
		case NodeTypeEnd:
			return nil, fmt.Errorf("%w: end node cannot have outgoing transitions", ErrInvalidWorkflow)
		default:
			if !unconditional(t.Condition) {
				return nil, fmt.Errorf("%w: transition %q -> %q must be unconditional", ErrInvalidWorkflow, t.FromNodeID, t.ToNodeID)
			}
			if _, dup := g.next[from.ID]; dup {
				return nil, fmt.Errorf("%w: node %q has more than one outgoing transition", ErrInvalidWorkflow, from.ID)
			}
			g.next[from.ID] = to.ID
		}
	}

	if g.next[g.start] != g.triage {
		return nil, fmt.Errorf("%w: start must lead to triage", ErrInvalidWorkflow)
	}
	for id, node := range g.nodes {
		if node.Type == NodeTypeTerminal && g.next[id] != g.end {
			return nil, fmt.Errorf("%w: terminal node %q must lead to end", ErrInvalidWorkflow, id)
		}
	}

	for _, v := range rules.VerdictShapes() {
		target, err := g.route(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
		}
		if got, want := g.nodes[target].Recommendation, expectedRecommendation(v); got != want {
			return nil, fmt.Errorf("%w: verdict %s routes to %q (%s), want %s",
				ErrInvalidWorkflow, describe(v), target, got, want)
		}
	}

	return g, nil
}

// expectedRecommendation is the only outcome a workflow may reach for v.
func expectedRecommendation(v types.Verdict) types.Recommendation {
	switch {
	case v.Failed():
		return types.RecommendationRejected
	case v.IsFraud():
		return types.RecommendationBlocked
	default:
		return types.RecommendationApproved
	}
}

// route selects the terminal node for a verdict. Exactly one triage
// transition must match.
func (g *graph) route(v types.Verdict) (string, error) {
	env := rules.VerdictEnv(v)
	var matched []string
	for _, t := range g.routes {
		ok, err := g.evaluator.Evaluate(t.Condition, env)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate condition '%s': %w", t.Condition, err)
		}
		if ok {
			matched = append(matched, t.ToNodeID)
		}
	}

	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNoRoute, describe(v))
	default:
		return "", fmt.Errorf("%w: %s matched %v", ErrAmbiguousRoute, describe(v), matched)
	}
}

func describe(v types.Verdict) string {
	if v.Err != nil {
		return "error:" + string(v.Err.Kind)
	}
	return string(v.Result)
}
