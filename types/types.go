package types

// Workflow defines the structure of a workflow.
type Workflow struct {
	Name        string       `json:"name"`
	Nodes       []Node       `json:"nodes"`
	Transitions []Transition `json:"transitions"`
}

// Node represents a node in the workflow.
type Node struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`                     // "start", "triage", "terminal", "end"
	Recommendation Recommendation `json:"recommendation,omitempty"` // terminal nodes only
}

// Transition defines the transition rules between nodes.
type Transition struct {
	FromNodeID string `json:"from_node_id"`
	ToNodeID   string `json:"to_node_id"`
	Condition  string `json:"condition"` // expr over the verdict environment; "true" for unconditional edges
}

// WorkflowState is the record of a single evaluation. It is created by the
// engine for one invocation and handed back to the caller when it ends.
type WorkflowState struct {
	ID               uint64         `json:"id,string"`
	TransactionInput string         `json:"transaction_details"`
	Verdict          *Verdict       `json:"verdict,omitempty"`
	Recommendation   Recommendation `json:"recommendation,omitempty"`
	Justification    string         `json:"justification,omitempty"`
	Path             []string       `json:"path"`
	CreatedAt        int64          `json:"created_at"`
	CompletedAt      int64          `json:"completed_at"`
}

// Clone returns a deep copy of the state.
func (s WorkflowState) Clone() WorkflowState {
	out := s
	if s.Verdict != nil {
		v := *s.Verdict
		if v.Err != nil {
			e := *v.Err
			v.Err = &e
		}
		out.Verdict = &v
	}
	if s.Path != nil {
		out.Path = append([]string(nil), s.Path...)
	}
	return out
}
