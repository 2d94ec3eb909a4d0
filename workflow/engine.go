package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/songzhibin97/gkit/generator"
	"github.com/songzhibin97/sentinel/events"
	"github.com/songzhibin97/sentinel/rules"
	"github.com/songzhibin97/sentinel/storage"
	"github.com/songzhibin97/sentinel/types"
)

// Standard error definitions
var (
	ErrInvalidWorkflow = errors.New("invalid workflow")
	ErrNoRoute         = errors.New("no route matched verdict")
	ErrAmbiguousRoute  = errors.New("more than one route matched verdict")
)

const (
	// Node types
	NodeTypeStart    = "start"
	NodeTypeTriage   = "triage"
	NodeTypeTerminal = "terminal"
	NodeTypeEnd      = "end"

	// MaxSteps bounds a single evaluation. A valid graph finishes in four.
	MaxSteps = 16

	// DefaultAuditCapacity is the number of evaluations kept when no storage is supplied.
	DefaultAuditCapacity = 10000
)

// WorkflowEngine evaluates transactions through a validated workflow graph.
// It keeps no per-evaluation state: every Invoke builds its own
// WorkflowState, so the engine may be shared by concurrent callers.
type WorkflowEngine struct {
	graph     *graph
	mu        sync.RWMutex // guards graph
	triager   Triager
	evaluator rules.Evaluator
	storage   storage.Storage
	eventBus  *events.EventBus
	generate  generator.Generator
	logger    *slog.Logger

	eventBuffer int
}

// Option configures a WorkflowEngine.
type Option func(*WorkflowEngine)

// WithLogger sets the structured logger used by the engine and its event bus.
func WithLogger(logger *slog.Logger) Option {
	return func(e *WorkflowEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEventBufferSize sets how many events are queued before publishing waits
// for subscribers to catch up.
func WithEventBufferSize(size int) Option {
	return func(e *WorkflowEngine) {
		e.eventBuffer = size
	}
}

// NewWorkflowEngine creates an engine running DefaultWorkflow. A nil store
// falls back to a bounded in-memory store and a nil evaluator to the expr
// evaluator.
func NewWorkflowEngine(generate generator.Generator, store storage.Storage, evaluator rules.Evaluator, triager Triager, opts ...Option) (*WorkflowEngine, error) {
	if generate == nil {
		return nil, errors.New("generator is required")
	}
	if triager == nil {
		return nil, errors.New("triager is required")
	}
	if store == nil {
		store = storage.NewMemoryStorage(DefaultAuditCapacity)
	}
	if evaluator == nil {
		evaluator = rules.NewExprEvaluator()
	}

	g, err := compile(DefaultWorkflow(), evaluator)
	if err != nil {
		return nil, err
	}

	e := &WorkflowEngine{
		graph:       g,
		triager:     triager,
		evaluator:   evaluator,
		storage:     store,
		generate:    generate,
		logger:      slog.Default(),
		eventBuffer: events.DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.eventBus = events.NewEventBus(
		events.WithBufferSize(e.eventBuffer),
		events.WithLogger(e.logger),
	)
	return e, nil
}

// SubscribeEvent subscribes an event handler to a specific event type.
func (e *WorkflowEngine) SubscribeEvent(eventType string, handler events.EventHandler) {
	e.eventBus.Subscribe(eventType, handler)
}

// RegisterWorkflow validates wf and makes it the graph used by subsequent
// evaluations. Evaluations already running keep the graph they started with.
func (e *WorkflowEngine) RegisterWorkflow(ctx context.Context, wf types.Workflow) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	g, err := compile(wf, e.evaluator)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph = g
	return nil
}

// Route returns the terminal node the current workflow selects for v.
// It has no side effects.
func (e *WorkflowEngine) Route(v types.Verdict) (string, error) {
	g, _ := e.current()
	return g.route(v)
}

func (e *WorkflowEngine) current() (*graph, *slog.Logger) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph, e.logger
}

// Invoke evaluates one raw transaction and returns the final state. It always
// ends in exactly one terminal node; failures become a rejected recommendation.
// An evaluation is not interrupted by ctx: once started it is finished,
// audited and published even if the caller has gone away.
func (e *WorkflowEngine) Invoke(ctx context.Context, raw string) types.WorkflowState {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	g, logger := e.current()

	state := types.WorkflowState{
		ID:               e.nextID(logger),
		TransactionInput: raw,
		Path:             make([]string, 0, 4),
		CreatedAt:        started.UnixMilli(),
	}

	e.run(ctx, g, logger, &state)
	state.CompletedAt = time.Now().UnixMilli()

	e.finish(ctx, logger, state, time.Since(started))
	return state
}

func (e *WorkflowEngine) nextID(logger *slog.Logger) uint64 {
	id, err := e.generate.NextID()
	if err != nil {
		logger.Warn("id generator failed, using clock", "error", err)
		return uint64(time.Now().UnixNano())
	}
	return id
}

// run walks the graph from start to end.
func (e *WorkflowEngine) run(ctx context.Context, g *graph, logger *slog.Logger, state *types.WorkflowState) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during evaluation", "evaluation_id", state.ID, "error", r)
			e.reject(g, state, types.ErrorKindModelInvocation, fmt.Sprintf("Evaluation failed: %v.", r))
		}
	}()

	nodeID := g.start
	for step := 0; step < MaxSteps; step++ {
		node := g.nodes[nodeID]
		state.Path = append(state.Path, node.ID)
		e.publish(ctx, logger, events.Event{Type: events.EventStateChanged, EvaluationID: state.ID, Node: node.ID})

		switch node.Type {
		case NodeTypeStart:
			nodeID = g.next[node.ID]

		case NodeTypeTriage:
			verdict := e.triager.Evaluate(state.TransactionInput)
			state.Verdict = &verdict
			next, err := g.route(verdict)
			if err != nil {
				logger.Error("routing failed", "evaluation_id", state.ID, "error", err)
				e.reject(g, state, types.ErrorKindModelInvocation, fmt.Sprintf("Routing failed: %v.", err))
				return
			}
			nodeID = next

		case NodeTypeTerminal:
			state.Recommendation = node.Recommendation
			state.Justification = node.Recommendation.Justify(errorMessage(state.Verdict))
			nodeID = g.next[node.ID]

		case NodeTypeEnd:
			return
		}
	}

	e.reject(g, state, types.ErrorKindModelInvocation, fmt.Sprintf("Evaluation exceeded %d steps.", MaxSteps))
}

// reject ends the evaluation in the rejected terminal node. A verdict that is
// already an error is kept; otherwise the failure is recorded as the verdict.
func (e *WorkflowEngine) reject(g *graph, state *types.WorkflowState, kind types.ErrorKind, message string) {
	if state.Verdict == nil {
		v := types.ErrorVerdict(kind, message)
		state.Verdict = &v
	}
	state.Recommendation = types.RecommendationRejected
	state.Justification = types.RecommendationRejected.Justify(message)
	state.Path = append(state.Path, g.rejected, g.end)
}

func errorMessage(v *types.Verdict) string {
	if v == nil || v.Err == nil {
		return ""
	}
	return v.Err.Message
}

// finish records the audit trail and notifies subscribers. Neither can change
// the outcome of the evaluation.
func (e *WorkflowEngine) finish(ctx context.Context, logger *slog.Logger, state types.WorkflowState, elapsed time.Duration) {
	if err := e.storage.SaveEvaluation(ctx, state); err != nil {
		logger.Error("failed to save evaluation", "evaluation_id", state.ID, "error", err)
	}

	attrs := []any{
		"evaluation_id", state.ID,
		"recommendation", state.Recommendation,
		"duration", elapsed,
	}
	if state.Recommendation == types.RecommendationRejected {
		if state.Verdict != nil && state.Verdict.Err != nil {
			attrs = append(attrs, "error_kind", state.Verdict.Err.Kind)
		}
		logger.Warn("evaluation rejected", append(attrs, "justification", state.Justification)...)
	} else {
		logger.Info("evaluation complete", append(attrs, "verdict", state.Verdict.Result)...)
	}

	snapshot := state.Clone()
	e.publish(ctx, logger, events.Event{
		Type:         events.EventEvaluationCompleted,
		EvaluationID: state.ID,
		State:        &snapshot,
		Duration:     elapsed,
	})
	if state.Recommendation == types.RecommendationRejected {
		e.publish(ctx, logger, events.Event{
			Type:         events.EventEvaluationRejected,
			EvaluationID: state.ID,
			State:        &snapshot,
			Duration:     elapsed,
		})
	}
}

func (e *WorkflowEngine) publish(ctx context.Context, logger *slog.Logger, event events.Event) {
	if !e.eventBus.HasSubscribers(event.Type) {
		return
	}
	if err := e.eventBus.Publish(ctx, event); err != nil {
		logger.Warn("event not delivered", "event", event.Type, "evaluation_id", event.EvaluationID, "error", err)
	}
}

// GetEvaluation retrieves a stored evaluation by ID.
func (e *WorkflowEngine) GetEvaluation(ctx context.Context, id uint64) (*types.WorkflowState, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		state, err := e.storage.GetEvaluation(ctx, id)
		if err != nil {
			return nil, err
		}
		return &state, nil
	}
}

// Stop gracefully stops the workflow engine.
func (e *WorkflowEngine) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		e.eventBus.Stop()
		return nil
	}
}
