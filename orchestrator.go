package depth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Request is one research invocation: a question, optional prior
// conversation, and an optional budget override.
type Request struct {
	Question string
	Messages []ChatMessage
	Budget   *Budget // nil = engine default
}

// Result is the terminal outcome of a session: either a clarification
// question for the user, or the final cited report.
type Result struct {
	SessionID string

	// Terminal clarification: set when the engine needs user input before
	// researching. No report is produced.
	NeedsClarification    bool
	ClarificationQuestion string

	Brief            string
	Report           string
	References       []string
	Findings         []Finding
	Iterations       int
	UnitsUsed        int
	CompletionReason string
	Quality          float64
	Usage            Usage
	Duration         time.Duration
}

// Engine orchestrates deep-research sessions over a Provider and a
// ToolProvider. Construct once with New; each Run call is an independent
// session.
type Engine struct {
	provider Provider
	tools    ToolProvider
	budget   Budget
	logger   *slog.Logger
	tracer   Tracer
	archive  Archive
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer enables span emission (see the observer package).
func WithTracer(t Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithBudget sets the default budget for sessions that don't carry their own.
func WithBudget(b Budget) Option {
	return func(e *Engine) { e.budget = b.normalize() }
}

// WithArchive persists completed reports to the given store.
func WithArchive(a Archive) Option {
	return func(e *Engine) { e.archive = a }
}

// nopLogger is a logger that discards all output. Used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates an Engine. Fails fast on missing collaborators and on an empty
// researcher tool set — both are configuration errors that no session could
// recover from.
func New(p Provider, tools ToolProvider, opts ...Option) (*Engine, error) {
	if p == nil {
		return nil, errors.New("depth: provider is required")
	}
	if tools == nil {
		return nil, errors.New("depth: tool provider is required")
	}
	e := &Engine{
		provider: p,
		tools:    tools,
		budget:   DefaultBudget(),
		logger:   nopLogger,
	}
	for _, opt := range opts {
		opt(e)
	}

	defs, err := tools.ListTools(context.Background(), RoleResearcher)
	if err != nil {
		return nil, fmt.Errorf("depth: listing researcher tools: %w", err)
	}
	if len(defs) == 0 {
		return nil, errors.New("depth: no tools available for researcher role")
	}
	return e, nil
}

// Run executes one session to completion without progress streaming.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	return e.run(ctx, req, newProgressTracker(ctx, nil))
}

// RunStream executes one session, emitting ProgressEvents into ch. The
// channel is closed exactly once — on completion, terminal clarification, or
// error. Consumers should drain until closed.
func (e *Engine) RunStream(ctx context.Context, req Request, ch chan<- ProgressEvent) (Result, error) {
	tracker := newProgressTracker(ctx, ch)
	defer tracker.close()
	return e.run(ctx, req, tracker)
}

func (e *Engine) run(ctx context.Context, req Request, tracker *progressTracker) (Result, error) {
	start := time.Now()

	if req.Question == "" && len(req.Messages) == 0 {
		err := errors.New("depth: request has no question")
		tracker.failed(err)
		return Result{}, err
	}

	budget := e.budget
	if req.Budget != nil {
		budget = req.Budget.normalize()
	}

	conversation := append([]ChatMessage{}, req.Messages...)
	if req.Question != "" {
		conversation = append(conversation, UserMessage(req.Question))
	}
	question := req.Question
	if question == "" {
		question = conversation[len(conversation)-1].Content
	}

	sess := newSession(question, conversation)

	sessCtx := ctx
	var span Span
	if e.tracer != nil {
		sessCtx, span = e.tracer.Start(ctx, "research.session",
			StringAttr("session", sess.ID),
			IntAttr("max_iterations", budget.MaxResearcherIterations))
		defer span.End()
	}
	e.logger.Info("research session started", "session", sess.ID, "question", truncateStr(question, 80))

	// Clarification gate.
	tracker.clarifying()
	outcome := runClarification(sessCtx, e.provider, e.logger, conversation, budget.AllowClarification)
	sess.Usage.Add(outcome.usage)
	if outcome.needsClarification {
		e.logger.Info("session needs clarification", "session", sess.ID)
		tracker.emit(StageClarifying, 0, outcome.question, nil)
		tracker.close()
		return Result{
			SessionID:             sess.ID,
			NeedsClarification:    true,
			ClarificationQuestion: outcome.question,
			Usage:                 sess.Usage,
			Duration:              time.Since(start),
		}, nil
	}
	if outcome.verification != "" {
		conversation = append(conversation, AssistantMessage(outcome.verification))
	}

	// Research brief.
	sess.Status = StatusBriefing
	tracker.briefStarted()
	brief, usage, err := runBrief(sessCtx, e.provider, e.logger, question, conversation)
	sess.Usage.Add(usage)
	if err != nil {
		tracker.failed(err)
		return Result{SessionID: sess.ID, Usage: sess.Usage}, err
	}
	sess.Brief = brief
	sess.Messages = []ChatMessage{supervisorSeed(brief, budget)}
	tracker.briefDone()

	// Supervised research rounds.
	sup := &supervisor{
		provider: e.provider,
		budget:   budget,
		logger:   e.logger,
		tracer:   e.tracer,
		progress: tracker,
		dispatcher: &dispatcher{
			budget: budget,
			logger: e.logger,
			tracer: e.tracer,
			newUnit: func(topic string) *researchUnit {
				return &researchUnit{
					id:       NewID(),
					topic:    topic,
					provider: e.provider,
					tools:    e.tools,
					budget:   budget,
					logger:   e.logger,
					tracer:   e.tracer,
					progress: tracker,
				}
			},
		},
	}
	if err := sup.run(sessCtx, sess); err != nil {
		sess.Status = StatusFailed
		tracker.failed(err)
		return Result{SessionID: sess.ID, Usage: sess.Usage}, err
	}

	// Final report.
	sess.Status = StatusReporting
	findings := dedupFindings(sess.Notes)
	tracker.reportStarted(len(findings))
	synth := &reportSynthesizer{provider: e.provider, logger: e.logger, tracer: e.tracer}
	report, refs, usage, err := synth.synthesize(sessCtx, sess.Brief, findings)
	sess.Usage.Add(usage)
	if err != nil {
		sess.Status = StatusFailed
		tracker.failed(err)
		return Result{SessionID: sess.ID, Usage: sess.Usage}, err
	}
	tracker.reportDrafted()
	sess.Status = StatusCompleted

	result := Result{
		SessionID:        sess.ID,
		Brief:            sess.Brief,
		Report:           report,
		References:       refs,
		Findings:         findings,
		Iterations:       sess.ResearchIterations,
		UnitsUsed:        sess.UsedResearchUnits,
		CompletionReason: sess.CompletionReason,
		Quality:          sess.FinalQuality,
		Usage:            sess.Usage,
		Duration:         time.Since(start),
	}

	if e.archive != nil {
		if err := e.archive.SaveReport(sessCtx, ArchivedReport{
			SessionID:        sess.ID,
			Question:         question,
			Brief:            sess.Brief,
			Report:           report,
			References:       refs,
			FindingCount:     len(findings),
			Iterations:       sess.ResearchIterations,
			UnitsUsed:        sess.UsedResearchUnits,
			CompletionReason: sess.CompletionReason,
			InputTokens:      sess.Usage.InputTokens,
			OutputTokens:     sess.Usage.OutputTokens,
			DurationMS:       result.Duration.Milliseconds(),
			CreatedAt:        NowUnix(),
		}); err != nil {
			e.logger.Warn("archiving report failed", "session", sess.ID, "err", err)
		}
	}

	tracker.completed()
	e.logger.Info("research session completed",
		"session", sess.ID,
		"rounds", sess.ResearchIterations,
		"units", sess.UsedResearchUnits,
		"findings", len(findings),
		"duration", result.Duration)
	return result, nil
}
