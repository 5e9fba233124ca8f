package pitchbook

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pitchbook/internal/adapters/ai"
	"pitchbook/internal/adapters/config"
	"pitchbook/internal/domain/session"
	"pitchbook/internal/domain/workflow"
	"pitchbook/internal/events"
	"pitchbook/internal/groupchat"
	"pitchbook/internal/ratelimit"
	"pitchbook/internal/tools"
	"pitchbook/pkg/errors"
	"pitchbook/pkg/logger"
)

// Default peer groups for the primary coverage universe. Companies outside
// this map are analyzed standalone.
var peerGroups = map[string][]string{
	"Vodafone Idea":        {"BHARTIARTL", "INDUSTOWER", "TATACOMM", "RAILTEL", "TTML"},
	"Apollo Micro Systems": {"PREMIERENE", "KAYNES", "SYRMA", "VIKRAMSOLR", "AVALON"},
}

var sectionTitles = []string{
	"Company Snapshot",
	"News & Sentiment",
	"Financial Statements",
	"Valuation Tables",
	"Historical Valuation Trends",
	"SWOT Analysis",
	"Risk & Growth Drivers",
	"Investment Thesis & Recommendation",
}

// TerminationMarker ends a run when a participant emits it verbatim.
const TerminationMarker = "PITCHBOOK COMPLETE"

const selectionPrompt = "Review the conversation and decide the next step. Respond with the decision JSON only."

// Service runs pitchbook analyses: one workflow per company, one group-chat
// loop per workflow, with live progress fanned out to stream subscribers.
type Service struct {
	cfg       *config.Config
	client    ai.ChatClient
	registry  *tools.Registry
	limiter   *ratelimit.PacingLimiter
	workflows workflow.Repository
	sessions  session.Repository
	publisher *events.Publisher
	broker    *Broker

	docsIndexed bool

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	log *logger.Logger
}

// Deps carries the service's collaborators.
type Deps struct {
	Config    *config.Config
	Client    ai.ChatClient
	Registry  *tools.Registry
	Limiter   *ratelimit.PacingLimiter
	Workflows workflow.Repository
	Sessions  session.Repository
	// Publisher is optional; nil disables Kafka mirroring.
	Publisher *events.Publisher
	// DocumentsIndexed reports whether a document index was built at
	// startup.
	DocumentsIndexed bool
}

func NewService(deps Deps) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:         deps.Config,
		client:      deps.Client,
		registry:    deps.Registry,
		limiter:     deps.Limiter,
		workflows:   deps.Workflows,
		sessions:    deps.Sessions,
		publisher:   deps.Publisher,
		broker:      NewBroker(),
		docsIndexed: deps.DocumentsIndexed,
		rootCtx:     ctx,
		cancel:      cancel,
		log:         logger.Get().With("component", "pitchbook_service"),
	}
}

// StartAnalysis creates a workflow for the company and launches the run in
// the background. The returned session is the handle stream consumers use.
func (s *Service) StartAnalysis(ctx context.Context, company string) (*session.Session, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "company is required")
	}

	task := buildTask(company, s.cfg.Orchestration.TotalSections)
	wf := workflow.New(company, task)
	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, err
	}

	sess := session.New(wf.ID, company, s.cfg.Orchestration.TotalSections)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(wf, sess)
	}()

	s.log.Infof("Started analysis for %q (workflow %s)", company, wf.ID)
	return sess, nil
}

// run drives one workflow to completion. It owns the workflow's terminal
// status: exactly one of Complete or Fail is recorded.
func (s *Service) run(wf *workflow.Workflow, sess *session.Session) {
	ctx := s.rootCtx
	defer s.broker.CloseTopic(wf.ID)

	if err := s.workflows.MarkRunning(ctx, wf.ID); err != nil {
		s.log.Errorf("Failed to mark workflow %s running: %v", wf.ID, err)
		return
	}

	tracker := groupchat.NewSectionTracker(s.cfg.Orchestration.TotalSections)
	roster := BuildRoster(s.client, s.registry, RosterConfig{
		Model:            s.cfg.OpenAI.Model,
		Temperature:      s.cfg.OpenAI.Temperature,
		TotalSections:    s.cfg.Orchestration.TotalSections,
		DocumentsIndexed: s.docsIndexed,
	})
	defer s.closeRoster(roster)

	retrier := groupchat.NewCallRetrier(s.limiter, groupchat.RetryPolicy{
		MaxAttempts:      s.cfg.Retry.MaxAttempts,
		ConflictAttempts: s.cfg.Retry.ConflictAttempts,
		BaseDelay:        s.cfg.Retry.BaseDelay,
		MaxDelay:         s.cfg.Retry.MaxDelay,
		HintMargin:       s.cfg.Retry.HintMargin,
		ConflictDelay:    s.cfg.Retry.ConflictDelay,
	})

	loop := groupchat.NewRoundLoop(roster.Coordinator, roster.Participants, retrier, s.buildSink(wf, sess, tracker), groupchat.LoopConfig{
		MaxRounds:         s.cfg.Orchestration.MaxRounds,
		OuterAttempts:     s.cfg.Orchestration.OuterAttempts,
		OuterWaitStep:     s.cfg.Orchestration.OuterWaitStep,
		TerminationMarker: TerminationMarker,
		SelectionPrompt:   selectionPrompt,
	})

	err := loop.Run(ctx, wf.Task)
	if err != nil {
		s.finishFailed(ctx, wf, sess, err)
		return
	}

	tracker.FinalizeAll()
	s.finishCompleted(ctx, wf, sess, loop.Transcript(), tracker)
}

// buildSink wires loop events to the stream broker, the optional Kafka
// publisher, the section tracker, and the live session record.
func (s *Service) buildSink(wf *workflow.Workflow, sess *session.Session, tracker *groupchat.SectionTracker) groupchat.EventSink {
	return groupchat.EventSinkFunc(func(e groupchat.Event) {
		s.broker.Publish(wf.ID, e)

		// Deltas arrive once per streamed chunk; they only feed live
		// stream subscribers. Kafka and the session store see the
		// consolidated events.
		if e.Type == groupchat.EventAgentUpdate {
			return
		}

		s.publisher.PublishRunEvent(s.rootCtx, wf.ID, wf.Company, e)

		switch e.Type {
		case groupchat.EventAgentStart:
			sess.CurrentAgent = e.Agent
		case groupchat.EventAgentDone:
			sess.LastMessage = truncate(e.Message, 500)
			if changed := tracker.Observe(e.Message); len(changed) > 0 {
				s.publishSectionUpdate(wf, sess, tracker)
			}
		case groupchat.EventError:
			sess.Status = session.StatusFailed
			sess.Error = e.Message
		}

		if err := s.sessions.Save(s.rootCtx, sess); err != nil {
			s.log.Errorf("Failed to save session %s: %v", sess.ID, err)
		}
	})
}

func (s *Service) publishSectionUpdate(wf *workflow.Workflow, sess *session.Session, tracker *groupchat.SectionTracker) {
	sess.SectionsCompleted = tracker.CompletedCount()

	e := groupchat.Event{
		Type:      groupchat.EventSection,
		Timestamp: sess.UpdatedAt,
		Message:   fmt.Sprintf("%d/%d sections complete", sess.SectionsCompleted, sess.TotalSections),
		Data:      map[string]interface{}{"sections": tracker.Snapshot()},
	}
	s.broker.Publish(wf.ID, e)
	s.publisher.PublishRunEvent(s.rootCtx, wf.ID, wf.Company, e)
}

func (s *Service) finishCompleted(ctx context.Context, wf *workflow.Workflow, sess *session.Session, transcript *groupchat.Transcript, tracker *groupchat.SectionTracker) {
	messages := make(workflow.Messages, 0, transcript.Len())
	for _, m := range transcript.Messages() {
		messages = append(messages, workflow.Message{
			Author:    m.Author,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	snapshot := tracker.Snapshot()
	sections := make(workflow.Sections, 0, len(snapshot))
	for _, rec := range snapshot {
		sections = append(sections, workflow.Section{
			ID:        rec.ID,
			Title:     rec.Title,
			Status:    string(rec.Status),
			Responses: rec.Responses,
		})
	}

	if err := s.workflows.Complete(ctx, wf.ID, messages, sections); err != nil {
		s.log.Errorf("Failed to persist completed workflow %s: %v", wf.ID, err)
	}

	sess.Status = session.StatusCompleted
	sess.CurrentAgent = ""
	sess.SectionsCompleted = tracker.CompletedCount()
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.log.Errorf("Failed to save session %s: %v", sess.ID, err)
	}

	s.log.Infof("Analysis for %q completed (%d/%d sections)", wf.Company, sess.SectionsCompleted, sess.TotalSections)
}

func (s *Service) finishFailed(ctx context.Context, wf *workflow.Workflow, sess *session.Session, cause error) {
	if err := s.workflows.Fail(ctx, wf.ID, cause.Error()); err != nil {
		s.log.Errorf("Failed to persist failed workflow %s: %v", wf.ID, err)
	}

	sess.Status = session.StatusFailed
	sess.Error = cause.Error()
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.log.Errorf("Failed to save session %s: %v", sess.ID, err)
	}

	s.log.Errorf("Analysis for %q failed: %v", wf.Company, cause)
}

func (s *Service) closeRoster(r *Roster) {
	ctx := context.Background()
	if err := r.Coordinator.Close(ctx); err != nil {
		s.log.Errorf("Failed to close coordinator: %v", err)
	}
	for _, p := range r.Participants {
		if err := p.Close(ctx); err != nil {
			s.log.Errorf("Failed to close participant %s: %v", p.Name(), err)
		}
	}
}

// Subscribe attaches a stream consumer to a workflow's events.
func (s *Service) Subscribe(id uuid.UUID) (<-chan groupchat.Event, func()) {
	return s.broker.Subscribe(id)
}

// SubscribeSession resolves a session and attaches a stream consumer to its
// workflow's events. The session snapshot lets handlers emit the current
// state before live events.
func (s *Service) SubscribeSession(ctx context.Context, id uuid.UUID) (*session.Session, <-chan groupchat.Event, func(), error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	ch, cancel := s.broker.Subscribe(sess.WorkflowID)

	// The run may have finished between the read and the subscribe. The
	// terminal session is saved before its topic closes, so a second read
	// here either sees the terminal status or the subscription already
	// covers the remaining events.
	if fresh, err := s.sessions.Get(ctx, id); err == nil {
		sess = fresh
	}
	return sess, ch, cancel, nil
}

// DeleteSession removes a live session record. The durable workflow stays.
func (s *Service) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return s.sessions.Delete(ctx, id)
}

// GetSession returns the live view of one run.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	return s.sessions.Get(ctx, id)
}

// ListSessions returns all live runs.
func (s *Service) ListSessions(ctx context.Context) ([]*session.Session, error) {
	return s.sessions.List(ctx)
}

// GetWorkflow returns one persisted run.
func (s *Service) GetWorkflow(ctx context.Context, id uuid.UUID) (*workflow.Workflow, error) {
	return s.workflows.GetByID(ctx, id)
}

// ListWorkflows returns recent persisted runs.
func (s *Service) ListWorkflows(ctx context.Context, limit int) ([]*workflow.Workflow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.workflows.List(ctx, limit)
}

// ListCompletedWorkflows returns recent runs that finished successfully.
func (s *Service) ListCompletedWorkflows(ctx context.Context, limit int) ([]*workflow.Workflow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.workflows.ListByStatus(ctx, workflow.StatusCompleted, limit)
}

// AppendWorkflowMessage adds an out-of-band note to a persisted transcript,
// for operator annotations on finished runs.
func (s *Service) AppendWorkflowMessage(ctx context.Context, id uuid.UUID, author, content string) error {
	author = strings.TrimSpace(author)
	content = strings.TrimSpace(content)
	if author == "" || content == "" {
		return errors.Wrap(errors.ErrInvalidInput, "author and content are required")
	}

	return s.workflows.AppendMessage(ctx, id, workflow.Message{
		Author:    author,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// UpdateWorkflowStatus force-moves a workflow, for operator corrections of
// runs stranded by a crash.
func (s *Service) UpdateWorkflowStatus(ctx context.Context, id uuid.UUID, status workflow.Status) error {
	if !status.Valid() {
		return errors.Wrapf(errors.ErrInvalidInput, "unknown status %q", status)
	}
	return s.workflows.UpdateStatus(ctx, id, status)
}

// Shutdown cancels in-flight runs and waits for them to unwind.
func (s *Service) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

func buildTask(company string, totalSections int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PITCHBOOK GENERATION\n\nGenerate an investment pitchbook for %s", company)
	if peers, ok := peerGroups[company]; ok {
		fmt.Fprintf(&b, " (peer group: %s)", strings.Join(peers, ", "))
	}
	b.WriteString(".\n\nComplete the following sections in order:\n")

	for i := 0; i < totalSections; i++ {
		title := "Additional Analysis"
		if i < len(sectionTitles) {
			title = sectionTitles[i]
		}
		fmt.Fprintf(&b, "SECTION %d: %s\n", i+1, title)
	}

	fmt.Fprintf(&b, "\nWhen every section is complete, output: %q followed by a JSON summary.\n", TerminationMarker)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
