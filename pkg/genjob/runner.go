// Package genjob schedules and runs background generation jobs. One job
// per user submission, at most one active job per thread, fire-and-forget
// from the submitting request: completion and failure are observed only
// through the message ledger and the delta streamer.
package genjob

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lingua/pkg/ledger"
	"lingua/pkg/llm"
	"lingua/pkg/logger"
	"lingua/pkg/models"
	"lingua/pkg/store"
	"lingua/pkg/streamer"
	"lingua/pkg/telemetry"
)

const systemPrompt = "You are a friendly language tutor. Answer concisely, " +
	"correct the learner's mistakes gently, and when a word or sentence is " +
	"worth memorizing, suggest a flashcard with the create_flashcard tool."

// Options tune the scheduler; zero values take defaults.
type Options struct {
	QueueCapacity int
	Workers       int
	MaxSteps      int
	Timeout       time.Duration
}

// Scheduler owns the generation queue, the per-thread claims, and the
// worker pool that drives the model.
type Scheduler struct {
	provider llm.Provider
	st       *streamer.Streamer
	queue    *Queue
	claims   claimSet
	timeout  time.Duration
	maxSteps int
	workers  int

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler wires a scheduler; call Start to launch workers.
func NewScheduler(provider llm.Provider, st *streamer.Streamer, opts Options) *Scheduler {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = defaultQueueCapacity
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	return &Scheduler{
		provider: provider,
		st:       st,
		queue:    NewQueue(opts.QueueCapacity),
		timeout:  opts.Timeout,
		maxSteps: opts.MaxSteps,
		workers:  opts.Workers,
		stop:     make(chan struct{}),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.queue.RunWorker(s.stop, s.handle)
		}()
	}
	logger.Log.Info("generation_workers_started", zap.Int("workers", s.workers))
}

// Stop halts workers after the current jobs finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.queue.Close()
	})
	s.wg.Wait()
}

// Submit claims the thread and enqueues exactly one generation job for the
// appended user message. A second submission while a job is in flight is
// rejected with ErrGenerationInProgress; callers should retry after the
// current generation settles. Returns before any generation work happens.
func (s *Scheduler) Submit(threadID, owner, promptMsgID, promptText string) error {
	if !s.claims.TryClaim(threadID) {
		return models.ErrGenerationInProgress
	}
	job := &Job{Thread: threadID, Prompt: promptMsgID, Owner: owner, PromptText: []byte(promptText)}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.claims.Release(threadID)
		return err
	}
	telemetry.GenJobsEnqueued.Inc()
	logger.Log.Info("generation_enqueued", zap.String("thread", threadID), zap.String("prompt", promptMsgID))
	return nil
}

// SubmitMessage claims the thread, appends the user's message through
// appendFn, and enqueues a generation job for it. Claiming before the
// append makes the reject decision atomic with the write: a submission
// that loses the race leaves no message behind. The claim is released on
// any failure so the thread never wedges.
func (s *Scheduler) SubmitMessage(threadID, owner string, appendFn func() (models.Message, error)) (models.Message, error) {
	if !s.claims.TryClaim(threadID) {
		return models.Message{}, models.ErrGenerationInProgress
	}
	m, err := appendFn()
	if err != nil {
		s.claims.Release(threadID)
		return models.Message{}, err
	}
	job := &Job{Thread: threadID, Prompt: m.ID, Owner: owner, PromptText: []byte(m.Text)}
	if err := s.queue.TryEnqueue(job); err != nil {
		// back out the append so a capacity reject leaves no trace,
		// same as the busy-thread reject
		if derr := store.DeleteMessage(m); derr != nil {
			logger.Log.Error("submit_rollback_failed", zap.String("thread", threadID), zap.String("msg", m.ID), zap.Error(derr))
		}
		s.claims.Release(threadID)
		return models.Message{}, err
	}
	telemetry.GenJobsEnqueued.Inc()
	logger.Log.Info("generation_enqueued", zap.String("thread", threadID), zap.String("prompt", m.ID))
	return m, nil
}

// Busy reports whether the thread currently holds a generation claim.
func (s *Scheduler) Busy(threadID string) bool { return s.claims.Held(threadID) }

func (s *Scheduler) handle(job *Job) {
	threadID := job.Thread
	defer s.claims.Release(threadID)
	s.run(threadID, job.Owner, string(job.PromptText))
}

// run drives one generation: a step-limited model loop that streams text
// deltas, intercepts gated tool calls, and finalizes every message it
// opened. All failure paths, including timeout and provider panic, end
// with the owned streaming message finalized as failed so the ledger never
// retains a permanently streaming turn.
func (s *Scheduler) run(threadID, owner, promptText string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	started := time.Now()

	current, err := ledger.BeginAssistantMessage(threadID)
	if err != nil {
		logger.Log.Error("generation_begin_failed", zap.String("thread", threadID), zap.Error(err))
		telemetry.GenJobs.WithLabelValues("error").Inc()
		return
	}

	var text strings.Builder
	outcome := "success"
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("generation_panic", zap.String("thread", threadID), zap.Any("panic", r))
			s.fail(threadID, current.ID, text.String())
			outcome = "panic"
		}
		telemetry.GenJobs.WithLabelValues(outcome).Inc()
		telemetry.GenDuration.Observe(time.Since(started).Seconds())
	}()

	turns := s.historyTurns(threadID, current.ID)
	if len(turns) == 0 && promptText != "" {
		turns = []llm.Turn{{Role: models.RoleUser, Text: promptText}}
	}

	for step := 0; step < s.maxSteps; step++ {
		text.Reset()
		var calls []llm.ToolCall

		msgID := current.ID
		emit := func(ev llm.Event) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if ev.Text != "" {
				text.WriteString(ev.Text)
				s.st.Text(threadID, msgID, ev.Text)
				telemetry.DeltasPublished.Inc()
				if err := ledger.UpdateStreamingText(threadID, msgID, text.String()); err != nil {
					logger.Log.Warn("streaming_text_update_failed", zap.String("msg", msgID), zap.Error(err))
				}
			}
			if ev.Call != nil {
				calls = append(calls, *ev.Call)
			}
			return nil
		}

		req := llm.Request{System: systemPrompt, Turns: turns, Tools: toolDefs()}
		if err := s.provider.Generate(ctx, req, emit); err != nil {
			logger.Log.Error("generation_step_failed",
				zap.String("thread", threadID),
				zap.String("msg", current.ID),
				zap.Int("step", step),
				zap.Error(err))
			s.fail(threadID, current.ID, text.String())
			outcome = "failed"
			return
		}

		if len(calls) == 0 {
			s.finish(threadID, current.ID, text.String())
			return
		}

		// the tool-call step itself is complete; its side effects are
		// gated behind approvals created by the interceptor
		s.finish(threadID, current.ID, text.String())

		results := make([]llm.ToolResult, 0, len(calls))
		for _, call := range calls {
			results = append(results, intercept(threadID, current.ID, owner, call, s.st))
		}
		toolMsg, err := ledger.AppendStep(threadID, current, models.RoleToolResult, joinOutputs(results), models.StatusSuccess)
		if err != nil {
			logger.Log.Error("tool_result_append_failed", zap.String("thread", threadID), zap.Error(err))
			outcome = "failed"
			return
		}
		s.st.Final(threadID, toolMsg.ID, models.StatusSuccess)

		turns = append(turns,
			llm.Turn{Role: models.RoleAssistant, Text: text.String(), Calls: calls},
			llm.Turn{Role: models.RoleToolResult, Results: results},
		)

		next, err := ledger.AppendStep(threadID, current, models.RoleAssistant, "", models.StatusStreaming)
		if err != nil {
			logger.Log.Error("followup_step_append_failed", zap.String("thread", threadID), zap.Error(err))
			outcome = "failed"
			return
		}
		current = next
	}

	// step budget exhausted: close out whatever text the last step holds
	logger.Log.Warn("generation_step_limit_reached", zap.String("thread", threadID), zap.Int("max_steps", s.maxSteps))
	s.finish(threadID, current.ID, text.String())
}

func (s *Scheduler) finish(threadID, msgID, finalText string) {
	if err := ledger.FinalizeMessage(threadID, msgID, finalText, models.StatusSuccess); err != nil {
		logger.Log.Error("finalize_success_failed", zap.String("msg", msgID), zap.Error(err))
	}
	s.st.Final(threadID, msgID, models.StatusSuccess)
	s.st.Discard(threadID, msgID)
}

// fail finalizes the message as failed, keeping any partial text already
// streamed so viewers can render it annotated as incomplete.
func (s *Scheduler) fail(threadID, msgID, partial string) {
	if err := ledger.FinalizeMessage(threadID, msgID, partial, models.StatusFailed); err != nil {
		logger.Log.Error("finalize_failed_failed", zap.String("msg", msgID), zap.Error(err))
	}
	s.st.Final(threadID, msgID, models.StatusFailed)
	s.st.Discard(threadID, msgID)
}

// historyTurns builds the prompt from the thread's terminal user and
// assistant turns, excluding the message this job just opened.
func (s *Scheduler) historyTurns(threadID, currentMsgID string) []llm.Turn {
	msgs, err := ledger.History(threadID)
	if err != nil {
		logger.Log.Warn("history_load_failed", zap.String("thread", threadID), zap.Error(err))
		return nil
	}
	var turns []llm.Turn
	for _, m := range msgs {
		if m.ID == currentMsgID || m.Status != models.StatusSuccess {
			continue
		}
		switch m.Role {
		case models.RoleUser, models.RoleAssistant:
			if m.Text != "" {
				turns = append(turns, llm.Turn{Role: m.Role, Text: m.Text})
			}
		}
	}
	return turns
}

func joinOutputs(results []llm.ToolResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Output)
	}
	return strings.Join(parts, "\n")
}
