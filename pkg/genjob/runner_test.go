package genjob_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lingua/pkg/genjob"
	"lingua/pkg/ledger"
	"lingua/pkg/llm"
	"lingua/pkg/models"
	"lingua/pkg/store"
	"lingua/pkg/streamer"
	"lingua/pkg/threads"
)

func setup(t *testing.T) (models.Thread, *streamer.Streamer) {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })
	th, err := threads.CreateThread("alice", "practice")
	require.NoError(t, err)
	return th, streamer.New()
}

func startScheduler(t *testing.T, p llm.Provider, st *streamer.Streamer, opts genjob.Options) *genjob.Scheduler {
	t.Helper()
	sched := genjob.NewScheduler(p, st, opts)
	sched.Start()
	t.Cleanup(sched.Stop)
	return sched
}

func submit(t *testing.T, sched *genjob.Scheduler, th models.Thread, text string) models.Message {
	t.Helper()
	m, err := sched.SubmitMessage(th.ID, "alice", func() (models.Message, error) {
		return ledger.AppendUserMessage(th.ID, "alice", text)
	})
	require.NoError(t, err)
	return m
}

// waitDeltas reads the stream until a final delta with the wanted status
// arrives, returning everything seen up to and including it.
func waitDeltas(t *testing.T, ch <-chan models.StreamDelta, status models.MessageStatus) []models.StreamDelta {
	t.Helper()
	var seen []models.StreamDelta
	deadline := time.After(5 * time.Second)
	for {
		select {
		case d := <-ch:
			seen = append(seen, d)
			if d.Kind == models.DeltaFinal && d.Status == status {
				return seen
			}
		case <-deadline:
			t.Fatalf("no final delta with status %q (saw %d deltas)", status, len(seen))
		}
	}
}

func TestGenerationStreamsAndFinalizes(t *testing.T) {
	th, st := setup(t)
	p := llm.NewScripted([]llm.Event{{Text: "Buenos "}, {Text: "dias."}})
	sched := startScheduler(t, p, st, genjob.Options{Workers: 1})

	ch, cancel := st.Subscribe(th.ID, 0)
	defer cancel()

	submit(t, sched, th, "hola")
	seen := waitDeltas(t, ch, models.StatusSuccess)

	var fragments string
	for _, d := range seen {
		if d.Kind == models.DeltaText {
			fragments += d.Text
		}
	}
	require.Equal(t, "Buenos dias.", fragments)

	msgs, _, err := store.ListMessages(th.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, models.RoleUser, msgs[0].Role)
	require.Equal(t, models.RoleAssistant, msgs[1].Role)
	require.Equal(t, models.StatusSuccess, msgs[1].Status)
	require.Equal(t, "Buenos dias.", msgs[1].Text)

	// deltas of the finalized message are discarded; a late subscriber
	// from zero only sees what is still buffered
	require.Eventually(t, func() bool {
		late, c := st.Subscribe(th.ID, 0)
		defer c()
		select {
		case d := <-late:
			return d.Kind != models.DeltaText
		default:
			return true
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGenerationProviderErrorFinalizesFailed(t *testing.T) {
	th, st := setup(t)
	p := llm.NewScripted()
	p.Err = models.ErrUpstreamFailure
	sched := startScheduler(t, p, st, genjob.Options{Workers: 1})

	ch, cancel := st.Subscribe(th.ID, 0)
	defer cancel()

	submit(t, sched, th, "hola")
	waitDeltas(t, ch, models.StatusFailed)

	msgs, _, err := store.ListMessages(th.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, models.StatusFailed, msgs[1].Status)

	// the claim is released after a failed run
	require.Eventually(t, func() bool { return !sched.Busy(th.ID) }, 2*time.Second, 10*time.Millisecond)
}

func TestGenerationTimeoutFinalizesFailed(t *testing.T) {
	th, st := setup(t)
	p := llm.NewScripted([]llm.Event{{Text: "slow"}})
	p.Delay = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	sched := startScheduler(t, p, st, genjob.Options{Workers: 1, Timeout: 100 * time.Millisecond})

	ch, cancel := st.Subscribe(th.ID, 0)
	defer cancel()

	submit(t, sched, th, "hola")
	waitDeltas(t, ch, models.StatusFailed)
}

func TestConcurrentSubmissionRejected(t *testing.T) {
	th, st := setup(t)
	gate := make(chan struct{})
	p := llm.NewScripted([]llm.Event{{Text: "ok"}})
	p.Delay = func(ctx context.Context) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	sched := startScheduler(t, p, st, genjob.Options{Workers: 1})

	ch, cancel := st.Subscribe(th.ID, 0)
	defer cancel()

	submit(t, sched, th, "first")
	require.True(t, sched.Busy(th.ID))

	// second submission while the claim is held: rejected, nothing appended
	_, err := sched.SubmitMessage(th.ID, "alice", func() (models.Message, error) {
		t.Fatal("append must not run for a rejected submission")
		return models.Message{}, nil
	})
	require.ErrorIs(t, err, models.ErrGenerationInProgress)

	close(gate)
	waitDeltas(t, ch, models.StatusSuccess)
	require.Eventually(t, func() bool { return !sched.Busy(th.ID) }, 2*time.Second, 10*time.Millisecond)

	// the thread accepts submissions again once the job settled
	submit(t, sched, th, "second")
}

// drainUntilIdle waits for the thread's claim to clear, then drains every
// delta already delivered. Multi-step jobs publish finals per step, so
// waiting on a single final would cut the stream short.
func drainUntilIdle(t *testing.T, sched *genjob.Scheduler, threadID string, ch <-chan models.StreamDelta) []models.StreamDelta {
	t.Helper()
	require.Eventually(t, func() bool { return !sched.Busy(threadID) }, 5*time.Second, 10*time.Millisecond)
	var seen []models.StreamDelta
	for {
		select {
		case d := <-ch:
			seen = append(seen, d)
		case <-time.After(200 * time.Millisecond):
			return seen
		}
	}
}

func TestToolCallCreatesPendingApproval(t *testing.T) {
	th, st := setup(t)
	p := llm.NewScripted(
		[]llm.Event{
			{Text: "Try this word. "},
			{Call: &llm.ToolCall{ID: "inv1", Name: genjob.FlashcardTool, Args: map[string]any{"text": "la manzana", "note": "the apple"}}},
		},
		[]llm.Event{{Text: "Saved for review."}},
	)
	sched := startScheduler(t, p, st, genjob.Options{Workers: 1})

	ch, cancel := st.Subscribe(th.ID, 0)
	defer cancel()

	submit(t, sched, th, "how do I say apple?")
	seen := drainUntilIdle(t, sched, th.ID, ch)

	var approvalID string
	for _, d := range seen {
		if d.Kind == models.DeltaApproval {
			approvalID = d.ApprovalID
		}
	}
	require.NotEmpty(t, approvalID)

	a, err := store.GetApproval(approvalID)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalPending, a.Status)
	require.Equal(t, "alice", a.Owner)
	require.Equal(t, "la manzana", a.Args.Text)
	require.Empty(t, a.FlashcardID)

	// no flashcard exists before the user decides
	cards, err := store.ListFlashcards("alice")
	require.NoError(t, err)
	require.Empty(t, cards)

	// ledger shows the full turn: user, assistant step, tool result,
	// follow-up assistant reply sharing one order
	msgs, _, err := store.ListMessages(th.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	require.Equal(t, models.RoleToolResult, msgs[2].Role)
	require.Equal(t, msgs[1].Order, msgs[2].Order)
	require.Equal(t, msgs[1].Order, msgs[3].Order)
	require.Equal(t, "Saved for review.", msgs[3].Text)
}

func TestToolCallRetryDeduplicated(t *testing.T) {
	th, st := setup(t)
	call := &llm.ToolCall{ID: "inv1", Name: genjob.FlashcardTool, Args: map[string]any{"text": "el pan", "note": "the bread"}}
	p := llm.NewScripted(
		[]llm.Event{{Call: call}},
		[]llm.Event{{Call: call}}, // model retries the same invocation
		[]llm.Event{{Text: "done"}},
	)
	sched := startScheduler(t, p, st, genjob.Options{Workers: 1})

	ch, cancel := st.Subscribe(th.ID, 0)
	defer cancel()

	submit(t, sched, th, "bread?")
	seen := drainUntilIdle(t, sched, th.ID, ch)

	approvals := 0
	for _, d := range seen {
		if d.Kind == models.DeltaApproval {
			approvals++
		}
	}
	require.Equal(t, 1, approvals)
}

func TestInvalidToolArgsCreateNoApproval(t *testing.T) {
	th, st := setup(t)
	p := llm.NewScripted(
		[]llm.Event{{Call: &llm.ToolCall{ID: "inv1", Name: genjob.FlashcardTool, Args: map[string]any{"note": "missing text"}}}},
		[]llm.Event{{Text: "sorry"}},
	)
	sched := startScheduler(t, p, st, genjob.Options{Workers: 1})

	ch, cancel := st.Subscribe(th.ID, 0)
	defer cancel()

	submit(t, sched, th, "hola")
	seen := drainUntilIdle(t, sched, th.ID, ch)

	require.NotEmpty(t, seen)
	for _, d := range seen {
		require.NotEqual(t, models.DeltaApproval, d.Kind)
	}
}

func TestQueueFullReleasesClaim(t *testing.T) {
	th, st := setup(t)
	th2, err := threads.CreateThread("alice", "second")
	require.NoError(t, err)

	// no workers draining: capacity 1 fills with the first job
	sched := genjob.NewScheduler(llm.NewScripted(), st, genjob.Options{Workers: 1, QueueCapacity: 1})

	submit(t, sched, th, "first")

	_, err = sched.SubmitMessage(th2.ID, "alice", func() (models.Message, error) {
		return ledger.AppendUserMessage(th2.ID, "alice", "second")
	})
	require.ErrorIs(t, err, genjob.ErrQueueFull)
	require.False(t, sched.Busy(th2.ID))

	// the capacity reject backs out the appended message
	msgs, _, err := store.ListMessages(th2.ID, "", 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
}
