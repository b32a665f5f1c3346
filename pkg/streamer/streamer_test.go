package streamer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lingua/pkg/models"
	"lingua/pkg/streamer"
)

func collect(t *testing.T, ch <-chan models.StreamDelta, n int) []models.StreamDelta {
	t.Helper()
	out := make([]models.StreamDelta, 0, n)
	for len(out) < n {
		select {
		case d := <-ch:
			out = append(out, d)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d deltas", len(out), n)
		}
	}
	return out
}

func TestPublishAssignsSequentialSeqs(t *testing.T) {
	s := streamer.New()

	require.Equal(t, uint64(1), s.Text("th", "m1", "ho"))
	require.Equal(t, uint64(2), s.Text("th", "m1", "la"))
	require.Equal(t, uint64(1), s.Text("other", "m9", "x"))
	require.Equal(t, uint64(2), s.Seq("th"))
}

func TestSubscribeCatchUpThenLiveTail(t *testing.T) {
	s := streamer.New()

	s.Text("th", "m1", "a")
	s.Text("th", "m1", "b")
	s.Text("th", "m1", "c")

	ch, cancel := s.Subscribe("th", 1)
	defer cancel()

	// buffered remainder: strictly after the cursor, no duplicates, no gaps
	got := collect(t, ch, 2)
	require.Equal(t, uint64(2), got[0].Seq)
	require.Equal(t, "b", got[0].Text)
	require.Equal(t, uint64(3), got[1].Seq)

	// live tail continues seamlessly
	s.Text("th", "m1", "d")
	live := collect(t, ch, 1)
	require.Equal(t, uint64(4), live[0].Seq)
	require.Equal(t, "d", live[0].Text)
}

func TestSubscribeFromZeroReplaysAll(t *testing.T) {
	s := streamer.New()
	s.Text("th", "m1", "a")
	s.Approval("th", "m1", "ap1")

	ch, cancel := s.Subscribe("th", 0)
	defer cancel()

	got := collect(t, ch, 2)
	require.Equal(t, models.DeltaText, got[0].Kind)
	require.Equal(t, models.DeltaApproval, got[1].Kind)
	require.Equal(t, "ap1", got[1].ApprovalID)
}

func TestCancelClosesChannel(t *testing.T) {
	s := streamer.New()
	ch, cancel := s.Subscribe("th", 0)
	cancel()

	_, open := <-ch
	require.False(t, open)

	// publishing after cancel must not panic or deliver
	s.Text("th", "m1", "x")
}

func TestDiscardDropsMessageBacklog(t *testing.T) {
	s := streamer.New()

	s.Text("th", "m1", "a")
	s.Text("th", "m2", "b")
	s.Final("th", "m1", models.StatusSuccess)
	s.Discard("th", "m1")

	ch, cancel := s.Subscribe("th", 0)
	defer cancel()

	// only m2's delta remains buffered; seqs are not renumbered
	got := collect(t, ch, 1)
	require.Equal(t, "m2", got[0].Message)
	require.Equal(t, uint64(2), got[0].Seq)
	require.Equal(t, uint64(3), s.Seq("th"))
}

func TestSlowSubscriberDropped(t *testing.T) {
	s := streamer.New()

	ch, cancel := s.Subscribe("th", 0)
	defer cancel()

	// overflow the tail buffer without draining; the publisher must never
	// block and the subscriber ends up closed
	for i := 0; i < 600; i++ {
		s.Text("th", "m1", "x")
	}

	closed := false
	for !closed {
		select {
		case _, open := <-ch:
			if !open {
				closed = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("channel never closed for slow subscriber")
		}
	}
}

func TestResubscribeAfterDropResumesFromCursor(t *testing.T) {
	s := streamer.New()

	for i := 0; i < 5; i++ {
		s.Text("th", "m1", "x")
	}

	ch, cancel := s.Subscribe("th", 3)
	defer cancel()
	got := collect(t, ch, 2)
	require.Equal(t, uint64(4), got[0].Seq)
	require.Equal(t, uint64(5), got[1].Seq)
}
