package store_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lingua/pkg/models"
	"lingua/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })
}

func TestTurnAndStepAllocation(t *testing.T) {
	openStore(t)

	o1, err := store.NextTurn("th1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), o1)

	o2, err := store.NextTurn("th1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), o2)

	s1, err := store.NextStep("th1", o2)
	require.NoError(t, err)
	require.Equal(t, uint64(1), s1)

	s2, err := store.NextStep("th1", o2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), s2)

	// steps of a superseded turn are refused
	_, err = store.NextStep("th1", o1)
	require.Error(t, err)

	// a fresh turn resets the step counter
	o3, err := store.NextTurn("th1")
	require.NoError(t, err)
	s, err := store.NextStep("th1", o3)
	require.NoError(t, err)
	require.Equal(t, uint64(1), s)
}

func TestTurnAllocationIndependentPerThread(t *testing.T) {
	openStore(t)

	a, err := store.NextTurn("a")
	require.NoError(t, err)
	b, err := store.NextTurn("b")
	require.NoError(t, err)
	require.Equal(t, uint64(1), a)
	require.Equal(t, uint64(1), b)
}

func TestMessagesListInOrder(t *testing.T) {
	openStore(t)

	// write out of insertion order on purpose; keys must sort by (order, step)
	for _, m := range []models.Message{
		{ID: "m3", Thread: "th", Order: 2, Step: 0, Text: "third", Status: models.StatusSuccess},
		{ID: "m1", Thread: "th", Order: 1, Step: 0, Text: "first", Status: models.StatusSuccess},
		{ID: "m2", Thread: "th", Order: 1, Step: 1, Text: "second", Status: models.StatusSuccess},
	} {
		require.NoError(t, store.SaveMessage(m))
	}

	msgs, next, err := store.ListMessages("th", "", 0)
	require.NoError(t, err)
	require.Empty(t, next)
	require.Len(t, msgs, 3)
	require.Equal(t, "m1", msgs[0].ID)
	require.Equal(t, "m2", msgs[1].ID)
	require.Equal(t, "m3", msgs[2].ID)
}

func TestMessagesPaginationCursor(t *testing.T) {
	openStore(t)

	for i := 1; i <= 5; i++ {
		m := models.Message{ID: fmt.Sprintf("m%d", i), Thread: "th", Order: uint64(i), Status: models.StatusSuccess}
		require.NoError(t, store.SaveMessage(m))
	}

	var got []string
	cursor := ""
	for {
		msgs, next, err := store.ListMessages("th", cursor, 2)
		require.NoError(t, err)
		for _, m := range msgs {
			got = append(got, m.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	require.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, got)
}

func TestGetMessageByID(t *testing.T) {
	openStore(t)

	m := models.Message{ID: "mx", Thread: "th", Order: 7, Step: 3, Text: "hi", Status: models.StatusStreaming}
	require.NoError(t, store.SaveMessage(m))

	got, err := store.GetMessage("th", "mx")
	require.NoError(t, err)
	require.Equal(t, m.Text, got.Text)
	require.Equal(t, m.Order, got.Order)
	require.Equal(t, m.Step, got.Step)

	_, err = store.GetMessage("th", "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListStreamingMessages(t *testing.T) {
	openStore(t)

	require.NoError(t, store.SaveMessage(models.Message{ID: "a", Thread: "th", Order: 1, Status: models.StatusSuccess}))
	require.NoError(t, store.SaveMessage(models.Message{ID: "b", Thread: "th", Order: 2, Status: models.StatusStreaming}))

	msgs, err := store.ListStreamingMessages("th")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "b", msgs[0].ID)
}

func TestApprovalIndexes(t *testing.T) {
	openStore(t)

	a := models.ToolCallApproval{
		ID: "ap1", Thread: "th", Message: "m1", Invocation: "inv1",
		Owner: "u1", Action: "create_flashcard", Status: models.ApprovalPending,
		CreatedTS: time.Now().UnixNano(),
	}
	require.NoError(t, store.SaveApproval(a))

	got, err := store.GetApproval("ap1")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalPending, got.Status)

	byInv, found, err := store.GetApprovalByInvocation("th", "inv1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "ap1", byInv.ID)

	_, found, err = store.GetApprovalByInvocation("th", "other")
	require.NoError(t, err)
	require.False(t, found)

	list, err := store.ListApprovalsForMessage("m1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestFlashcardsScopedToOwner(t *testing.T) {
	openStore(t)

	require.NoError(t, store.SaveFlashcard(models.Flashcard{ID: "f1", Owner: "alice", Text: "hola"}))
	require.NoError(t, store.SaveFlashcard(models.Flashcard{ID: "f2", Owner: "bob", Text: "bonjour"}))

	cards, err := store.ListFlashcards("alice")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Equal(t, "hola", cards[0].Text)
}
