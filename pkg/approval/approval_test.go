package approval_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lingua/pkg/approval"
	"lingua/pkg/models"
	"lingua/pkg/store"
)

func pending(t *testing.T) models.ToolCallApproval {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })

	a, err := approval.Create("th1", "m1", "inv1", "alice", "create_flashcard",
		models.FlashcardArgs{Text: "la manzana", Note: "the apple"})
	require.NoError(t, err)
	require.Equal(t, models.ApprovalPending, a.Status)
	return a
}

func TestApproveCreatesFlashcard(t *testing.T) {
	a := pending(t)

	got, err := approval.Approve(a.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalApproved, got.Status)
	require.NotEmpty(t, got.FlashcardID)
	require.NotZero(t, got.ResolvedTS)

	cards, err := store.ListFlashcards("alice")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Equal(t, got.FlashcardID, cards[0].ID)
	require.Equal(t, "la manzana", cards[0].Text)
	require.Equal(t, "the apple", cards[0].Note)
	require.Equal(t, "th1", cards[0].Thread)
}

func TestRejectLeavesNoFlashcard(t *testing.T) {
	a := pending(t)

	got, err := approval.Reject(a.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalRejected, got.Status)
	require.Empty(t, got.FlashcardID)
	require.NotZero(t, got.ResolvedTS)

	cards, err := store.ListFlashcards("alice")
	require.NoError(t, err)
	require.Empty(t, cards)
}

func TestResolveOnlyOnce(t *testing.T) {
	a := pending(t)

	_, err := approval.Approve(a.ID, "alice")
	require.NoError(t, err)

	_, err = approval.Approve(a.ID, "alice")
	require.ErrorIs(t, err, models.ErrAlreadyResolved)
	_, err = approval.Reject(a.ID, "alice")
	require.ErrorIs(t, err, models.ErrAlreadyResolved)

	// the side effect happened exactly once
	cards, err := store.ListFlashcards("alice")
	require.NoError(t, err)
	require.Len(t, cards, 1)
}

func TestRejectThenApproveRefused(t *testing.T) {
	a := pending(t)

	_, err := approval.Reject(a.ID, "alice")
	require.NoError(t, err)

	_, err = approval.Approve(a.ID, "alice")
	require.ErrorIs(t, err, models.ErrAlreadyResolved)

	cards, err := store.ListFlashcards("alice")
	require.NoError(t, err)
	require.Empty(t, cards)
}

func TestResolveOwnership(t *testing.T) {
	a := pending(t)

	_, err := approval.Approve(a.ID, "mallory")
	require.ErrorIs(t, err, models.ErrNotFoundOrForbidden)
	_, err = approval.Reject(a.ID, "")
	require.ErrorIs(t, err, models.ErrNotAuthenticated)
	_, err = approval.Approve("missing", "alice")
	require.ErrorIs(t, err, models.ErrNotFoundOrForbidden)

	// still pending and resolvable by the owner
	got, err := approval.Approve(a.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalApproved, got.Status)
}

func TestListForMessageFiltersOwner(t *testing.T) {
	a := pending(t)

	other, err := approval.Create("th1", "m1", "inv2", "bob", "create_flashcard",
		models.FlashcardArgs{Text: "le pain"})
	require.NoError(t, err)
	require.NotEqual(t, a.ID, other.ID)

	list, err := approval.ListForMessage("m1", "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, a.ID, list[0].ID)

	_, err = approval.ListForMessage("m1", "")
	require.ErrorIs(t, err, models.ErrNotAuthenticated)
}
