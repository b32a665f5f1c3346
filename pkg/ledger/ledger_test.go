package ledger_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lingua/pkg/ledger"
	"lingua/pkg/models"
	"lingua/pkg/store"
	"lingua/pkg/threads"
)

func setup(t *testing.T) models.Thread {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })
	th, err := threads.CreateThread("alice", "practice")
	require.NoError(t, err)
	return th
}

func TestAppendUserMessage(t *testing.T) {
	th := setup(t)

	m, err := ledger.AppendUserMessage(th.ID, "alice", "  hola  ")
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, m.Role)
	require.Equal(t, models.StatusSuccess, m.Status)
	require.Equal(t, "hola", m.Text)
	require.Equal(t, uint64(1), m.Order)
	require.Equal(t, uint64(0), m.Step)

	m2, err := ledger.AppendUserMessage(th.ID, "alice", "que tal")
	require.NoError(t, err)
	require.Equal(t, uint64(2), m2.Order)
}

func TestAppendUserMessageValidation(t *testing.T) {
	th := setup(t)

	_, err := ledger.AppendUserMessage(th.ID, "alice", "   ")
	require.ErrorIs(t, err, models.ErrValidationFailed)

	_, err = ledger.AppendUserMessage(th.ID, "alice", strings.Repeat("x", ledger.MaxTextLen+1))
	require.ErrorIs(t, err, models.ErrValidationFailed)
}

func TestAppendUserMessageOwnership(t *testing.T) {
	th := setup(t)

	_, err := ledger.AppendUserMessage(th.ID, "mallory", "hi")
	require.ErrorIs(t, err, models.ErrNotFoundOrForbidden)

	_, err = ledger.AppendUserMessage(th.ID, "", "hi")
	require.ErrorIs(t, err, models.ErrNotAuthenticated)

	_, err = ledger.AppendUserMessage("no-such-thread", "alice", "hi")
	require.ErrorIs(t, err, models.ErrNotFoundOrForbidden)
}

func TestAssistantTurnSteps(t *testing.T) {
	th := setup(t)

	_, err := ledger.AppendUserMessage(th.ID, "alice", "hola")
	require.NoError(t, err)

	a, err := ledger.BeginAssistantMessage(th.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusStreaming, a.Status)
	require.Equal(t, uint64(2), a.Order)
	require.Equal(t, uint64(0), a.Step)

	tr, err := ledger.AppendStep(th.ID, a, models.RoleToolResult, "recorded", models.StatusSuccess)
	require.NoError(t, err)
	require.Equal(t, a.Order, tr.Order)
	require.Equal(t, uint64(1), tr.Step)

	follow, err := ledger.AppendStep(th.ID, a, models.RoleAssistant, "", models.StatusStreaming)
	require.NoError(t, err)
	require.Equal(t, uint64(2), follow.Step)
}

func TestStreamingTextUpdates(t *testing.T) {
	th := setup(t)

	a, err := ledger.BeginAssistantMessage(th.ID)
	require.NoError(t, err)

	require.NoError(t, ledger.UpdateStreamingText(th.ID, a.ID, "Buenos"))
	require.NoError(t, ledger.UpdateStreamingText(th.ID, a.ID, "Buenos dias"))

	got, err := store.GetMessage(th.ID, a.ID)
	require.NoError(t, err)
	require.Equal(t, "Buenos dias", got.Text)
	require.Equal(t, models.StatusStreaming, got.Status)
}

func TestFinalizeMessage(t *testing.T) {
	th := setup(t)

	a, err := ledger.BeginAssistantMessage(th.ID)
	require.NoError(t, err)

	require.NoError(t, ledger.FinalizeMessage(th.ID, a.ID, "Buenos dias", models.StatusSuccess))
	got, err := store.GetMessage(th.ID, a.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, got.Status)
	require.Equal(t, "Buenos dias", got.Text)

	// terminal messages are never rewritten
	require.NoError(t, ledger.FinalizeMessage(th.ID, a.ID, "overwritten", models.StatusFailed))
	got, err = store.GetMessage(th.ID, a.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, got.Status)
	require.Equal(t, "Buenos dias", got.Text)

	// streaming updates after finalization are dropped too
	require.NoError(t, ledger.UpdateStreamingText(th.ID, a.ID, "late fragment"))
	got, _ = store.GetMessage(th.ID, a.ID)
	require.Equal(t, "Buenos dias", got.Text)
}

func TestFinalizeRequiresTerminalStatus(t *testing.T) {
	th := setup(t)

	a, err := ledger.BeginAssistantMessage(th.ID)
	require.NoError(t, err)
	err = ledger.FinalizeMessage(th.ID, a.ID, "x", models.StatusStreaming)
	require.ErrorIs(t, err, models.ErrValidationFailed)
}

func TestFinalizeFailedKeepsPartialText(t *testing.T) {
	th := setup(t)

	a, err := ledger.BeginAssistantMessage(th.ID)
	require.NoError(t, err)
	require.NoError(t, ledger.UpdateStreamingText(th.ID, a.ID, "partial rep"))
	require.NoError(t, ledger.FinalizeMessage(th.ID, a.ID, "partial rep", models.StatusFailed))

	got, err := store.GetMessage(th.ID, a.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.Equal(t, "partial rep", got.Text)
}

func TestListMessagesPagination(t *testing.T) {
	th := setup(t)

	for _, text := range []string{"uno", "dos", "tres", "cuatro", "cinco"} {
		_, err := ledger.AppendUserMessage(th.ID, "alice", text)
		require.NoError(t, err)
	}

	page, err := ledger.ListMessages(th.ID, "alice", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.NotEmpty(t, page.NextCursor)
	require.Equal(t, "uno", page.Messages[0].Text)

	page2, err := ledger.ListMessages(th.ID, "alice", page.NextCursor, 10)
	require.NoError(t, err)
	require.Len(t, page2.Messages, 3)
	require.Empty(t, page2.NextCursor)
	require.Equal(t, "tres", page2.Messages[0].Text)

	// listing is gated on ownership
	_, err = ledger.ListMessages(th.ID, "mallory", "", 0)
	require.ErrorIs(t, err, models.ErrNotFoundOrForbidden)
}
