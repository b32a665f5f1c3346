package threads_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lingua/pkg/models"
	"lingua/pkg/store"
	"lingua/pkg/threads"
)

func openStore(t *testing.T) {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })
}

func TestCreateAndGetThread(t *testing.T) {
	openStore(t)

	th, err := threads.CreateThread("alice", "spanish practice")
	require.NoError(t, err)
	require.NotEmpty(t, th.ID)
	require.Equal(t, "alice", th.Owner)
	require.NotZero(t, th.CreatedTS)

	got, err := threads.GetOwnedThread(th.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, "spanish practice", got.Title)
}

func TestCreateThreadRequiresUser(t *testing.T) {
	openStore(t)

	_, err := threads.CreateThread("", "x")
	require.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestOwnershipIndistinguishableFromMissing(t *testing.T) {
	openStore(t)

	th, err := threads.CreateThread("alice", "t")
	require.NoError(t, err)

	_, errOther := threads.GetOwnedThread(th.ID, "mallory")
	_, errMissing := threads.GetOwnedThread("no-such-thread", "mallory")
	require.ErrorIs(t, errOther, models.ErrNotFoundOrForbidden)
	require.Equal(t, errMissing, errOther)

	_, err = threads.GetOwnedThread(th.ID, "")
	require.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestListOwnedThreads(t *testing.T) {
	openStore(t)

	a1, err := threads.CreateThread("alice", "one")
	require.NoError(t, err)
	a2, err := threads.CreateThread("alice", "two")
	require.NoError(t, err)
	_, err = threads.CreateThread("bob", "other")
	require.NoError(t, err)

	list, err := threads.ListOwnedThreads("alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	require.ElementsMatch(t, []string{a1.ID, a2.ID}, ids)
}

func TestUpdateTitle(t *testing.T) {
	openStore(t)

	th, err := threads.CreateThread("alice", "old")
	require.NoError(t, err)

	got, err := threads.UpdateTitle(th.ID, "alice", "new", "learned past tense")
	require.NoError(t, err)
	require.Equal(t, "new", got.Title)
	require.Equal(t, "learned past tense", got.Summary)
	require.GreaterOrEqual(t, got.UpdatedTS, th.UpdatedTS)

	// empty fields leave the current value untouched
	got, err = threads.UpdateTitle(th.ID, "alice", "", "")
	require.NoError(t, err)
	require.Equal(t, "new", got.Title)

	_, err = threads.UpdateTitle(th.ID, "mallory", "hijack", "")
	require.ErrorIs(t, err, models.ErrNotFoundOrForbidden)
}
