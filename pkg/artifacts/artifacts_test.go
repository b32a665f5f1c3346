package artifacts_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lingua/pkg/artifacts"
	"lingua/pkg/models"
	"lingua/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })
}

func TestPutAndLookup(t *testing.T) {
	openStore(t)

	e, err := artifacts.Put(artifacts.Audio, "la manzana", "es", "https://cdn.example/apple.mp3")
	require.NoError(t, err)
	require.NotZero(t, e.CreatedTS)

	got, ok, err := artifacts.Lookup(artifacts.Audio, "la manzana", "es")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://cdn.example/apple.mp3", got.Value)

	_, ok, err = artifacts.Lookup(artifacts.Audio, "la manzana", "fr")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKindsAreSeparateNamespaces(t *testing.T) {
	openStore(t)

	_, err := artifacts.Put(artifacts.Translation, "la manzana", "es", "the apple")
	require.NoError(t, err)

	_, ok, err := artifacts.Lookup(artifacts.Audio, "la manzana", "es")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExistingEntryWins(t *testing.T) {
	openStore(t)

	first, err := artifacts.Put(artifacts.Translation, "hola", "es", "hello")
	require.NoError(t, err)

	second, err := artifacts.Put(artifacts.Translation, "hola", "es", "hi there")
	require.NoError(t, err)
	require.Equal(t, first.Value, second.Value)
	require.Equal(t, first.CreatedTS, second.CreatedTS)
}

func TestPutValidation(t *testing.T) {
	openStore(t)

	_, err := artifacts.Put(artifacts.Kind("bogus"), "t", "es", "v")
	require.ErrorIs(t, err, models.ErrValidationFailed)
	_, err = artifacts.Put(artifacts.Audio, "  ", "es", "v")
	require.ErrorIs(t, err, models.ErrValidationFailed)
	_, err = artifacts.Put(artifacts.Audio, "t", "es", "")
	require.ErrorIs(t, err, models.ErrValidationFailed)
	_, err = artifacts.Put(artifacts.Audio, "t", "es", strings.Repeat("x", 5000))
	require.ErrorIs(t, err, models.ErrValidationFailed)

	_, _, err = artifacts.Lookup(artifacts.Kind("bogus"), "t", "es")
	require.ErrorIs(t, err, models.ErrValidationFailed)
}
