package storage

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingBackend errors (or panics) on every call
type failingBackend struct {
	panics bool
	calls  int
}

func (f *failingBackend) fail() error {
	f.calls++
	if f.panics {
		panic("storage disabled")
	}
	return errors.New("quota exceeded")
}

func (f *failingBackend) Get(string) (string, error) { return "", f.fail() }
func (f *failingBackend) Set(string, string) error   { return f.fail() }
func (f *failingBackend) Delete(string) error        { return f.fail() }

type profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func TestPrefs_SetGetRemove(t *testing.T) {
	prefs := NewPrefs(NewMemory(), zerolog.Nop())

	_, ok := prefs.Get(KeyRememberMe)
	require.False(t, ok)

	prefs.Set(KeyRememberMe, "true")
	value, ok := prefs.Get(KeyRememberMe)
	require.True(t, ok)
	require.Equal(t, "true", value)
	require.True(t, prefs.RememberMe())

	prefs.Remove(KeyRememberMe)
	_, ok = prefs.Get(KeyRememberMe)
	require.False(t, ok)
	require.False(t, prefs.RememberMe())
}

func TestPrefs_RememberMeOnlyForLiteralTrue(t *testing.T) {
	prefs := NewPrefs(NewMemory(), zerolog.Nop())

	prefs.SetRememberMe(false)
	value, _ := prefs.Get(KeyRememberMe)
	assert.Equal(t, "false", value)
	assert.False(t, prefs.RememberMe())

	prefs.Set(KeyRememberMe, "yes")
	assert.False(t, prefs.RememberMe())

	prefs.SetRememberMe(true)
	assert.True(t, prefs.RememberMe())
}

func TestPrefs_ClearOnlyRecognizedKeys(t *testing.T) {
	mem := NewMemory()
	prefs := NewPrefs(mem, zerolog.Nop())

	prefs.Set(KeyRememberMe, "true")
	prefs.Set(KeyUser, `{"id":"1"}`)
	prefs.Set("hpa_session_cookies", "[]")
	prefs.Set("unrelated", "keep")

	prefs.Clear()

	_, ok := prefs.Get(KeyRememberMe)
	assert.False(t, ok)
	_, ok = prefs.Get(KeyUser)
	assert.False(t, ok)

	value, ok := prefs.Get("unrelated")
	assert.True(t, ok)
	assert.Equal(t, "keep", value)
	assert.Equal(t, 2, mem.Len())
}

func TestPrefs_UserRoundTrip(t *testing.T) {
	prefs := NewPrefs(NewMemory(), zerolog.Nop())

	var missing profile
	require.False(t, prefs.LoadUser(&missing))

	prefs.SaveUser(profile{ID: "1", Email: "a@b.com"})

	var got profile
	require.True(t, prefs.LoadUser(&got))
	require.Equal(t, profile{ID: "1", Email: "a@b.com"}, got)

	prefs.Set(KeyUser, "{broken")
	require.False(t, prefs.LoadUser(&got))
}

func TestPrefs_FailingBackendNeverRaises(t *testing.T) {
	for _, panics := range []bool{false, true} {
		backend := &failingBackend{panics: panics}
		prefs := NewPrefs(backend, zerolog.Nop())

		require.NotPanics(t, func() {
			prefs.Set(KeyRememberMe, "true")
			_, ok := prefs.Get(KeyRememberMe)
			assert.False(t, ok)
			assert.False(t, prefs.RememberMe())
			prefs.SaveUser(profile{ID: "1"})
			assert.False(t, prefs.LoadUser(&profile{}))
			prefs.Remove(KeyUser)
			prefs.Clear()
		})
		assert.Positive(t, backend.calls)
	}
}

func TestPrefs_NilBackend(t *testing.T) {
	prefs := NewPrefs(nil, zerolog.Nop())

	require.NotPanics(t, func() {
		prefs.Set(KeyUser, "x")
		prefs.Clear()
	})
	_, ok := prefs.Get(KeyUser)
	require.False(t, ok)
}
