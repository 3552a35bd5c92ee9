package jwtx_test

import (
	"strings"
	"testing"

	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

var (
	secretA = []byte(strings.Repeat("a", 32))
	secretB = []byte(strings.Repeat("b", 48))
)

func TestNewKeyRing(t *testing.T) {
	t.Run("defaults active to default kid", func(t *testing.T) {
		ring, err := jwtx.NewKeyRing(map[string][]byte{jwtx.DefaultKID: secretA}, "")
		require.NoError(t, err)
		require.Equal(t, jwtx.DefaultKID, ring.ActiveKID())
	})

	t.Run("explicit active", func(t *testing.T) {
		ring, err := jwtx.NewKeyRing(map[string][]byte{"k1": secretA, "k2": secretB}, "k2")
		require.NoError(t, err)
		require.Equal(t, "k2", ring.ActiveKID())
		require.Equal(t, []string{"k1", "k2"}, ring.KIDs())

		got, err := ring.Secret("k1")
		require.NoError(t, err)
		require.Equal(t, secretA, got)
	})

	t.Run("unknown kid", func(t *testing.T) {
		ring, err := jwtx.NewKeyRing(map[string][]byte{"k1": secretA}, "k1")
		require.NoError(t, err)
		_, err = ring.Secret("nope")
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := jwtx.NewKeyRing(nil, "")
		require.ErrorIs(t, err, jwtx.ErrNoKeys)

		_, err = jwtx.NewKeyRing(map[string][]byte{"k1": []byte("short")}, "k1")
		require.ErrorIs(t, err, jwtx.ErrWeakSecret)

		_, err = jwtx.NewKeyRing(map[string][]byte{"k1": secretA}, "k9")
		require.ErrorIs(t, err, jwtx.ErrNoActiveKey)
	})

	t.Run("copies input", func(t *testing.T) {
		in := map[string][]byte{"k1": append([]byte(nil), secretA...)}
		ring, err := jwtx.NewKeyRing(in, "k1")
		require.NoError(t, err)

		in["k1"][0] = 'z'
		got, _ := ring.Secret("k1")
		require.Equal(t, secretA, got)
	})
}

func TestParseKeysJSON(t *testing.T) {
	keys, err := jwtx.ParseKeysJSON(`{"2024-01":"` + string(secretA) + `","2024-06":"` + string(secretB) + `"}`)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, secretB, keys["2024-06"])

	_, err = jwtx.ParseKeysJSON(`{not json`)
	require.Error(t, err)
}
