package store_test

import (
	"strings"
	"testing"

	"github.com/aussiebroadwan/sessionguard/internal/session/store"
	"github.com/stretchr/testify/require"
)

func TestRefreshKeys(t *testing.T) {
	require.Equal(t, "refresh:u1", store.RefreshKey("u1", ""))
	require.Equal(t, "refresh:u1:f1", store.RefreshKey("u1", "f1"))
	require.Equal(t, "jwt:blacklist:j1", store.RevocationKey("j1"))

	tests := []struct {
		id    string
		valid bool
	}{
		{"u1", true},
		{"0192f4b6-7a3e-7c1d-9b2a-5f6e7d8c9b0a", true},
		{"", false},
		{"u1:x", false},
		{":", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			require.Equal(t, tt.valid, store.ValidSubjectID(tt.id))
		})
	}

	t.Run("valid subjects never share a prefix", func(t *testing.T) {
		other := store.RefreshKey("u10", "f1")
		require.False(t, strings.HasPrefix(other, store.RefreshSubjectPrefix("u1")))
	})
}
