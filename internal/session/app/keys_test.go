package app

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestInitKeyRing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	secretA := strings.Repeat("a", 32)
	secretB := strings.Repeat("b", 32)

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
		wantAny bool
		active  string
		kids    []string

		// defaultSecret, when set, is the secret expected under "default".
		defaultSecret string
	}{
		{
			name:   "single secret",
			cfg:    Config{Secret: secretA},
			active: jwtx.DefaultKID,
			kids:   []string{jwtx.DefaultKID},
		},
		{
			name:   "json keys with active",
			cfg:    Config{KeysJSON: `{"k1":"` + secretA + `","k2":"` + secretB + `"}`, ActiveKID: "k2"},
			active: "k2",
			kids:   []string{"k1", "k2"},
		},
		{
			name:   "json plus fallback secret",
			cfg:    Config{KeysJSON: `{"k1":"` + secretA + `"}`, Secret: secretB, ActiveKID: "k1"},
			active: "k1",
			kids:   []string{"default", "k1"},
		},
		{
			name:          "secret overrides json default",
			cfg:           Config{KeysJSON: `{"default":"` + secretA + `","k1":"` + secretA + `"}`, Secret: secretB},
			active:        jwtx.DefaultKID,
			kids:          []string{"default", "k1"},
			defaultSecret: secretB,
		},
		{
			name:   "lone json key becomes active",
			cfg:    Config{KeysJSON: `{"k1":"` + secretA + `"}`},
			active: "k1",
			kids:   []string{"k1"},
		},
		{
			name:    "nothing configured",
			cfg:     Config{},
			wantErr: jwtx.ErrNoKeys,
		},
		{
			name:    "short secret",
			cfg:     Config{Secret: "short"},
			wantErr: jwtx.ErrWeakSecret,
		},
		{
			name:    "active kid missing",
			cfg:     Config{Secret: secretA, ActiveKID: "k9"},
			wantErr: jwtx.ErrNoActiveKey,
		},
		{
			name:    "invalid json",
			cfg:     Config{KeysJSON: `{not json`},
			wantAny: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring, err := InitKeyRing(tt.cfg, logger)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
				return
			case tt.wantAny:
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.active, ring.ActiveKID())
			require.Equal(t, tt.kids, ring.KIDs())
			if tt.defaultSecret != "" {
				secret, err := ring.Secret(jwtx.DefaultKID)
				require.NoError(t, err)
				require.Equal(t, tt.defaultSecret, string(secret))
			}
		})
	}
}
