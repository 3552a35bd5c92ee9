package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewAccessClaims(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	c := jwtx.NewAccessClaims("u1", "admin", time.Hour, "iss", []string{"aud"}, now)

	require.Equal(t, "u1", c.Subject)
	require.Equal(t, "u1", c.UserID)
	require.Equal(t, "admin", c.Role)
	require.Equal(t, "iss", c.Issuer)
	require.Equal(t, jwt.ClaimStrings{"aud"}, c.Audience)
	require.Equal(t, now.Add(time.Hour), c.ExpiresAt.Time)

	_, err := uuid.Parse(c.ID)
	require.NoError(t, err, "jti should be a uuid")

	other := jwtx.NewAccessClaims("u1", "admin", time.Hour, "iss", []string{"aud"}, now)
	require.NotEqual(t, c.ID, other.ID)
}

func TestClaimsPrincipal(t *testing.T) {
	tests := []struct {
		name   string
		claims jwtx.Claims
		want   jwtx.Principal
	}{
		{
			name:   "id and role",
			claims: jwtx.Claims{UserID: "u1", Role: "red"},
			want:   jwtx.Principal{ID: "u1", Role: "red"},
		},
		{
			name: "falls back to sub",
			claims: jwtx.Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "u2"},
				Role:             "blue",
			},
			want: jwtx.Principal{ID: "u2", Role: "blue"},
		},
		{
			name:   "default role",
			claims: jwtx.Claims{UserID: "u3"},
			want:   jwtx.Principal{ID: "u3", Role: "observer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.claims.Principal("observer"))
		})
	}
}

func TestClaimsRemaining(t *testing.T) {
	now := time.Now()

	c := jwtx.Claims{}
	require.Zero(t, c.Remaining(now))

	c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	require.Zero(t, c.Remaining(now))

	c.ExpiresAt = jwt.NewNumericDate(now.Add(time.Minute))
	require.InDelta(t, time.Minute.Seconds(), c.Remaining(now).Seconds(), 1)
}
