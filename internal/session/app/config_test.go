package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env

	cfg := LoadConfig()
	require.Equal(t, "purple-team-app", cfg.Issuer)
	require.Equal(t, "purple-team-clients", cfg.Audience)
	require.Equal(t, time.Hour, cfg.AccessTTL)
	require.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, 90*time.Second, cfg.ClockSkew)
	require.Equal(t, 2*time.Second, cfg.StoreTimeout)
	require.Equal(t, 100_000, cfg.MemoryKVMaxEntries)
	require.Equal(t, "subject", cfg.RefreshScope)
	require.Equal(t, "log", cfg.AuditFailurePolicy)
	require.False(t, cfg.AuditAsync)
	require.False(t, cfg.MFAEnforceAdmin)
	require.False(t, cfg.AllowAdminSignup)
	require.Equal(t, 8080, cfg.Port)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("JWT_ISS", "issuer-x")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("CLOCK_SKEW", "30")
	t.Setenv("MFA_ENFORCE_ADMIN", "true")
	t.Setenv("ALLOW_ADMIN_SIGNUP", "true")
	t.Setenv("AUDIT_ASYNC", "1")
	t.Setenv("PORT", "9090")
	t.Setenv("REFRESH_SCOPE", "session")

	cfg := LoadConfig()
	require.Equal(t, "issuer-x", cfg.Issuer)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 30*time.Second, cfg.ClockSkew)
	require.True(t, cfg.MFAEnforceAdmin)
	require.True(t, cfg.AllowAdminSignup)
	require.True(t, cfg.AuditAsync)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "session", cfg.RefreshScope)
}

func TestEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("SG_TEST_INT", "many")
	t.Setenv("SG_TEST_BOOL", "perhaps")
	t.Setenv("SG_TEST_DUR", "soon")

	require.Equal(t, 7, getEnvIntOrDefault("SG_TEST_INT", 7))
	require.True(t, getEnvBoolOrDefault("SG_TEST_BOOL", true))
	require.Equal(t, time.Minute, getEnvDurationOrDefault("SG_TEST_DUR", time.Minute))
}
