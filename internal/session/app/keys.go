package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
)

// InitKeyRing builds the HMAC key ring from configuration.
//
// JWT_KEYS_JSON supplies any number of kid/secret pairs for rotation. JWT_SECRET
// is registered as kid "default", replacing a "default" entry from the JSON.
// Tokens without a kid header verify against "default". ACTIVE_JWT_KID picks
// the signing key; when empty it falls back to "default", or to the only key
// present.
func InitKeyRing(cfg Config, logger *slog.Logger) (*jwtx.KeyRing, error) {
	keys := map[string][]byte{}
	if cfg.KeysJSON != "" {
		parsed, err := jwtx.ParseKeysJSON(cfg.KeysJSON)
		if err != nil {
			return nil, err
		}
		keys = parsed
	}

	if cfg.Secret != "" {
		if _, ok := keys[jwtx.DefaultKID]; ok {
			logger.Warn("JWT_SECRET overrides the default kid from JWT_KEYS_JSON")
		}
		keys[jwtx.DefaultKID] = []byte(cfg.Secret)
	}

	active := cfg.ActiveKID
	if active == "" && len(keys) == 1 {
		for kid := range keys {
			active = kid
		}
	}

	ring, err := jwtx.NewKeyRing(keys, active)
	if err != nil {
		return nil, fmt.Errorf("failed to build key ring: %w", err)
	}

	logger.Info("signing keys loaded",
		"active_kid", ring.ActiveKID(),
		"kids", ring.KIDs(),
	)
	return ring, nil
}
