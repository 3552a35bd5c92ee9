package domain

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string  // argon2id PHC string
	Role         Role
	MFASecret    *string // TOTP secret (nullable, base32 encoded)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
