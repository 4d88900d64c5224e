package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credentials is the single static admin login.
// Password may be plain text or a bcrypt hash ("$2a$...", "$2b$...").
type Credentials struct {
	Username string
	Password string
}

// Hashed reports whether the configured password is a bcrypt hash.
func (c Credentials) Hashed() bool {
	return strings.HasPrefix(c.Password, "$2")
}

// Verify checks a login attempt.
func (c Credentials) Verify(username, password string) bool {
	if c.Username == "" || c.Password == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	var passOK bool
	if c.Hashed() {
		passOK = bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	}
	return userOK && passOK
}
