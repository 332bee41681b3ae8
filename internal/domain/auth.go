package domain

import "github.com/golang-jwt/jwt/v5"

// Scopes консоли агентов.
const (
	ScopeAdmin       = "admin"
	ScopeAgentsRead  = "agents.read"
	ScopeAgentsWrite = "agents.write"
	ScopeAgentsRun   = "agents.run"
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "admin": true или "agents.run": true
	jwt.RegisteredClaims
}

// Allows — admin разрешает всё.
func (c *CustomClaims) Allows(scope string) bool {
	if c == nil {
		return false
	}
	return c.Scopes[ScopeAdmin] || c.Scopes[scope]
}
