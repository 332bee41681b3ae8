package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

var (
	ErrNoPublicKey = errors.New("public key data is empty")
	ErrNoScopes    = errors.New("token carries no console scopes")
)

// ConsoleValidator проверяет RS256-токены консоли агентов. Токены выпускает внешний IdP.
type ConsoleValidator struct {
	key    *rsa.PublicKey
	parser *jwt.Parser
}

// ValidatorOptions — необязательные проверки iss/aud и допуск по часам.
type ValidatorOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

func NewConsoleValidator(key *rsa.PublicKey, opts ValidatorOptions) *ConsoleValidator {
	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		popts = append(popts, jwt.WithAudience(opts.Audience))
	}
	return &ConsoleValidator{key: key, parser: jwt.NewParser(popts...)}
}

// NewConsoleValidatorPEM разбирает PEM публичного ключа.
func NewConsoleValidatorPEM(pem []byte, opts ValidatorOptions) (*ConsoleValidator, error) {
	if len(pem) == 0 {
		return nil, ErrNoPublicKey
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return NewConsoleValidator(key, opts), nil
}

// VerifyToken принимает значение заголовка Authorization целиком или голый токен.
func (v *ConsoleValidator) VerifyToken(header string) (*domain.CustomClaims, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Bearer "))

	claims := &domain.CustomClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	// Токен без единого scope ничего не разрешает, отсекаем его сразу
	if len(claims.Scopes) == 0 {
		return nil, ErrNoScopes
	}
	return claims, nil
}
