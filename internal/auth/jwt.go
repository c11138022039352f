package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("authorization header empty")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserID string
	Role   models.Role
}

type JWTValidator struct {
	alg    string
	pubKey *rsa.PublicKey
	secret []byte
}

func NewJWTValidator(pubKeyPath, alg, secret string) (*JWTValidator, error) {
	jv := &JWTValidator{alg: alg}
	switch alg {
	case "RS256":
		b, err := os.ReadFile(pubKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read pubkey: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(b)
		if err != nil {
			return nil, fmt.Errorf("parse pubkey: %w", err)
		}
		jv.pubKey = key
	case "HS256":
		if secret == "" {
			return nil, errors.New("hs256 secret required")
		}
		jv.secret = []byte(secret)
	default:
		return nil, fmt.Errorf("unsupported alg %q", alg)
	}
	return jv, nil
}

func (j *JWTValidator) key(*jwt.Token) (interface{}, error) {
	if j.alg == "RS256" {
		return j.pubKey, nil
	}
	return j.secret, nil
}

// Validate checks signature and expiry. The user id is read from "user_id", falling
// back to "sub"; the role claim is optional.
func (j *JWTValidator) Validate(token string) (Identity, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{j.alg}), jwt.WithExpirationRequired())
	tok, err := parser.Parse(token, j.key)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{UserID: stringClaim(claims, "user_id")}
	if id.UserID == "" {
		id.UserID = stringClaim(claims, "sub")
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	if role, ok := models.ParseRole(stringClaim(claims, "role")); ok {
		id.Role = role
	}
	return id, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// ParseBearerToken extracts the token from an "Authorization: Bearer <token>" header.
func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
