package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"altivio-backend/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the caller as asserted by a verified token.
type Identity struct {
	UserID string
	Role   models.Role
}

func GenerateToken(secret []byte, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": id.UserID,
		"role":    string(id.Role),
		"exp":     now.Add(ttl).Unix(),
		"iat":     now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

func ParseToken(secret []byte, tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	data := token.Claims.(jwt.MapClaims)
	uid, ok := data["user_id"].(string)
	if !ok || uid == "" {
		return Identity{}, ErrInvalidToken
	}
	role, _ := data["role"].(string)
	if role == "" {
		role = string(models.RoleDev)
	}
	return Identity{UserID: uid, Role: models.Role(role)}, nil
}
