package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Sub             string `json:"sub"`
	Role            Role   `json:"role"`
	EstablishmentID string `json:"establishment_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() Actor {
	return Actor{ID: c.Sub, Role: c.Role, EstablishmentID: c.EstablishmentID}
}

func CreateAccessToken(secret string, actor Actor, ttl time.Duration) (string, error) {
	claims := Claims{
		Sub:             actor.ID,
		Role:            actor.Role,
		EstablishmentID: actor.EstablishmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseValidate(secret, tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	if c.Sub == "" || !c.Role.Valid() {
		return nil, errors.New("token is missing subject or role")
	}
	return c, nil
}
