package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gatehouse/internal/support"
)

func jwtSecret() []byte {
	return []byte(support.GetEnv("JWT_SECRET", "change-me"))
}

// GenerateJWT issues an HS256 token carrying the subject and role claims.
// Admin tooling uses this to mint operator tokens; the registration surface
// itself is unauthenticated.
func GenerateJWT(subject, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret())
}

func ValidateJWT(tokenString string) (map[string]interface{}, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret(), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
