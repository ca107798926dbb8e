package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/luchan-pos/avocado-bonus/internal/serviceerrs"
)

const TokenExpire = 3 * time.Hour

const CookieName = "jwt-token"

type Claims struct {
	jwt.RegisteredClaims
	OperatorID string
}

func buildJWTString(id string, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExpire)),
			},
			OperatorID: id,
		},
	)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("JWT signing: %w", err)
	}
	return tokenString, nil
}

func Authenticate(id string, secret []byte) (http.Cookie, error) {
	jwtString, err := buildJWTString(id, secret)
	if err != nil {
		return http.Cookie{}, fmt.Errorf("authentication failed: %w", err)
	}
	return http.Cookie{
		Name:     CookieName,
		Value:    jwtString,
		Path:     "",
		MaxAge:   0,
		HttpOnly: true,
	}, nil
}

func CheckToken(tokenString string, secret []byte) (Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		})
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse token %w", err)
	}
	tokenExpired := claims.ExpiresAt.Before(time.Now())
	if tokenExpired {
		return Claims{}, serviceerrs.ErrTokenExpired
	}

	return *claims, nil
}

// HashLogin hides operator logins at rest. SHA-256 keeps lookups by login
// possible, unlike a salted hash.
func HashLogin(login string) string {
	sum := sha256.Sum256([]byte(login))
	return hex.EncodeToString(sum[:])
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
