package middleware

import (
	"errors"
	"strings"
	"time"

	"my-page/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 7 * 24 * time.Hour

// IssueToken signs a session token for u.
func IssueToken(secret []byte, u *model.User) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":  u.ID,
		"name": u.Username,
		"role": u.Role,
		"exp":  time.Now().Add(tokenTTL).Unix(),
	}).SignedString(secret)
}

// ParseToken returns the user carried by a token issued by IssueToken.
func ParseToken(secret []byte, raw string) (*model.User, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	u := &model.User{}
	if uid, ok := claims["uid"].(float64); ok {
		u.ID = int(uid)
	}
	u.Username, _ = claims["name"].(string)
	u.Role, _ = claims["role"].(string)
	return u, nil
}

// Identity attaches the bearer token's user to the request when present.
// Requests without a valid token are never rejected; the API is open.
func Identity(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			if u, err := ParseToken(secret, auth[7:]); err == nil {
				c.Set("user_id", u.ID)
				c.Set("user_name", u.Username)
				c.Set("user_role", u.Role)
			}
		}
		c.Next()
	}
}
