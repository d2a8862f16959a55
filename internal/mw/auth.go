package mw

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// APIKeyHeader carries a locker controller's credential.
const APIKeyHeader = "X-API-Key"

// RoleAdmin marks operator tokens.
const RoleAdmin = "admin"

const (
	userIDKey = "auth.user_id"
	roleKey   = "auth.role"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the token fields the backend relies on. Subject is the numeric user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the verified caller of a request.
type Identity struct {
	UserID int64
	Role   string
}

// JWTVerifier checks HS256 bearer tokens minted by the identity provider.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier builds a verifier. An empty issuer skips the issuer check.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTVerifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Verify parses a raw token into an Identity.
func (v *JWTVerifier) Verify(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(v.secret) == 0 {
		return Identity{}, ErrInvalidToken
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: userID, Role: claims.Role}, nil
}

// Sign mints a token. The backend never issues tokens to clients; this serves
// the simulator and tests.
func (v *JWTVerifier) Sign(userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Authenticate requires a valid bearer token and stores the caller on the context.
func Authenticate(v *JWTVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := v.Verify(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(userIDKey, id.UserID)
		c.Set(roleKey, id.Role)
		c.Next()
	}
}

// RequireAdmin rejects callers without the operator role. It must run after Authenticate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(roleKey) != RoleAdmin {
			abort(c, http.StatusUnauthorized, "operator role required")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, or 0 outside Authenticate.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// IsAdmin reports whether the caller holds the operator role.
func IsAdmin(c *gin.Context) bool {
	return c.GetString(roleKey) == RoleAdmin
}
