package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"resumepay/pkg/payment"
)

// exportScope is the only scope a grant carries: one PDF export.
const exportScope = "pdf_export"

// devJWTSecret is used when --jwt-secret is not set.
const devJWTSecret = "dev-insecure-secret-change"

// grantClaims is the payload of an export grant handed to the PDF exporter
// after a receipt was accepted.
type grantClaims struct {
	SessionID string `json:"sid"`
	Scope     string `json:"scope"`
	Amount    string `json:"amount"`
	jwt.RegisteredClaims
}

type grantIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newGrantIssuer(secret string, ttl time.Duration, now func() time.Time) *grantIssuer {
	if secret == "" {
		secret = devJWTSecret
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &grantIssuer{secret: []byte(secret), ttl: ttl, now: now}
}

// Issue signs a grant for a succeeded session.
func (g *grantIssuer) Issue(s *payment.Session) (string, time.Time, error) {
	if s.Status() != payment.Succeeded {
		return "", time.Time{}, fmt.Errorf("%w: grant for %s session", payment.ErrInvalidTransition, s.Status())
	}
	now := g.now()
	exp := now.Add(g.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, grantClaims{
		SessionID: s.ID(),
		Scope:     exportScope,
		Amount:    s.ExpectedAmount().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

var errWrongScope = errors.New("grant scope is not pdf_export")

// Parse validates signature, expiry and scope.
func (g *grantIssuer) Parse(raw string) (*grantClaims, error) {
	claims := &grantClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(g.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	if claims.Scope != exportScope {
		return nil, errWrongScope
	}
	return claims, nil
}

// grantAuthMiddleware requires a valid export grant as a bearer token.
func grantAuthMiddleware(g *grantIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		claims, err := g.Parse(strings.TrimSpace(authHeader[7:]))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid grant"})
			c.Abort()
			return
		}
		c.Set("grant", claims)
		c.Next()
	}
}

// adminCredentials guard the audit endpoints with HTTP basic auth.
type adminCredentials struct {
	user         string
	passwordHash []byte
}

func adminAuthMiddleware(creds adminCredentials) gin.HandlerFunc {
	return func(c *gin.Context) {
		if creds.user == "" || len(creds.passwordHash) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "admin endpoints are disabled"})
			c.Abort()
			return
		}
		user, pass, ok := c.Request.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(creds.user)) != 1 ||
			bcrypt.CompareHashAndPassword(creds.passwordHash, []byte(pass)) != nil {
			c.Header("WWW-Authenticate", `Basic realm="resumepay admin"`)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			c.Abort()
			return
		}
		c.Next()
	}
}
