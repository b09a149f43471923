package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nocops/itsm-agent/internal/config"
	"github.com/nocops/itsm-agent/internal/logger"
	"github.com/nocops/itsm-agent/internal/models"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// AuthGate checks the Authorization header in one of three explicit modes
type AuthGate struct {
	mode   string
	tokens [][]byte
	secret []byte
	logger *logger.Logger
}

// NewAuthGate builds a gate from config. Disabled mode is allowed but logged
// as a warning every time a gate is built.
func NewAuthGate(cfg config.AuthConfig) (*AuthGate, error) {
	g := &AuthGate{
		mode:   cfg.Mode,
		logger: logger.GetLogger().WithComponent("auth"),
	}

	switch cfg.Mode {
	case config.AuthDisabled:
		g.logger.Warn("Authentication is DISABLED: every request to the OpenAI-compatible routes is accepted")
	case config.AuthStatic:
		if len(cfg.Tokens) == 0 {
			return nil, errors.New("static auth requires at least one token")
		}
		for _, tok := range cfg.Tokens {
			g.tokens = append(g.tokens, []byte(tok))
		}
	case config.AuthJWT:
		if cfg.JWTSecret == "" {
			return nil, errors.New("jwt auth requires a secret")
		}
		g.secret = []byte(cfg.JWTSecret)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}

	return g, nil
}

func (g *AuthGate) Mode() string {
	return g.mode
}

// Middleware rejects unauthenticated requests with 401
func (g *AuthGate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := g.check(c.GetHeader("Authorization")); err != nil {
			g.logger.Debug("Rejected request to %s: %v", c.Request.URL.Path, err)
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

func (g *AuthGate) check(header string) error {
	if g.mode == config.AuthDisabled {
		return nil
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return errMissingToken
	}

	switch g.mode {
	case config.AuthStatic:
		matched := 0
		for _, want := range g.tokens {
			matched |= subtle.ConstantTimeCompare([]byte(token), want)
		}
		if matched != 1 {
			return errInvalidToken
		}
		return nil
	case config.AuthJWT:
		parsed, err := jwt.Parse(token, func(_ *jwt.Token) (interface{}, error) {
			return g.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return fmt.Errorf("parse token: %w", err)
		}
		if !parsed.Valid {
			return errInvalidToken
		}
		return nil
	}
	return errInvalidToken
}
