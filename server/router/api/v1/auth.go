package v1

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/adpilot/internal/errors"
)

const (
	// TokenIssuer is the iss claim of operator tokens.
	TokenIssuer = "adpilot"
	// DefaultTokenTTL is the lifetime of a token issued without an explicit TTL.
	DefaultTokenTTL = 30 * 24 * time.Hour

	operatorContextKey = "operator"
)

// IssueToken signs an HS256 operator token for subject.
func IssueToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("api secret not configured")
	}
	if subject == "" {
		return "", fmt.Errorf("token subject is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": TokenIssuer,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates an operator token and returns its subject.
func ParseToken(secret, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(TokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return subject, nil
}

// authenticate accepts a bearer token or a token query parameter, the
// latter for feed readers. Without a secret the API is open in dev and demo
// mode and closed in prod.
func (s *APIV1Service) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.Secret == "" {
			if s.Profile != nil && !s.Profile.IsDev() {
				return s.writeError(c, apperrors.Unauthorized("api secret not configured"))
			}
			return next(c)
		}

		token := c.QueryParam("token")
		if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
			scheme, value, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				return s.writeError(c, apperrors.Unauthorized("malformed authorization header"))
			}
			token = strings.TrimSpace(value)
		}
		if token == "" {
			return s.writeError(c, apperrors.Unauthorized("authentication required"))
		}

		subject, err := ParseToken(s.Secret, token)
		if err != nil {
			s.logger.Debug("rejected operator token", "path", c.Path(), "error", err)
			return s.writeError(c, apperrors.Unauthorized("invalid token"))
		}
		c.Set(operatorContextKey, subject)
		return next(c)
	}
}

// operator returns the authenticated subject, or "anonymous".
func operator(c echo.Context) string {
	if v, ok := c.Get(operatorContextKey).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}
