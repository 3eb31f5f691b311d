// Package auth classifies backend failures as authentication errors and
// escalates them through an out-of-band channel, separate from the ordinary
// notification path.
package auth

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/malekhnovich/refine/dataprovider"
)

// Reporter is the escalation side channel. Implementations typically force a
// re-login or redirect; calls are fire-and-forget.
type Reporter interface {
	ReportError(err error)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(err error)

func (f ReporterFunc) ReportError(err error) { f(err) }

// Classifier decides whether a failed outcome is an authentication failure.
type Classifier struct {
	// Statuses are the status codes always treated as auth failures.
	// Default: 401.
	Statuses []int

	// TokenSource, when set, supplies the caller's current access token.
	// A 403 with an expired or not-yet-valid token is then classified as an
	// auth failure (stale credentials) rather than an authorization denial.
	TokenSource func() string
}

// NewClassifier returns a Classifier with the default status set.
func NewClassifier() *Classifier {
	return &Classifier{Statuses: []int{http.StatusUnauthorized}}
}

// IsAuthError reports whether err should trigger auth escalation.
func (c *Classifier) IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	code, ok := dataprovider.ErrorStatus(err)
	if !ok {
		return false
	}
	statuses := c.Statuses
	if len(statuses) == 0 {
		statuses = []int{http.StatusUnauthorized}
	}
	for _, status := range statuses {
		if code == status {
			return true
		}
	}
	if code == http.StatusForbidden && c.TokenSource != nil {
		if token := c.TokenSource(); token != "" && TokenStale(token) {
			return true
		}
	}
	return false
}

// TokenStale reports whether a JWT is expired or not yet valid. The signature
// is not verified; only the registered time claims are inspected, which is
// all classification needs.
func TokenStale(raw string) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		// Unparseable credential: treat as stale, re-auth is the only fix.
		return true
	}
	now := time.Now()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(now) {
		return true
	}
	if nbf, err := claims.GetNotBefore(); err == nil && nbf != nil && nbf.After(now) {
		return true
	}
	return false
}
