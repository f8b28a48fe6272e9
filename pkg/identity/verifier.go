// Package identity verifies bearer tokens issued by the hosted identity
// provider and turns them into a Subject.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"ai-consultation-be/pkg/apperr"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultPremiumPlanMarker = "premium_subscription"

// Subject is the verified caller for a single request.
type Subject struct {
	ID        string
	Plan      string
	Premium   bool
	SessionID string
	ExpiresAt time.Time
}

// Claims are the provider's session token claims. pla carries the plan flag
// (e.g. "u:premium_subscription").
type Claims struct {
	jwt.RegisteredClaims
	Plan            string `json:"pla,omitempty"`
	AuthorizedParty string `json:"azp,omitempty"`
	SessionID       string `json:"sid,omitempty"`
}

type TokenVerifier interface {
	Verify(ctx context.Context, bearer string) (*Subject, error)
}

type VerifierOptions struct {
	Issuer            string
	AuthorizedParty   string
	PremiumPlanMarker string
	Leeway            time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

type Verifier struct {
	keys              KeyProvider
	issuer            string
	authorizedParty   string
	premiumPlanMarker string
	leeway            time.Duration
	now               func() time.Time
}

var _ TokenVerifier = (*Verifier)(nil)

func NewVerifier(keys KeyProvider, opts VerifierOptions) *Verifier {
	marker := opts.PremiumPlanMarker
	if marker == "" {
		marker = DefaultPremiumPlanMarker
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		keys:              keys,
		issuer:            opts.Issuer,
		authorizedParty:   opts.AuthorizedParty,
		premiumPlanMarker: marker,
		leeway:            opts.Leeway,
		now:               now,
	}
}

// Verify checks signature, expiry and issuer. A signature failure forces one
// key set refresh before the token is rejected, to tolerate key rotation.
func (v *Verifier) Verify(ctx context.Context, bearer string) (*Subject, error) {
	token := strings.TrimSpace(bearer)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return nil, apperr.New(apperr.ErrUnauthorized, "Missing token")
	}

	claims, err := v.parse(ctx, token)
	if err != nil && errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		if refreshErr := v.keys.Refresh(ctx); refreshErr == nil {
			claims, err = v.parse(ctx, token)
		}
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, unauthorizedMessage(err), err)
	}

	if v.authorizedParty != "" && claims.AuthorizedParty != "" && claims.AuthorizedParty != v.authorizedParty {
		return nil, apperr.New(apperr.ErrUnauthorized, "Invalid token")
	}
	if claims.Subject == "" {
		return nil, apperr.New(apperr.ErrUnauthorized, "Invalid claims")
	}

	subject := &Subject{
		ID:        claims.Subject,
		Plan:      claims.Plan,
		Premium:   v.IsPremium(claims.Plan),
		SessionID: claims.SessionID,
	}
	if claims.ExpiresAt != nil {
		subject.ExpiresAt = claims.ExpiresAt.Time
	}
	return subject, nil
}

// IsPremium is the plan flag check; unknown or empty plans are baseline.
func (v *Verifier) IsPremium(plan string) bool {
	return plan != "" && strings.Contains(plan, v.premiumPlanMarker)
}

func (v *Verifier) parse(ctx context.Context, token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "Malformed token"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "Invalid token issuer"
	default:
		return "Invalid token"
	}
}
