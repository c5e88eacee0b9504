package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
)

const capabilityContextKey = "capability"

var errMissingToken = errors.New("missing bearer token")

// Claims is the capability token payload. The transport authenticates the
// caller; the core trusts the capability the middleware extracts.
type Claims struct {
	jwt.RegisteredClaims
	MemberID string `json:"mid"`
	Admin    bool   `json:"adm,omitempty"`
	Coach    bool   `json:"coa,omitempty"`
}

// TokenAuthenticator issues and validates HS256 capability tokens.
type TokenAuthenticator struct {
	signingKey []byte
	issuer     string
}

// NewTokenAuthenticator builds an authenticator around the shared key.
func NewTokenAuthenticator(signingKey []byte, issuer string) (*TokenAuthenticator, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	return &TokenAuthenticator{signingKey: signingKey, issuer: issuer}, nil
}

// Issue signs a capability token valid for ttl.
func (authenticator *TokenAuthenticator) Issue(capability booking.Capability, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    authenticator.issuer,
			Subject:   capability.MemberID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		MemberID: capability.MemberID,
		Admin:    capability.Admin,
		Coach:    capability.Coach,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(authenticator.signingKey)
}

// Parse validates a token string and returns the capability it carries.
func (authenticator *TokenAuthenticator) Parse(tokenString string) (booking.Capability, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return authenticator.signingKey, nil
	}, jwt.WithIssuer(authenticator.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return booking.Capability{}, err
	}
	if claims.MemberID == "" {
		return booking.Capability{}, fmt.Errorf("token missing member id")
	}
	return booking.Capability{
		MemberID: claims.MemberID,
		Admin:    claims.Admin,
		Coach:    claims.Coach,
	}, nil
}

// GinMiddleware extracts the capability from the Authorization header and
// stores it on the request context.
func (authenticator *TokenAuthenticator) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		capability, err := authenticator.authenticate(ctx.Request)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid or missing token"))
			return
		}
		ctx.Set(capabilityContextKey, capability)
		ctx.Next()
	}
}

func (authenticator *TokenAuthenticator) authenticate(request *http.Request) (booking.Capability, error) {
	header := request.Header.Get("Authorization")
	if header == "" {
		return booking.Capability{}, errMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return booking.Capability{}, errMissingToken
	}
	return authenticator.Parse(strings.TrimSpace(parts[1]))
}

func capabilityFrom(ctx *gin.Context) booking.Capability {
	value, ok := ctx.Get(capabilityContextKey)
	if !ok {
		return booking.Capability{}
	}
	capability, _ := value.(booking.Capability)
	return capability
}
