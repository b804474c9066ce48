// Package shopauth resolves the calling shop from a signed session token.
// The shop domain is only ever taken from the session; client-supplied
// shop values are ignored, and requests without a valid session fail
// closed.
package shopauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/junolabs/qrpoints/pkg/qrcode"
)

const (
	// ContextKeyShop is where the middleware stores the resolved shop.
	ContextKeyShop = "shop_domain"

	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// ErrNoSession is returned when neither cookie nor bearer token is present.
var ErrNoSession = errors.New("no session token")

// Claims is the session payload carried by the JWT.
type Claims struct {
	ShopDomain string `json:"shop_domain"`
	jwt.RegisteredClaims
}

// Config wires the validator.
type Config struct {
	SigningKey []byte
	Issuer     string
	CookieName string
}

// Validator checks session tokens and extracts the shop scope.
type Validator struct {
	signingKey []byte
	issuer     string
	cookieName string
}

// New returns a Validator for HS256 session tokens.
func New(cfg Config) (*Validator, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if strings.TrimSpace(cfg.CookieName) == "" {
		return nil, fmt.Errorf("cookie name is required")
	}
	return &Validator{
		signingKey: cfg.SigningKey,
		issuer:     cfg.Issuer,
		cookieName: cfg.CookieName,
	}, nil
}

// ResolveShop validates the session token on the request and returns the
// owning shop domain.
func (validator *Validator) ResolveShop(request *http.Request) (qrcode.ShopDomain, error) {
	token, err := sessionToken(request, validator.cookieName)
	if err != nil {
		return qrcode.ShopDomain{}, err
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return validator.signingKey, nil
	}, jwt.WithIssuer(validator.issuer))
	if err != nil {
		return qrcode.ShopDomain{}, fmt.Errorf("parse session token: %w", err)
	}
	if !parsed.Valid {
		return qrcode.ShopDomain{}, errors.New("invalid session token")
	}
	shopDomain, err := qrcode.NewShopDomain(claims.ShopDomain)
	if err != nil {
		return qrcode.ShopDomain{}, fmt.Errorf("session carries no shop: %w", err)
	}
	return shopDomain, nil
}

// GinMiddleware rejects unauthenticated requests and stores the resolved
// shop domain on the gin context.
func (validator *Validator) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		shopDomain, err := validator.ResolveShop(ctx.Request)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "missing or invalid session",
				},
			})
			return
		}
		ctx.Set(ContextKeyShop, shopDomain)
		ctx.Next()
	}
}

// ShopFromContext returns the shop resolved by GinMiddleware.
func ShopFromContext(ctx *gin.Context) (qrcode.ShopDomain, bool) {
	value, ok := ctx.Get(ContextKeyShop)
	if !ok {
		return qrcode.ShopDomain{}, false
	}
	shopDomain, ok := value.(qrcode.ShopDomain)
	return shopDomain, ok
}

func sessionToken(request *http.Request, cookieName string) (string, error) {
	if cookie, err := request.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	header := request.Header.Get(authorizationHeader)
	if strings.HasPrefix(header, bearerPrefix) {
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token != "" {
			return token, nil
		}
	}
	return "", ErrNoSession
}
