package joinstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	appErr "shodh/pkg/errors"
	"shodh/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultCookieName   = "shodh_joined"
	defaultCookieIssuer = "shodh-contest-web"
	defaultCookieTTL    = 30 * 24 * time.Hour
)

// CookieConfig configures the signed join cookie.
type CookieConfig struct {
	Name   string        `yaml:"name"`
	Secret string        `yaml:"secret"`
	Issuer string        `yaml:"issuer"`
	TTL    time.Duration `yaml:"ttl"`
	Secure bool          `yaml:"secure"`
}

func (c *CookieConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = defaultCookieName
	}
	if c.Issuer == "" {
		c.Issuer = defaultCookieIssuer
	}
	if c.TTL <= 0 {
		c.TTL = defaultCookieTTL
	}
}

// Session is the join cookie bound to one request.
type Session struct {
	mu    sync.Mutex
	token string
	write func(token string, ttl time.Duration)
}

// NewSession wraps the incoming cookie value. write is called with every
// re-signed token.
func NewSession(token string, write func(token string, ttl time.Duration)) *Session {
	return &Session{token: token, write: write}
}

// Token returns the current token.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) set(token string, ttl time.Duration) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	if s.write != nil {
		s.write(token, ttl)
	}
}

// WithSession binds a session to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextkey.JoinSession, s)
}

// SessionFrom returns the session bound to ctx.
func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextkey.JoinSession).(*Session)
	return s, ok && s != nil
}

type joinClaims struct {
	Joined map[string][]int64 `json:"joined"`
	jwt.RegisteredClaims
}

// CookieStore keeps the join set in a signed HS256 cookie carried by the
// browser. Every operation needs a Session on the context.
type CookieStore struct {
	cfg    CookieConfig
	secret []byte
	now    func() time.Time
}

// NewCookieStore creates a cookie store.
func NewCookieStore(cfg CookieConfig) (*CookieStore, error) {
	cfg.applyDefaults()
	if cfg.Secret == "" {
		return nil, fmt.Errorf("cookie secret is required")
	}
	return &CookieStore{cfg: cfg, secret: []byte(cfg.Secret), now: time.Now}, nil
}

// Middleware binds a Session built from the request cookie and writes the
// re-signed cookie on the response.
func (s *CookieStore) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if cookie, err := c.Request.Cookie(s.cfg.Name); err == nil {
			token = cookie.Value
		}
		session := NewSession(token, func(token string, ttl time.Duration) {
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     s.cfg.Name,
				Value:    token,
				Path:     "/",
				MaxAge:   int(ttl / time.Second),
				HttpOnly: true,
				Secure:   s.cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			})
		})
		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), session))
		c.Next()
	}
}

func (s *CookieStore) Join(ctx context.Context, userID, contestID int64) error {
	session, ok := SessionFrom(ctx)
	if !ok {
		return errSessionMissing()
	}
	key := strconv.FormatInt(userID, 10)
	joined, err := s.parse(session.Token())
	if err != nil {
		// A tampered or expired cookie is replaced.
		joined = make(map[string][]int64)
	} else if slices.Contains(joined[key], contestID) {
		return nil
	}
	joined[key] = append(joined[key], contestID)
	token, err := s.sign(joined)
	if err != nil {
		return err
	}
	session.set(token, s.cfg.TTL)
	return nil
}

func (s *CookieStore) HasJoined(ctx context.Context, userID, contestID int64) (bool, error) {
	ids, err := s.Contests(ctx, userID)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, contestID), nil
}

func (s *CookieStore) Contests(ctx context.Context, userID int64) ([]int64, error) {
	session, ok := SessionFrom(ctx)
	if !ok {
		return nil, errSessionMissing()
	}
	joined, err := s.parse(session.Token())
	if err != nil {
		return nil, err
	}
	return slices.Clone(joined[strconv.FormatInt(userID, 10)]), nil
}

func (s *CookieStore) sign(joined map[string][]int64) (string, error) {
	now := s.now()
	claims := joinClaims{
		Joined: joined,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", appErr.Wrap(fmt.Errorf("sign join cookie failed: %w", err), appErr.RegistrationFailed)
	}
	return raw, nil
}

// parse returns the join map of a token. An empty token is an empty set.
func (s *CookieStore) parse(raw string) (map[string][]int64, error) {
	if raw == "" {
		return make(map[string][]int64), nil
	}
	parsed, err := jwt.ParseWithClaims(raw, &joinClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.cfg.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErr.New(appErr.JoinStateInvalid).WithMessage("join cookie expired")
		}
		return nil, appErr.New(appErr.JoinStateInvalid).WithMessage("join cookie invalid")
	}
	claims, ok := parsed.Claims.(*joinClaims)
	if !ok || !parsed.Valid {
		return nil, appErr.New(appErr.JoinStateInvalid).WithMessage("join cookie invalid")
	}
	if claims.Joined == nil {
		claims.Joined = make(map[string][]int64)
	}
	return claims.Joined, nil
}

func errSessionMissing() error {
	return appErr.New(appErr.JoinStateInvalid).WithMessage("join session missing")
}
