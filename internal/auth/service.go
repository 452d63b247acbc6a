package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/david/campus-notice/internal/logging"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrInvalidSecret = errors.New("invalid admin secret")
)

// DefaultTokenTTL is the lifetime of tokens issued without an explicit ttl.
const DefaultTokenTTL = 24 * time.Hour

// Service signs and checks the bearer tokens used by callers of the crawl API and
// guards the admin routes.
type Service struct {
	secret      []byte
	adminSecret []byte
	adminHash   []byte
}

// NewService builds a Service. An empty jwtSecret is replaced by an ephemeral random
// one, so tokens do not survive a restart. With neither adminSecret nor
// adminSecretHash set, admin routes reject every request.
func NewService(jwtSecret, adminSecret, adminSecretHash string) (*Service, error) {
	log := logging.For("auth")
	s := &Service{
		secret:      []byte(strings.TrimSpace(jwtSecret)),
		adminSecret: []byte(strings.TrimSpace(adminSecret)),
		adminHash:   []byte(strings.TrimSpace(adminSecretHash)),
	}
	if len(s.secret) == 0 {
		fallback, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT fallback secret: %w", err)
		}
		s.secret = []byte(fallback)
		log.Warn("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	}
	if len(s.adminHash) > 0 {
		if _, err := bcrypt.Cost(s.adminHash); err != nil {
			return nil, fmt.Errorf("ADMIN_SECRET_HASH is not a bcrypt hash: %w", err)
		}
	} else if len(s.adminSecret) == 0 {
		log.Warn("ADMIN_SECRET is not set; admin routes are locked")
	}
	return s, nil
}

// IssueToken signs an HS256 token for subject. A non-positive ttl means DefaultTokenTTL.
func (s *Service) IssueToken(subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(s.secret)
}

// ParseToken verifies a token and returns its subject.
func (s *Service) ParseToken(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// CheckAdminSecret compares a presented secret against the configured hash, or the
// plain secret when no hash is set.
func (s *Service) CheckAdminSecret(presented string) error {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return ErrInvalidSecret
	}
	if len(s.adminHash) > 0 {
		if bcrypt.CompareHashAndPassword(s.adminHash, []byte(presented)) != nil {
			return ErrInvalidSecret
		}
		return nil
	}
	if len(s.adminSecret) == 0 || subtle.ConstantTimeCompare(s.adminSecret, []byte(presented)) != 1 {
		return ErrInvalidSecret
	}
	return nil
}

// HashSecret produces a value suitable for ADMIN_SECRET_HASH.
func HashSecret(plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", errors.New("secret is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
