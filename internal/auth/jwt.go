package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers signature mismatch, malformed tokens and elapsed
// expiry alike. Callers map it to a 401 without distinguishing the cause.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims carry enough identity to serve authenticated reads without
// a database lookup per request.
type AccessClaims struct {
	UserID string `json:"_id"`
	RollNo string `json:"roll_no"`
	Email  string `json:"email_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID string `json:"_id"`
	jwt.RegisteredClaims
}

// Manager signs and verifies the two token kinds. Access and refresh
// tokens use independent secrets and expiries so a leaked access token
// ages out fast while a leaked refresh token dies on rotation.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (m *Manager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *Manager) GenerateAccessToken(userID, rollNo, email, name string) (string, error) {
	now := time.Now().UTC()

	claims := AccessClaims{
		UserID: userID,
		RollNo: rollNo,
		Email:  email,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.accessSecret)
}

func (m *Manager) GenerateRefreshToken(userID string) (string, error) {
	now := time.Now().UTC()

	claims := RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.refreshSecret)
}

func (m *Manager) VerifyAccessToken(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	if err := m.parse(tokenStr, claims, m.accessSecret); err != nil {
		return nil, err
	}

	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (m *Manager) VerifyRefreshToken(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}

	if err := m.parse(tokenStr, claims, m.refreshSecret); err != nil {
		return nil, err
	}

	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256

		_, ok := t.Method.(*jwt.SigningMethodHMAC)

		if !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})

	if err != nil {
		return ErrInvalidToken
	}

	if !token.Valid {
		return ErrInvalidToken
	}

	return nil
}
