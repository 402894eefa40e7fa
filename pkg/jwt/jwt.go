package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrEmptyName    = errors.New("player name is required")
)

const issuer = "quiz-match"

// Claims 게스트 플레이어 식별 정보
type Claims struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secretKey string
	duration  time.Duration
	now       func() time.Time
}

// NewJWTManager JWT 매니저 생성
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: secretKey,
		duration:  duration,
		now:       time.Now,
	}
}

// WithClock 발급/검증 기준 시각 교체 (테스트용)
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	m.now = now
	return m
}

// GenerateGuest 새 게스트 ID 로 토큰 발급
func (m *JWTManager) GenerateGuest(name string) (token string, claims *Claims, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, ErrEmptyName
	}
	claims = &Claims{
		PlayerID:   uuid.NewString(),
		PlayerName: name,
	}
	token, err = m.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// Generate 기존 플레이어 ID 로 토큰 재발급
func (m *JWTManager) Generate(playerID, playerName string) (string, error) {
	if playerID == "" {
		return "", ErrInvalidToken
	}
	return m.sign(&Claims{PlayerID: playerID, PlayerName: playerName})
}

func (m *JWTManager) sign(claims *Claims) (string, error) {
	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   claims.PlayerID,
		ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

// Verify 토큰 검증 및 Claims 추출
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// 알고리즘 확인
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(m.secretKey), nil
		},
		jwt.WithTimeFunc(m.now),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.PlayerID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
