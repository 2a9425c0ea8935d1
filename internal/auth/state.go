package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/authflow/internal/model"
)

const (
	stateIssuer     = "authflow"
	defaultStateTTL = 10 * time.Minute
)

// ErrInvalidState はOAuthのstateパラメータが検証できない場合のエラー。
var ErrInvalidState = errors.New("invalid oauth state")

// stateClaims はstateトークンのJWTクレーム。
type stateClaims struct {
	jwt.RegisteredClaims
	Nonce       string `json:"nonce"`
	CallbackURL string `json:"callback_url"`
}

// StateSigner はOAuthのstateパラメータをHS256のJWTとして発行・検証する。
// nonceは同じ値をCookieにも保存し、コールバック時に突き合わせる。
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner はStateSignerを生成する。ttlが0以下の場合は10分。
func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue はログイン後の遷移先を含むstateトークンとnonceを発行する。
func (s *StateSigner) Issue(callbackURL string) (token, nonce string, err error) {
	if err := ValidateCallbackURL(callbackURL); err != nil {
		return "", "", err
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce = hex.EncodeToString(b)

	now := s.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Nonce:       nonce,
		CallbackURL: callbackURL,
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign state: %w", err)
	}
	return token, nonce, nil
}

// Verify はstateトークンの署名・有効期限・nonceを検証し、遷移先を返す。
func (s *StateSigner) Verify(token, nonce string) (string, error) {
	if token == "" || nonce == "" {
		return "", fmt.Errorf("%w: missing state or nonce", ErrInvalidState)
	}

	var claims stateClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if claims.Nonce != nonce {
		return "", fmt.Errorf("%w: nonce mismatch", ErrInvalidState)
	}
	if err := ValidateCallbackURL(claims.CallbackURL); err != nil {
		return "", err
	}
	return claims.CallbackURL, nil
}

// ValidateCallbackURL はログイン後の遷移先が同一サイト内の相対パスかを検証する。
// "//evil.example" や "/\evil.example" のようなプロトコル相対URLは拒否する。
func ValidateCallbackURL(callbackURL string) error {
	if !strings.HasPrefix(callbackURL, "/") ||
		strings.HasPrefix(callbackURL, "//") ||
		strings.HasPrefix(callbackURL, "/\\") {
		return model.NewInvalidCallbackURLError(callbackURL)
	}

	u, err := url.Parse(callbackURL)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return model.NewInvalidCallbackURLError(callbackURL)
	}
	return nil
}
