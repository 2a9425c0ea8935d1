package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2idのパラメータ（OWASP推奨値）
const (
	hashTime    uint32 = 1
	hashMemory  uint32 = 64 * 1024
	hashThreads uint8  = 4
	hashSaltLen        = 16
	hashKeyLen  uint32 = 32
)

// ErrEmptyPassword は空のパスワードをハッシュ化しようとした場合のエラー。
var ErrEmptyPassword = errors.New("password cannot be empty")

// errInvalidHash はPHC文字列として解釈できないハッシュを表す。
var errInvalidHash = errors.New("invalid password hash")

// PasswordHasher はパスワードのハッシュ化と照合を行う。
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify は一致すれば(true, nil)、不一致なら(false, nil)を返す。
	Verify(password, encoded string) (bool, error)
}

// Argon2idHasher はargon2idによるPasswordHasher実装。
// ハッシュはPHC形式 $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key> で保存する。
type Argon2idHasher struct{}

// NewArgon2idHasher は新しいArgon2idHasherを生成する。
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash はランダムなソルトでパスワードをハッシュ化する。
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, hashSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, hashTime, hashMemory, hashThreads, hashKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, hashMemory, hashTime, hashThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// phcParams はPHC文字列から取り出したパラメータ。
type phcParams struct {
	memory  uint32
	time    uint32
	threads uint32
	salt    []byte
	key     []byte
}

func parsePHC(encoded string) (*phcParams, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return nil, fmt.Errorf("%w: unexpected format", errInvalidHash)
	}
	if fields[1] != "argon2id" {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", errInvalidHash, fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidHash, err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %d", errInvalidHash, version)
	}

	p := &phcParams{}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidHash, err)
	}
	if p.threads == 0 || p.threads > 255 {
		return nil, fmt.Errorf("%w: threads out of range", errInvalidHash)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", errInvalidHash, err)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return nil, fmt.Errorf("%w: key: %v", errInvalidHash, err)
	}
	if len(p.key) == 0 || len(p.key) > 1024 {
		return nil, fmt.Errorf("%w: key length %d", errInvalidHash, len(p.key))
	}
	return p, nil
}

// Verify はパスワードがハッシュと一致するかを定数時間で比較する。
func (h *Argon2idHasher) Verify(password, encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, uint8(p.threads), uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// dummyHash はアカウントが存在しない場合の照合に使うハッシュ。
// 存在するアカウントと同じ計算コストをかけ、応答時間からアカウントの有無を推測させない。
var dummyHash = func() string {
	encoded, err := NewArgon2idHasher().Hash("authflow-dummy-password")
	if err != nil {
		panic(err)
	}
	return encoded
}()
