package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed = errors.New("password hashing failed")
	ErrEmptyPassword = errors.New("password is empty")
)

// PasswordHasher provides interface for password operations
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) error
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a new password hasher using bcrypt
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// Sentinel is the single shared password every account signs in with.
// Only its hash is kept in memory.
type Sentinel struct {
	hasher PasswordHasher
	hash   string
}

// NewSentinel hashes secret once with h.
func NewSentinel(h PasswordHasher, secret string) (*Sentinel, error) {
	hash, err := h.Hash(secret)
	if err != nil {
		return nil, err
	}
	return &Sentinel{hasher: h, hash: hash}, nil
}

// Matches reports whether password equals the sentinel.
func (s *Sentinel) Matches(password string) bool {
	return s.hasher.Compare(s.hash, password) == nil
}
