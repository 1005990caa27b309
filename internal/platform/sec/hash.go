// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// # Hashing Collaborator

// Hasher is the pluggable one-way adaptive hashing strategy.
//
// Implementations manage salt and cost internally and encode both into the
// returned string, so Verify needs nothing but the plaintext and the hash.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// Hasher names accepted by [NewHasher].
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// ErrUnknownHasher is returned by [NewHasher] for unsupported algorithm names.
var ErrUnknownHasher = errors.New("sec: unknown password hasher")

// NewHasher builds the hashing collaborator selected by configuration.
//
// The returned Hasher always verifies both encodings, so existing hashes keep
// working after the configured algorithm changes.
func NewHasher(name string, bcryptCost int) (Hasher, error) {
	bcryptHasher := BcryptHasher{Cost: bcryptCost}
	argonHasher := DefaultArgon2id()

	switch strings.ToLower(name) {
	case HasherBcrypt:
		return multiHasher{primary: bcryptHasher, fallbacks: []Hasher{argonHasher}}, nil
	case HasherArgon2id:
		return multiHasher{primary: argonHasher, fallbacks: []Hasher{bcryptHasher}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHasher, name)
	}
}

// multiHasher hashes with primary and verifies against whichever
// implementation recognizes the stored encoding.
type multiHasher struct {
	primary   Hasher
	fallbacks []Hasher
}

func (m multiHasher) Hash(plain string) (string, error) {
	return m.primary.Hash(plain)
}

func (m multiHasher) Verify(plain, hash string) bool {
	if m.primary.Verify(plain, hash) {
		return true
	}
	for _, fallback := range m.fallbacks {
		if fallback.Verify(plain, hash) {
			return true
		}
	}
	return false
}

// # bcrypt

// BcryptHasher hashes passwords with bcrypt. A zero Cost uses bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

// Hash hashes a plain-text password using the bcrypt algorithm.
func (h BcryptHasher) Hash(plainTextPassword string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), cost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify compares a plain-text password with its bcrypt hash in constant time.
func (h BcryptHasher) Verify(plainTextPassword, existingHash string) bool {
	if !strings.HasPrefix(existingHash, "$2") {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	return err == nil
}

// # argon2id

// Argon2idHasher hashes passwords with argon2id and encodes the result in the
// PHC string format: $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>.
type Argon2idHasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// Bounds on parameters read back from a stored argon2id hash.
const (
	argon2MaxMemory = 1 << 20 // KiB
	argon2MaxTime   = 16
	argon2MinSalt   = 8
	argon2MinKey    = 16
)

// DefaultArgon2id returns the RFC 9106 second recommended parameter set.
func DefaultArgon2id() Argon2idHasher {
	return Argon2idHasher{Time: 3, Memory: 64 * 1024, Threads: 4, SaltLen: 16, KeyLen: 32}
}

// Hash derives an argon2id key with a fresh random salt.
func (h Argon2idHasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("sec: failed to read salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, h.Time, h.Memory, h.Threads, h.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Time, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify re-derives the key with the parameters stored in hash.
func (h Argon2idHasher) Verify(plain, hash string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != HasherArgon2id {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return false
	}
	if threads == 0 || timeCost == 0 || timeCost > argon2MaxTime ||
		memory < 8*uint32(threads) || memory > argon2MaxMemory {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < argon2MinSalt {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) < argon2MinKey {
		return false
	}

	actual := argon2.IDKey([]byte(plain), salt, timeCost, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1
}
