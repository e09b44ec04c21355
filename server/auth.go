package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	ownerTokenExpiry = 24 * time.Hour
	bcryptCost       = 12
	minPasswordLen   = 1
	maxPasswordLen   = 72 // bcrypt input limit
	joinRateWindow   = 60 * time.Second
	maxJoinAttempts  = 10
)

var (
	ErrBadPassword     = errors.New("wrong password")
	ErrInvalidPassword = errors.New("invalid password")
	ErrNotOwner        = errors.New("not the match owner")
	ErrTooManyAttempts = errors.New("too many attempts, try again later")
)

// Auth guards match passwords and issues owner tokens for created matches.
type Auth struct {
	secret []byte
	cost   int

	// Rate limiting for password attempts (IP -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates an Auth signing owner tokens with secret. An empty secret
// is replaced by a random one, so tokens do not survive a restart.
func NewAuth(secret string) *Auth {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("failed to generate owner secret: " + err.Error())
		}
	}
	return &Auth{
		secret:  key,
		cost:    bcryptCost,
		rateMap: make(map[string]*rateEntry),
	}
}

// HashPassword hashes a match password. An empty password means the match
// is open and yields a nil hash.
func (a *Auth) HashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return nil, fmt.Errorf("%w: must be %d-%d characters", ErrInvalidPassword, minPasswordLen, maxPasswordLen)
	}
	return bcrypt.GenerateFromPassword([]byte(password), a.cost)
}

// CheckPassword verifies password against hash. Failed attempts are
// counted per ip and refused once the limit is reached.
func (a *Auth) CheckPassword(hash []byte, password, ip string) error {
	if hash == nil {
		return nil
	}
	if !a.allowAttempt(ip) {
		return ErrTooManyAttempts
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		a.recordFailure(ip)
		return ErrBadPassword
	}
	return nil
}

// OwnerToken issues the token that lets the creator close a match.
func (a *Auth) OwnerToken(match string) (string, error) {
	claims := jwt.MapClaims{
		"match": match,
		"exp":   time.Now().Add(ownerTokenExpiry).Unix(),
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateOwner checks that tokenStr was issued for match.
func (a *Auth) ValidateOwner(tokenStr, match string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotOwner, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ErrNotOwner
	}
	if name, _ := claims["match"].(string); name != match {
		return ErrNotOwner
	}
	return nil
}

func (a *Auth) allowAttempt(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	entry, ok := a.rateMap[ip]
	if !ok || time.Now().After(entry.ResetAt) {
		return true
	}
	return entry.Count < maxJoinAttempts
}

func (a *Auth) recordFailure(ip string) {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	// Sweep expired windows
	for k, e := range a.rateMap {
		if now.After(e.ResetAt) {
			delete(a.rateMap, k)
		}
	}
	entry, ok := a.rateMap[ip]
	if !ok {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(joinRateWindow)}
		return
	}
	entry.Count++
}
