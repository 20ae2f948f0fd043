package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// derivedKey is a signing key for one access key, secret and day. Only
// a digest of the secret is kept.
type derivedKey struct {
	accessKeyID string
	secretHash  [sha256.Size]byte
	date        string
	key         []byte
}

// keyCache memoizes derived signing keys per region and service. A key
// is valid for one access key and secret pair and one UTC day.
type keyCache struct {
	mu      sync.RWMutex
	entries map[string]derivedKey
}

func newKeyCache() *keyCache {
	return &keyCache{entries: make(map[string]derivedKey)}
}

func lookupKey(region, service string) string {
	var b strings.Builder
	b.Grow(len(region) + len(service) + 1)
	b.WriteString(region)
	b.WriteByte('/')
	b.WriteString(service)
	return b.String()
}

// signingKey returns the cached key or derives and stores a new one.
func (c *keyCache) signingKey(accessKeyID, secret, date, region, service string) []byte {
	lk := lookupKey(region, service)
	secretHash := sha256.Sum256([]byte(secret))

	c.mu.RLock()
	entry, ok := c.entries[lk]
	c.mu.RUnlock()
	if ok && entry.accessKeyID == accessKeyID && entry.date == date &&
		hmac.Equal(entry.secretHash[:], secretHash[:]) {
		return entry.key
	}

	key := deriveKey(secret, date, region, service)

	c.mu.Lock()
	c.entries[lk] = derivedKey{accessKeyID: accessKeyID, secretHash: secretHash, date: date, key: key}
	c.mu.Unlock()

	return key
}

// deriveKey implements the SigV4 key derivation chain:
//
//	kDate    = HMAC("AWS4" + secret, date)
//	kRegion  = HMAC(kDate, region)
//	kService = HMAC(kRegion, service)
//	kSigning = HMAC(kService, "aws4_request")
func deriveKey(secret, date, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	k = hmacSHA256(k, []byte(region))
	k = hmacSHA256(k, []byte(service))
	return hmacSHA256(k, []byte(scopeTerminator))
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func signHex(key []byte, stringToSign string) string {
	return hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))
}
