package auth

// DefaultSecret is the passphrase used when no signing secret is configured.
// It is public; deployments must set JWT_SECRET.
const DefaultSecret = "your-256-bit-secret-key-for-jwt-token-generation-minimum-32-characters"

// MinKeyLength is the HMAC-SHA256 key size in bytes.
const MinKeyLength = 32

// DeriveKey turns the configured secret into a signing key. Secrets of at
// least MinKeyLength bytes are used as is. Shorter secrets are repeated
// cyclically to fill exactly 32 bytes. An empty secret yields a 32-byte key
// derived from DefaultSecret. It never fails and is deterministic.
func DeriveKey(secret string) []byte {
	if secret == "" {
		return cycle([]byte(DefaultSecret))
	}

	raw := []byte(secret)
	if len(raw) >= MinKeyLength {
		return raw
	}
	return cycle(raw)
}

// cycle fills a MinKeyLength key with src repeated: key[i] = src[i % len(src)]
func cycle(src []byte) []byte {
	key := make([]byte, MinKeyLength)
	for i := range key {
		key[i] = src[i%len(src)]
	}
	return key
}
