package keygen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// DefaultPrefix is prepended to every generated secret unless configured otherwise.
	DefaultPrefix = "sk_live_"
	// SecretBytes is the number of random bytes behind each secret (256 bits).
	SecretBytes = 32

	// MaskHead is the number of leading characters Mask leaves visible.
	MaskHead = 8
	// MaskTail is the number of trailing characters Mask leaves visible.
	MaskTail = 4
	// RedactionGlyph replaces every hidden character.
	RedactionGlyph = '•'
)

// Generator produces API key secrets.
type Generator struct {
	Prefix string
}

// New returns a Generator using prefix, or DefaultPrefix when prefix is empty.
func New(prefix string) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Generator{Prefix: prefix}
}

// Generate returns Prefix followed by 64 lowercase hex characters.
// It panics if the system's secure random source is unavailable.
func (g *Generator) Generate() string {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("keygen: secure random source unavailable: %v", err))
	}
	return g.Prefix + hex.EncodeToString(buf)
}

// Mask renders secret with everything between the first MaskHead and the last
// MaskTail characters replaced by RedactionGlyph. Secrets of MaskHead+MaskTail
// characters or fewer are redacted entirely.
func Mask(secret string) string {
	runes := []rune(secret)
	n := len(runes)
	if n <= MaskHead+MaskTail {
		return strings.Repeat(string(RedactionGlyph), n)
	}

	var b strings.Builder
	b.Grow(len(secret) + (n-MaskHead-MaskTail)*2)
	b.WriteString(string(runes[:MaskHead]))
	b.WriteString(strings.Repeat(string(RedactionGlyph), n-MaskHead-MaskTail))
	b.WriteString(string(runes[n-MaskTail:]))
	return b.String()
}
