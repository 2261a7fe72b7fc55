package keygen

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var secretPattern = regexp.MustCompile(`^sk_live_[0-9a-f]{64}$`)

func TestGenerate(t *testing.T) {
	g := New("")
	secret := g.Generate()

	assert.True(t, strings.HasPrefix(secret, DefaultPrefix))
	assert.Regexp(t, secretPattern, secret)
	assert.Len(t, secret, len(DefaultPrefix)+64)
}

func TestGenerate_CustomPrefix(t *testing.T) {
	g := New("sk_test_")
	secret := g.Generate()
	assert.True(t, strings.HasPrefix(secret, "sk_test_"))
	assert.Len(t, secret, len("sk_test_")+64)
}

func TestGenerate_Unique(t *testing.T) {
	g := New("")
	seen := make(map[string]struct{}, 500)
	for i := 0; i < 500; i++ {
		s := g.Generate()
		_, dup := seen[s]
		assert.False(t, dup, "duplicate secret generated")
		seen[s] = struct{}{}
	}
}

func TestMask(t *testing.T) {
	masked := Mask("sk_live_abcdef1234567890")

	assert.Equal(t, "sk_live_"+strings.Repeat("•", 12)+"7890", masked)
	assert.NotContains(t, masked, "abcdef123456")
}

func TestMask_Short(t *testing.T) {
	tests := []string{"", "a", "abcd", "sk_live_1234"}
	for _, in := range tests {
		masked := Mask(in)
		assert.Equal(t, strings.Repeat("•", len(in)), masked, "input %q", in)
	}
}

func TestMask_ThirteenChars(t *testing.T) {
	assert.Equal(t, "abcdefgh•jklm", Mask("abcdefghijklm"))
}

func TestMask_GeneratedSecrets(t *testing.T) {
	g := New("")
	for i := 0; i < 200; i++ {
		secret := g.Generate()
		masked := Mask(secret)

		runes := []rune(masked)
		assert.Equal(t, len(secret), len(runes))
		assert.Equal(t, secret[:MaskHead], string(runes[:MaskHead]))
		assert.Equal(t, secret[len(secret)-MaskTail:], string(runes[len(runes)-MaskTail:]))
		for _, r := range runes[MaskHead : len(runes)-MaskTail] {
			assert.Equal(t, RedactionGlyph, r)
		}
	}
}

func TestMask_Deterministic(t *testing.T) {
	s := New("").Generate()
	assert.Equal(t, Mask(s), Mask(s))
}
