package names

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var kebab = regexp.MustCompile(`^[a-z]+-[a-z]+-[0-9a-f]{4}$`)

func TestGenerate_Format(t *testing.T) {
	for range 100 {
		name := Generate()
		assert.Regexp(t, kebab, name)
	}
}

func TestGenerate_Varies(t *testing.T) {
	seen := make(map[string]struct{})
	for range 50 {
		seen[Generate()] = struct{}{}
	}
	assert.Greater(t, len(seen), 40)
}
