package reconcile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashBody(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBody(""))
	assert.Equal(t, HashBody("same"), HashBody("same"))
	assert.NotEqual(t, HashBody("one"), HashBody("two"))
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"plain first line", "Groceries\nmilk\neggs", "Groceries"},
		{"skips blank lines", "\n\n  \nActual title", "Actual title"},
		{"strips heading markers", "## Weekly review\n- item", "Weekly review"},
		{"empty body", "", ""},
		{"only whitespace", " \n\t\n", ""},
		{"bare heading marker line skipped", "#\nreal title", "real title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.body))
		})
	}
}

func TestDeriveTitleCapsLength(t *testing.T) {
	long := strings.Repeat("x", 500)
	title := DeriveTitle(long)
	assert.Len(t, []rune(title), 120)
}

func TestDeriveTags(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"none", "no tags here", nil},
		{"single", "remember #groceries today", []string{"groceries"}},
		{"deduplicated and sorted", "#zeta then #alpha then #zeta", []string{"alpha", "zeta"}},
		{"start of body", "#first line", []string{"first"}},
		{"nested path tags", "filed under #work/projects", []string{"work/projects"}},
		{"case folded", "#TODO and #Todo", []string{"todo"}},
		{"digit start is not a tag", "#2024 planning", nil},
		{"heading is not a tag", "# Title\nbody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTags(tt.body))
		})
	}
}
