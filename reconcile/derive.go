package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

const maxTitleRunes = 120

// HashBody is the content fingerprint used for three-way reconciliation:
// the lowercase hex SHA-256 of the raw note body.
func HashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// DeriveTitle extracts a display title from a note body: the first
// non-blank line, markdown heading markers stripped, capped at 120 runes.
func DeriveTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > maxTitleRunes {
			return string(runes[:maxTitleRunes])
		}
		return line
	}
	return ""
}

var hashtagPattern = regexp.MustCompile(`(?:^|\s)#(\p{L}[\p{L}\p{N}_\-/]*)`)

// DeriveTags collects the distinct inline hashtag tokens from a note body,
// lowercased and sorted for stable comparisons.
func DeriveTags(body string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var tags []string
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
