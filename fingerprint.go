package ssar

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// Fingerprint hashes the ordered candidate list. Two scans with no mutation in
// between produce the same fingerprint.
func Fingerprint(candidates []Candidate) string {
	var b strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&b, "%s\x1f%s\x1f%s\x1f%s\x1f%s\x1f%t\n",
			c.Path, c.Attribute, c.Key, formatValue(c.Current), formatValue(c.Proposed), c.WillChange)
	}
	return fmt.Sprintf("%x", xxh3.Hash128([]byte(b.String())).Bytes())
}
