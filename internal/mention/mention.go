// Package mention extracts @-addressed e-mail mentions from comment text.
package mention

import (
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`@([A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,})`)

// Extract returns the distinct e-mail addresses mentioned in body as
// "@local@domain.tld", lowercased, in order of first appearance.
func Extract(body string) []string {
	matches := pattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		address := strings.ToLower(match[1])
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		out = append(out, address)
	}
	return out
}

// Recipients is Extract minus the author's own address.
func Recipients(body, authorEmail string) []string {
	author := strings.ToLower(strings.TrimSpace(authorEmail))
	all := Extract(body)
	out := all[:0]
	for _, address := range all {
		if address == author {
			continue
		}
		out = append(out, address)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
