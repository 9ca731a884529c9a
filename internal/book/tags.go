package book

import "strings"

// MergeTags merges two tag lists, removing duplicates and blanks.
// First-seen order is kept so output is stable across runs.
func MergeTags(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			result = append(result, tag)
		}
	}

	return result
}
