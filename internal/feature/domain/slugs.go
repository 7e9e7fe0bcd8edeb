package domain

import (
	"strings"

	"github.com/gosimple/slug"
)

// SlugAllowList supplies the entitlement slugs the product recognizes.
type SlugAllowList interface {
	AllowedSlugs() []string
}

// StaticAllowList is a fixed SlugAllowList.
type StaticAllowList []string

func (l StaticAllowList) AllowedSlugs() []string { return l }

// NormalizeSlug lowercases and trims a slug the way stored slugs are written.
// Anything that is not already a plain slug yields "" so it can never match
// the allow-list.
func NormalizeSlug(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if !slug.IsSlug(value) {
		return ""
	}
	return value
}

// FilterSlugs keeps the allowed slugs from a comma-delimited string, in input
// order and without repeats. Anything not on the allow-list is dropped.
func FilterSlugs(allowed []string, raw string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, value := range allowed {
		set[value] = struct{}{}
	}

	candidates := strings.Split(raw, ",")
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		value := NormalizeSlug(candidate)
		if _, ok := set[value]; !ok {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// ParseSlugCandidates splits a space-delimited request into candidate slugs.
func ParseSlugCandidates(raw string) []string {
	return strings.Fields(raw)
}

// MatchingSlugs intersects candidates with the allow-list, keeping allow-list
// order. It returns nil when nothing matches.
func MatchingSlugs(allowed []string, candidates []string) []string {
	requested := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if value := strings.TrimSpace(candidate); value != "" {
			requested[value] = struct{}{}
		}
	}
	var out []string
	for _, value := range allowed {
		if _, ok := requested[value]; ok {
			out = append(out, value)
		}
	}
	return out
}

// JoinSlugs renders slugs the way operators edit them.
func JoinSlugs(slugs []string) string {
	return strings.Join(slugs, ", ")
}
