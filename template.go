package main

import (
	"sort"
	"strings"
)

// Templates use {name} placeholders. "{{" and "}}" are literal braces, same
// as Python's str.format, so existing template files keep working unchanged.
// A brace that does not form a well-formed placeholder passes through as-is.

// templateVars returns the placeholder names referenced by tmpl, in order of
// first appearance.
func templateVars(tmpl string) []string {
	var names []string
	seen := make(map[string]bool)

	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '{' {
			continue
		}
		if i+1 < len(tmpl) && tmpl[i+1] == '{' {
			i++
			continue
		}
		name, end, ok := parsePlaceholder(tmpl, i)
		if !ok {
			continue
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i = end
	}

	return names
}

// fillTemplate substitutes every placeholder in tmpl with the matching row
// value. When one or more referenced names are absent or blank in the row,
// it returns the sorted list of missing names and an empty string.
func fillTemplate(tmpl string, row map[string]string) (string, []string) {
	missing := make(map[string]bool)
	for _, name := range templateVars(tmpl) {
		if strings.TrimSpace(row[name]) == "" {
			missing[name] = true
		}
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", names
	}

	var sb strings.Builder
	sb.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c == '{' {
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				sb.WriteByte('{')
				i++
				continue
			}
			if name, end, ok := parsePlaceholder(tmpl, i); ok {
				sb.WriteString(row[name])
				i = end
				continue
			}
		}
		if c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}' {
			sb.WriteByte('}')
			i++
			continue
		}
		sb.WriteByte(c)
	}

	return sb.String(), nil
}

// parsePlaceholder reads a {name} starting at the '{' at position i and
// returns the name and the index of the closing brace. A nested '{', a
// missing '}', or an empty name means there is no placeholder here.
func parsePlaceholder(tmpl string, i int) (name string, end int, ok bool) {
	j := i + 1
	for ; j < len(tmpl); j++ {
		switch tmpl[j] {
		case '}':
			name = tmpl[i+1 : j]
			if name == "" {
				return "", 0, false
			}
			return name, j, true
		case '{':
			return "", 0, false
		}
	}
	return "", 0, false
}
