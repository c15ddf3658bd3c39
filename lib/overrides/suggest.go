// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package overrides

import (
	"strings"

	"github.com/spf13/pflag"
)

// suggestFlag finds the first unrecognized flag in args and returns the
// closest defined flag (edit distance at most 3), formatted with its
// prefix. Returns "" if nothing is close enough. Scanning stops where
// option parsing stops: at "--" or the first non-flag token.
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	var defined []string
	flagSet.VisitAll(func(f *pflag.Flag) {
		defined = append(defined, f.Name)
	})

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || !strings.HasPrefix(arg, "-") {
			return ""
		}
		if !strings.HasPrefix(arg, "--") {
			// A bare shorthand that takes a value consumes the next
			// argument; clusters like -w/tmp carry their own.
			if len(arg) == 2 {
				if f := flagSet.ShorthandLookup(arg[1:]); f != nil && f.NoOptDefVal == "" {
					i++
				}
			}
			continue
		}

		name := strings.TrimPrefix(arg, "--")
		hasValue := false
		if index := strings.IndexByte(name, '='); index >= 0 {
			name = name[:index]
			hasValue = true
		}
		if f := flagSet.Lookup(name); f != nil {
			if f.NoOptDefVal == "" && !hasValue {
				i++
			}
			continue
		}

		bestName := ""
		bestDistance := 4
		for _, candidate := range defined {
			distance := levenshtein(name, candidate)
			if distance < bestDistance {
				bestDistance = distance
				bestName = candidate
			}
		}
		if bestName == "" {
			return ""
		}
		return "--" + bestName
	}
	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	previous := make([]int, len(a)+1)
	for i := range previous {
		previous[i] = i
	}
	for j := 1; j <= len(b); j++ {
		current := make([]int, len(a)+1)
		current[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[i] = min(previous[i]+1, current[i-1]+1, previous[i-1]+cost)
		}
		previous = current
	}
	return previous[len(a)]
}
