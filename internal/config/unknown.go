package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys per section. The empty section is the top
// level, which also holds the section names themselves.
var knownKeys = map[string][]string{
	"": {
		"client_id", "client_secret", "auth_mode", "developer_token",
		"endpoints", "app_auth", "token_store", "retry", "logging", "network",
	},
	"endpoints": {
		"api_url", "upload_url", "auth_url", "token_url", "revoke_url", "redirect_url",
	},
	"app_auth": {
		"key_id", "private_key_path", "algorithm", "enterprise_id", "user_id",
	},
	"token_store": {
		"backend", "path", "redis_url", "redis_prefix", "refresh_retention",
	},
	"retry": {
		"max_attempts", "base_delay", "max_delay", "factor", "jitter",
	},
	"logging": {
		"log_level", "log_format",
	},
	"network": {
		"timeout", "user_agent", "expiry_buffer",
	},
}

func init() {
	for _, keys := range knownKeys {
		slices.Sort(keys)
	}
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// one error per unknown key, with a suggestion when a known key is close.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(key)
		if seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	section, field := "", key[0]

	if len(key) > 1 {
		if _, ok := knownKeys[key[0]]; ok {
			section, field = key[0], key[1]
		}
	}

	where := "unknown config key"
	if section != "" {
		where = fmt.Sprintf("unknown key in [%s]", section)
	}

	if suggestion := closestMatch(field, knownKeys[section]); suggestion != "" {
		return fmt.Errorf("%s %q, did you mean %q?", where, field, suggestion)
	}

	return fmt.Errorf("%s %q", where, field)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(strings.ToLower(unknown), k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings using a
// single rolling row.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
