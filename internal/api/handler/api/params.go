package api

import (
	"errors"
	"net/http"
	"strconv"
)

// queryInt reads a positive integer query parameter, falling back to def
// when absent or malformed and clamping to ceiling when ceiling > 0.
func queryInt(r *http.Request, key string, def, ceiling int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	if ceiling > 0 && n > ceiling {
		return ceiling
	}
	return n
}

// queryLimit reads a page size. Zero is not "unlimited" here: it falls back to
// def like any other value below 1, and the result never exceeds ceiling.
func queryLimit(r *http.Request, def, ceiling int) int {
	n := queryInt(r, "limit", def, ceiling)
	if n < 1 {
		return def
	}
	return n
}

const maxImportBytes = 1 << 20

var errMissingKey = errors.New("key is required")
