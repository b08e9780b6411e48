package shmif

import (
	"sort"
	"strconv"
	"strings"
)

// Args holds the key=value arguments a compositor hands out on connection.
// The wire form is "key=value:key=value"; a key may repeat and a bare key
// has an empty value.
type Args map[string][]string

// ParseArgs parses the wire form. Empty items are skipped.
func ParseArgs(s string) Args {
	args := Args{}
	for _, item := range strings.Split(s, ":") {
		if item == "" {
			continue
		}
		key, value, _ := strings.Cut(item, "=")
		args[key] = append(args[key], value)
	}
	return args
}

// Lookup returns the index-th value of key.
func (a Args) Lookup(key string, index int) (string, bool) {
	vals, ok := a[key]
	if !ok || index < 0 || index >= len(vals) {
		return "", false
	}
	return vals[index], true
}

// Uint returns the first value of key parsed as a base-10 unsigned integer.
func (a Args) Uint(key string) (int, bool) {
	v, ok := a.Lookup(key, 0)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 31)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// String renders the wire form with keys sorted.
func (a Args) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		for _, v := range a[k] {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, ":")
}
