package cache

import (
	"fmt"
	"strings"
)

// Key builds a colon separated cache key, e.g. Key("bars", "EURUSD", "H1", 500)
// is "bars:EURUSD:H1:500".
func Key(prefix string, parts ...interface{}) string {
	elems := make([]string, 0, len(parts)+1)
	elems = append(elems, prefix)
	for _, p := range parts {
		elems = append(elems, fmt.Sprint(p))
	}
	return strings.Join(elems, ":")
}
