package utils

import (
	"fmt"
	"strings"
)

// CacheKey builds "<endpoint>-<param1>-<param2>-...", e.g. "topQuestions-42-5-WEEK".
// The cache itself attaches no meaning to keys.
func CacheKey(endpoint string, params ...interface{}) string {
	if len(params) == 0 {
		return endpoint
	}

	var b strings.Builder
	b.WriteString(endpoint)
	for _, p := range params {
		b.WriteByte('-')
		fmt.Fprint(&b, p)
	}
	return b.String()
}
