package cache

import (
	"fmt"
	"strings"
)

// Key builds a cache key from the cached function's name and its arguments,
// e.g. Key("ListBills", 3) == "ListBills:3".
func Key(fn string, args ...any) string {
	var b strings.Builder
	b.WriteString(fn)
	for _, a := range args {
		b.WriteByte(':')
		fmt.Fprint(&b, a)
	}
	return b.String()
}

// Invalidate drops Key(fn, args...) and every longer key built from the same
// leading arguments, so Invalidate(c, "Spending", 3) removes
// "Spending:3:30" but leaves "Spending:31:30" alone.
func Invalidate[T any](c Cache[T], fn string, args ...any) {
	k := Key(fn, args...)
	c.Delete(k)
	c.DeletePrefix(k + ":")
}
