package textutil

// Truncate returns the first n runes of s and whether anything was cut.
func Truncate(s string, n int) (string, bool) {
	if n < 0 {
		n = 0
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}

// Excerpt is Truncate with a "..." suffix on cut text.
func Excerpt(s string, n int) string {
	out, cut := Truncate(s, n)
	if cut {
		return out + "..."
	}
	return out
}
