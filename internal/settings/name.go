package settings

// Name syntax.
const (
	// Separator delimits name segments.
	Separator = '/'

	// Terminator ends a name inside a stored key. Backends that keep the
	// value next to the name ("a/b=...") rely on it.
	Terminator = '='
)

// Match is the result of comparing a key against a name.
type Match int

const (
	// NoMatch means the name is not a segment-aligned prefix of the key.
	NoMatch Match = iota
	// Exact means the key equals the name (up to an optional terminator).
	Exact
	// Prefix means the name covers one or more leading segments of the key.
	Prefix
)

// String returns the match kind name.
func (m Match) String() string {
	switch m {
	case Exact:
		return "exact"
	case Prefix:
		return "prefix"
	default:
		return "none"
	}
}

// Matched reports whether the name covers the key.
func (m Match) Matched() bool {
	return m == Exact || m == Prefix
}

// NameSteq compares name against the front of key.
//
// The comparison only succeeds on a segment boundary: right after the
// matched bytes key must end, hit the terminator '=' (Exact) or continue
// with '/' (Prefix). For Prefix the returned remainder is the part of key
// after that separator. "bta" and "b" therefore never match "bt/a".
func NameSteq(key, name string) (Match, string) {
	i := 0
	for i < len(name) && i < len(key) && key[i] == name[i] && key[i] != Terminator {
		i++
	}
	if i != len(name) {
		return NoMatch, ""
	}

	if i == len(key) || key[i] == Terminator {
		return Exact, ""
	}
	if key[i] == Separator {
		return Prefix, key[i+1:]
	}
	return NoMatch, ""
}

// NameNext consumes the first segment of key.
//
// n is the length of that segment, zero once the key is exhausted. ok
// reports whether another segment follows, in which case next holds the
// key after the consumed separator. A terminator ends the key.
func NameNext(key string) (n int, next string, ok bool) {
	for n < len(key) && key[n] != Separator && key[n] != Terminator {
		n++
	}
	if n < len(key) && key[n] == Separator {
		return n, key[n+1:], true
	}
	return n, "", false
}

// InSubtree reports whether key equals subtree or lies below it.
// An empty subtree contains every key.
func InSubtree(key, subtree string) bool {
	if subtree == "" {
		return true
	}
	m, _ := NameSteq(key, subtree)
	return m.Matched()
}
