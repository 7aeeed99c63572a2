package confloader

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// NameDelimiter separates the segments of a setting name.
const NameDelimiter = "/"

// SeedEntry is one setting read from a seed file.
type SeedEntry struct {
	Name  string
	Value []byte
}

// Flatten reads a YAML or JSON seed file and returns one entry per leaf,
// named by its path joined with "/" and prefixed with prefix.
//
// Strings are stored verbatim, numbers and booleans in their text form
// and lists as JSON. A null leaf yields an empty value, which deletes the
// setting when saved. Entries are sorted by name.
func Flatten(path, prefix string) ([]SeedEntry, error) {
	parser, err := ParserFor(path)
	if err != nil {
		return nil, err
	}

	k := koanf.New(NameDelimiter)
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load seed %s: %w", path, err)
	}

	prefix = strings.Trim(prefix, NameDelimiter)
	flat := k.All()
	out := make([]SeedEntry, 0, len(flat))
	for name, v := range flat {
		value, err := encodeLeaf(v)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %s: %w", path, name, err)
		}
		if prefix != "" {
			name = prefix + NameDelimiter + name
		}
		out = append(out, SeedEntry{Name: name, Value: value})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func encodeLeaf(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	case bool:
		return []byte(strconv.FormatBool(t)), nil
	case int:
		return []byte(strconv.Itoa(t)), nil
	case int64:
		return []byte(strconv.FormatInt(t, 10)), nil
	case uint64:
		return []byte(strconv.FormatUint(t, 10)), nil
	case float64:
		return []byte(strconv.FormatFloat(t, 'g', -1, 64)), nil
	default:
		return json.Marshal(t)
	}
}

// Nest turns flat setting names into a nested document suitable for YAML
// or JSON encoding. A name that is both a value and a parent of other
// names keeps its value under the key "=".
func Nest(flat map[string]string) map[string]any {
	m := make(map[string]any, len(flat))
	for name, v := range flat {
		m[name] = v
	}

	// A value whose name is also a parent would be overwritten by the
	// parent's map when unflattening.
	for name := range flat {
		for other := range flat {
			if strings.HasPrefix(other, name+NameDelimiter) {
				m[name+NameDelimiter+"="] = m[name]
				delete(m, name)
				break
			}
		}
	}

	return maps.Unflatten(m, NameDelimiter)
}
