package commit

import "path"

// volatilePatterns are key-name globs (path.Match syntax) for fields that
// describe a run rather than its content.
var volatilePatterns = []string{
	"timestamp",
	"*_timestamp",
	"*_at",
	"wall_time*",
	"pid",
	"ppid",
	"process_id",
	"hostname",
	"path",
	"*_path",
	"*_dir",
	"cwd",
}

// VolatilePatterns returns a copy of the fixed volatile field patterns.
func VolatilePatterns() []string {
	return append([]string(nil), volatilePatterns...)
}

// IsVolatile reports whether an object key is stripped before committing.
func IsVolatile(key string) bool {
	for _, p := range volatilePatterns {
		if ok, _ := path.Match(p, key); ok {
			return true
		}
	}
	return false
}

// StripVolatile returns a copy of a decoded JSON tree with volatile keys
// removed from every object at every depth. The input is not modified.
func StripVolatile(tree any) any {
	switch x := tree.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, v := range x {
			if IsVolatile(k) {
				continue
			}
			out[k] = StripVolatile(v)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, v := range x {
			out[i] = StripVolatile(v)
		}
		return out
	default:
		return tree
	}
}
