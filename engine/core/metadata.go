package core

import "maps"

// CloneMap returns a shallow copy of m. A nil map yields an empty map.
func CloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	return out
}
