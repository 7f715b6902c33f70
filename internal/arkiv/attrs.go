package arkiv

// AttrsToMap flattens an entity's attribute list into a plain map.
// When the same key appears more than once, the later occurrence wins.
// A nil or empty list yields an empty, non-nil map.
func AttrsToMap(attrs []Attribute) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		out[a.Key] = a.Value
	}
	return out
}
