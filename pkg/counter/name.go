package counter

import "strings"

// ParseName derives a counter name from a request path by stripping exactly one leading slash.
func ParseName(path string) (string, error) {
	name := strings.TrimPrefix(path, "/")
	if name == "" {
		return "", ErrNameRequired
	}
	return name, nil
}
