// Package textutil holds small string helpers shared by the outbound
// clients, mainly cleanup of cart line-item property maps.
package textutil

import "strings"

// NormalizeStringMap trims keys and values and drops entries whose key is
// blank, returning nil when nothing survives.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
