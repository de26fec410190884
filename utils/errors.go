// Package utils holds small helpers shared by the built-in components.
package utils

import "errors"

// AnyError reports whether err matches any of the targets; a nil target
// matches a nil error, anything else is compared with [errors.Is].
func AnyError(err error, targets ...error) bool {
	for _, target := range targets {
		if target == nil {
			if err == nil {
				return true
			}
			continue
		}
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
