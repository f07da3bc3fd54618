package imagecache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// extensions are tried in order as substrings of the lower-cased locator.
var extensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif"}

const defaultExtension = ".jpg"

// Derivative file suffixes. Derivatives share the original's base name.
const (
	iconSuffix   = "_thumb.png"
	mediumSuffix = "_medium.png"
)

// Key returns the relative cache key for a source locator: the MD5 of the
// locator plus a guessed extension, under a sanitised category directory.
// Keys always use forward slashes.
func Key(locator, category string) string {
	sum := md5.Sum([]byte(locator))
	name := hex.EncodeToString(sum[:]) + guessExtension(locator)
	if dir := SanitizeCategory(category); dir != "" {
		return dir + "/" + name
	}
	return name
}

func guessExtension(locator string) string {
	lower := strings.ToLower(locator)
	for _, ext := range extensions {
		if strings.Contains(lower, ext) {
			return ext
		}
	}
	return defaultExtension
}

// SanitizeCategory turns a category into a single safe path segment.
func SanitizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return ""
	}
	safe := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(category)
	if safe == "." || safe == ".." {
		return "_"
	}
	return safe
}

// Derivatives returns the icon and medium keys belonging to an original key.
func Derivatives(key string) (icon, medium string) {
	base := strings.TrimSuffix(key, path.Ext(key))
	return base + iconSuffix, base + mediumSuffix
}

// isDerivative reports whether a file name belongs to a generated variant.
func isDerivative(name string) bool {
	return strings.HasSuffix(name, iconSuffix) || strings.HasSuffix(name, mediumSuffix)
}

// isOriginal reports whether a file name looks like a cached original.
func isOriginal(name string) bool {
	if isDerivative(name) || strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// cleanKey validates a relative key and returns it in canonical form.
func cleanKey(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") || path.IsAbs(key) {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return clean, nil
}
