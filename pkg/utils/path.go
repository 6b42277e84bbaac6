package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// InTrustedRoot returns an error unless path lies strictly below trustedRoot.
// Both are expected to be clean.
func InTrustedRoot(path string, trustedRoot string) error {
	rel, err := filepath.Rel(trustedRoot, path)
	if err != nil {
		return fmt.Errorf("path %q is outside of %q: %w", path, trustedRoot, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q is outside of %q", path, trustedRoot)
	}
	return nil
}

// VerifyPath verifies that path, joined onto basePath, stays inside basePath.
func VerifyPath(path, basePath string) error {
	c := filepath.Clean(filepath.Join(basePath, path))
	return InTrustedRoot(c, filepath.Clean(basePath))
}

// RelativeURL maps a file inside root to a URL under prefix, e.g.
// ("/srv/output/a.png", "/srv/output", "/generated-images") ->
// "/generated-images/a.png".
func RelativeURL(file, root, prefix string) (string, error) {
	absFile, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if err := InTrustedRoot(absFile, absRoot); err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absFile)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(prefix, "/") + "/" + filepath.ToSlash(rel), nil
}
