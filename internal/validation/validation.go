// Package validation guards filesystem access for case storage.
//
// Case IDs and document file names arrive from API callers and are used to
// build paths under the cases directory. Every identifier is checked for
// traversal characters, and every resolved path is checked for canonical
// containment before any file operation.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

// ValidateCaseID checks that a case ID is safe to use as a directory name.
// Rejects empty IDs, path separators, traversal sequences, and hidden names.
func ValidateCaseID(caseID string) error {
	return validateComponent(caseID, "case ID")
}

// ValidateFileName checks that a document file name is safe to use inside a
// case directory. The same rules as case IDs apply.
func ValidateFileName(name string) error {
	return validateComponent(name, "file name")
}

// ValidateChunkID checks that a chunk ID is safe to use as a file name stem
// under a case's raw_text directory. Chunk IDs normally come from the
// document index, but the citation validator also resolves IDs parsed out of
// model answers, so the same path rules apply.
func ValidateChunkID(id string) error {
	return validateComponent(id, "chunk ID")
}

func validateComponent(s, what string) error {
	if s == "" {
		return cgerrors.New(cgerrors.ErrCodeInvalidPath,
			fmt.Sprintf("%s must not be empty", what), nil)
	}
	if strings.Contains(s, "..") {
		return invalidPath(s, what, "must not contain '..'")
	}
	if strings.ContainsAny(s, `/\`) {
		return invalidPath(s, what, "must not contain path separators")
	}
	if strings.HasPrefix(s, ".") {
		return invalidPath(s, what, "must not start with '.'")
	}
	return nil
}

func invalidPath(s, what, reason string) error {
	return cgerrors.New(cgerrors.ErrCodeInvalidPath,
		fmt.Sprintf("invalid %s %q: %s", what, s, reason), nil).
		WithDetail("value", s)
}

// CasePath resolves the directory for a case and verifies canonical
// containment inside casesDir. Symlinked case directories are rejected.
func CasePath(casesDir, caseID string) (string, error) {
	if err := ValidateCaseID(caseID); err != nil {
		return "", err
	}
	return containedPath(casesDir, caseID)
}

// DocumentPath resolves a document file inside a case directory and verifies
// canonical containment. Symlinked documents are rejected.
func DocumentPath(casesDir, caseID, fileName string) (string, error) {
	if err := ValidateCaseID(caseID); err != nil {
		return "", err
	}
	if err := ValidateFileName(fileName); err != nil {
		return "", err
	}
	return containedPath(casesDir, caseID, fileName)
}

// containedPath joins elems under base and verifies the result stays inside
// base after cleaning. Existing targets must not be symlinks.
func containedPath(base string, elems ...string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", cgerrors.Wrap(cgerrors.ErrCodeInvalidPath, err)
	}

	joined := filepath.Join(append([]string{absBase}, elems...)...)
	cleaned := filepath.Clean(joined)

	rel, err := filepath.Rel(absBase, cleaned)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", cgerrors.New(cgerrors.ErrCodeInvalidPath,
			fmt.Sprintf("path escapes cases directory: %s", strings.Join(elems, "/")), err)
	}

	// Reject symlinks anywhere between base and target. A symlinked case
	// directory or document could point outside the cases root.
	probe := absBase
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		probe = filepath.Join(probe, part)
		info, err := os.Lstat(probe)
		if err != nil {
			// Not existing yet is fine for paths about to be created.
			if os.IsNotExist(err) {
				break
			}
			return "", cgerrors.Wrap(cgerrors.ErrCodeInvalidPath, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return "", cgerrors.New(cgerrors.ErrCodeInvalidPath,
				fmt.Sprintf("symlinks are not allowed under the cases directory: %s", probe), nil)
		}
	}

	return cleaned, nil
}
