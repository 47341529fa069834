package validation

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

func TestValidateCaseID(t *testing.T) {
	tests := []struct {
		name    string
		caseID  string
		wantErr bool
	}{
		{"simple id", "smith-v-jones", false},
		{"with underscore", "case_2024_17", false},
		{"empty", "", true},
		{"traversal", "../other", true},
		{"embedded traversal", "a..b", true},
		{"forward slash", "a/b", true},
		{"backslash", `a\b`, true},
		{"hidden", ".hidden", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCaseID(tt.caseID)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, cgerrors.ErrCodeInvalidPath, cgerrors.GetCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFileName(t *testing.T) {
	assert.NoError(t, ValidateFileName("contract.pdf"))
	assert.NoError(t, ValidateFileName("witness statement.docx"))
	assert.Error(t, ValidateFileName("../secrets.txt"))
	assert.Error(t, ValidateFileName(".env"))
	assert.Error(t, ValidateFileName(""))
}

func TestValidateChunkID(t *testing.T) {
	assert.NoError(t, ValidateChunkID("ab12cd34"))
	assert.NoError(t, ValidateChunkID("contract.pdf_3"))
	assert.Error(t, ValidateChunkID("../../../secret_0"))
	assert.Error(t, ValidateChunkID(`raw\other`))
	assert.Error(t, ValidateChunkID(""))
}

func TestCasePath_ResolvesInsideCasesDir(t *testing.T) {
	dir := t.TempDir()

	p, err := CasePath(dir, "smith-v-jones")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "smith-v-jones"), p)
}

func TestCasePath_RejectsTraversal(t *testing.T) {
	_, err := CasePath(t.TempDir(), "..")
	assert.Error(t, err)
}

func TestCasePath_RejectsSymlinkedCaseDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on windows")
	}

	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "linked-case")))

	_, err := CasePath(dir, "linked-case")
	require.Error(t, err)
	assert.Equal(t, cgerrors.ErrCodeInvalidPath, cgerrors.GetCode(err))
}

func TestDocumentPath_ResolvesInsideCase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "smith-v-jones"), 0o755))

	p, err := DocumentPath(dir, "smith-v-jones", "brief.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "smith-v-jones", "brief.pdf"), p)
}

func TestDocumentPath_RejectsBadFileName(t *testing.T) {
	_, err := DocumentPath(t.TempDir(), "smith-v-jones", "../../etc/passwd")
	assert.Error(t, err)

	var ce *cgerrors.CaseError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, cgerrors.ErrCodeInvalidPath, ce.Code)
}

func TestDocumentPath_RejectsSymlinkedDocument(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on windows")
	}

	dir := t.TempDir()
	caseDir := filepath.Join(dir, "smith-v-jones")
	require.NoError(t, os.MkdirAll(caseDir, 0o755))

	target := filepath.Join(t.TempDir(), "outside.txt")
	require.NoError(t, os.WriteFile(target, []byte("secret"), 0o644))
	require.NoError(t, os.Symlink(target, filepath.Join(caseDir, "evidence.txt")))

	_, err := DocumentPath(dir, "smith-v-jones", "evidence.txt")
	assert.Error(t, err)
}
