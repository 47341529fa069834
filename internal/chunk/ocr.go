package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

// OCRRunner produces a text-bearing copy of a scanned PDF.
// Implementations return the path of the OCRed file.
type OCRRunner interface {
	Run(ctx context.Context, path string) (string, error)
}

// OCRMyPDFRunner shells out to ocrmypdf. --skip-text leaves pages that
// already carry a text layer untouched.
type OCRMyPDFRunner struct {
	// Binary overrides the ocrmypdf path (default "ocrmypdf").
	Binary string
	// Timeout bounds a single run (default 300s).
	Timeout time.Duration
	Logger  *slog.Logger
}

// Run executes ocrmypdf into a temp file and returns its path. The caller
// owns the returned file.
func (r *OCRMyPDFRunner) Run(ctx context.Context, path string) (string, error) {
	bin := r.Binary
	if bin == "" {
		bin = "ocrmypdf"
	}
	timeout := r.Timeout
	if timeout == 0 {
		timeout = 300 * time.Second
	}

	tmp, err := os.CreateTemp("", "ocr-*"+filepath.Ext(path))
	if err != nil {
		return "", cgerrors.Wrap(cgerrors.ErrCodeOCRFailed, err)
	}
	outPath := tmp.Name()
	tmp.Close()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, "--skip-text", "--optimize", "1", path, outPath)
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return "", cgerrors.New(cgerrors.ErrCodeOCRFailed,
			fmt.Sprintf("ocr failed for %s", filepath.Base(path)), err)
	}
	return outPath, nil
}
