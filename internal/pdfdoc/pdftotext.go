package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// PdftotextPages reads page text through poppler's pdftotext binary. It is the
// alternate loader used when the primary backend yields no page text.
type PdftotextPages struct {
	path     string
	numPages int
	timeout  time.Duration
}

func NewPdftotextPages(path string, numPages int) (*PdftotextPages, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("pdf path required")
	}
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not found in PATH: %w", err)
	}
	return &PdftotextPages{path: path, numPages: numPages, timeout: 2 * time.Minute}, nil
}

func (p *PdftotextPages) NumPages() int {
	return p.numPages
}

func (p *PdftotextPages) PageText(ctx context.Context, pageNumber int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	page := strconv.Itoa(pageNumber)
	cmd := exec.CommandContext(callCtx, "pdftotext",
		"-f", page,
		"-l", page,
		"-enc", "UTF-8",
		"-q",
		p.path,
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return "", fmt.Errorf("pdftotext page %d: %w; stderr=%s", pageNumber, err, s)
		}
		return "", fmt.Errorf("pdftotext page %d: %w", pageNumber, err)
	}
	return stdout.String(), nil
}
