package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// pandocArgs converts stdin HTML to DOCX on stdout. $ADR_DOCX_REFERENCE may
// name a reference.docx carrying the corporate styles.
func pandocArgs(title string) []string {
	args := []string{"--from", "html", "--to", "docx", "--standalone", "--output", "-"}
	if title != "" {
		args = append(args, "--metadata", "title="+title)
	}
	if ref := os.Getenv("ADR_DOCX_REFERENCE"); ref != "" {
		args = append(args, "--reference-doc", ref)
	}
	return args
}

func exportDOCX(ctx context.Context, html, name, title string) (*Result, error) {
	pandoc, err := exec.LookPath("pandoc")
	if err != nil {
		return nil, fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, pandoc, pandocArgs(title)...)
	cmd.Stdin = strings.NewReader(html)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("run pandoc: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("run pandoc: %w", err)
	}

	return &Result{
		Data:     stdout.Bytes(),
		Filename: name + ".docx",
		MimeType: docxMime,
	}, nil
}
