package export

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const pdfTimeout = 30 * time.Second

// A4 in inches, with the margins used by the HTML template's print styles.
const (
	a4Width    = 8.27
	a4Height   = 11.69
	pageMargin = 0.8
)

var chromeCandidates = []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"}

// chromePath finds a headless-capable browser, preferring $CHROME_PATH.
func chromePath() (string, error) {
	if p := os.Getenv("CHROME_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	for _, name := range chromeCandidates {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no chromium or chrome binary found", ErrPDFDependencyMissing)
}

// pdfFooter prints the ADR reference and page numbers at the bottom of every
// page. Chrome fills the pageNumber and totalPages spans.
func pdfFooter(reference string) string {
	return `<div style="font-size:8px;width:100%;padding:0 0.8in;color:#666;display:flex;justify-content:space-between">` +
		`<span>` + template.HTMLEscapeString(reference) + `</span>` +
		`<span><span class="pageNumber"></span> / <span class="totalPages"></span></span></div>`
}

// exportPDF prints the HTML document with headless Chrome. The document is
// injected into a blank page so its size is not bound by URL limits.
func exportPDF(ctx context.Context, html, name, reference string) (*Result, error) {
	execPath, err := chromePath()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pdfTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var pdfData []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("get frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4Width).
				WithPaperHeight(a4Height).
				WithMarginTop(pageMargin).
				WithMarginBottom(pageMargin).
				WithMarginLeft(pageMargin).
				WithMarginRight(pageMargin).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate("<span></span>").
				WithFooterTemplate(pdfFooter(reference)).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}

	return &Result{
		Data:     pdfData,
		Filename: name + ".pdf",
		MimeType: "application/pdf",
	}, nil
}
