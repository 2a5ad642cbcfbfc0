package export

import (
	"context"
	"encoding/base64"
	"os/exec"

	"github.com/chromedp/chromedp"

	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
)

var chromeBinaries = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"}

// Chrome rasterizes by screenshotting the SVG element in headless Chrome.
// A browser is started per conversion.
type Chrome struct {
	execPath string
}

// NewChrome returns a headless Chrome rasterizer. An empty execPath lets
// chromedp locate the browser.
func NewChrome(execPath string) *Chrome {
	return &Chrome{execPath: execPath}
}

func (c *Chrome) Name() string { return RasterizerChrome }

// Available reports whether a Chrome binary can be found.
func (c *Chrome) Available() bool {
	if c.execPath != "" {
		_, err := exec.LookPath(c.execPath)
		return err == nil
	}
	for _, bin := range chromeBinaries {
		if _, err := exec.LookPath(bin); err == nil {
			return true
		}
	}
	return false
}

func (c *Chrome) PNG(ctx context.Context, svg []byte, scale float64) ([]byte, error) {
	if !c.Available() {
		return nil, derrors.New(derrors.ErrCodeUnsupported, "png export with the chrome rasterizer requires Chrome or Chromium")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if c.execPath != "" {
		opts = append(opts, chromedp.ExecPath(c.execPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	page := `<!DOCTYPE html><html><body style="margin:0;background:transparent">` + string(svg) + `</body></html>`
	url := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(page))

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(1600, 1200, chromedp.EmulateScale(scale)),
		chromedp.Navigate(url),
		chromedp.WaitVisible(`svg`, chromedp.ByQuery),
		chromedp.Screenshot(`svg`, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Chrome) PDF(context.Context, []byte) ([]byte, error) {
	return nil, derrors.New(derrors.ErrCodeUnsupported, "pdf export requires the rsvg rasterizer")
}
