package render

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"disc-report/internal/shared/telemetry"
)

// LocalConfig configures the headless browser renderer.
type LocalConfig struct {
	// Bin is the Chrome/Chromium binary. Empty means launcher lookup with
	// automatic download.
	Bin         string
	PageTimeout time.Duration
	NoSandbox   bool
}

// LocalRenderer prints pages with a headless Chromium controlled over CDP.
type LocalRenderer struct {
	cfg LocalConfig

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewLocal constructs a LocalRenderer. The browser starts on first use.
func NewLocal(cfg LocalConfig) *LocalRenderer {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 45 * time.Second
	}
	return &LocalRenderer{cfg: cfg}
}

// Name identifies the backend in logs.
func (r *LocalRenderer) Name() string { return "local" }

func (r *LocalRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return r.browser, nil
		}
		telemetry.Warn("render.browser_stale", map[string]any{"renderer": r.Name()})
		_ = r.browser.Close()
		r.browser = nil
	}

	l := launcher.New().Headless(true).NoSandbox(r.cfg.NoSandbox)
	if r.cfg.Bin != "" {
		l = l.Bin(r.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch chrome: %v", ErrRenderFailed, err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: connect to chrome: %v", ErrRenderFailed, err)
	}
	r.browser = browser
	r.launcher = l
	telemetry.Info("render.browser_started", map[string]any{"renderer": r.Name()})
	return browser, nil
}

// RenderPage loads html into a fresh tab, waits for fonts and images and
// prints it on A4.
func (r *LocalRenderer) RenderPage(ctx context.Context, html string) ([]byte, error) {
	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	pageCtx, cancel := context.WithTimeout(ctx, r.cfg.PageTimeout)
	defer cancel()

	page, err := browser.Context(pageCtx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("%w: open page: %v", ErrRenderFailed, err)
	}
	defer func() { _ = page.Close() }()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             PageSize.ViewportWidthPx,
		Height:            PageSize.ViewportHeightPx,
		DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		return nil, fmt.Errorf("%w: set viewport: %v", ErrRenderFailed, err)
	}
	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("%w: set content: %v", ErrRenderFailed, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: wait load: %v", ErrRenderFailed, err)
	}
	if _, err := page.Eval(waitAssetsJS); err != nil {
		return nil, fmt.Errorf("%w: wait assets: %v", ErrRenderFailed, err)
	}

	stream, err := page.PDF(localPrintOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: print: %v", ErrRenderFailed, err)
	}
	pdf, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf stream: %v", ErrRenderFailed, err)
	}
	if len(pdf) == 0 {
		return nil, ErrEmptyPDF
	}
	return pdf, nil
}

// localPrintOptions prints every page the content produces. Overflow is left for
// the merger's page count check to reject rather than clipped here.
func localPrintOptions() *proto.PagePrintToPDF {
	return &proto.PagePrintToPDF{
		PaperWidth:        gson.Num(PageSize.WidthIn),
		PaperHeight:       gson.Num(PageSize.HeightIn),
		MarginTop:         gson.Num(PageSize.Margin),
		MarginBottom:      gson.Num(PageSize.Margin),
		MarginLeft:        gson.Num(PageSize.Margin),
		MarginRight:       gson.Num(PageSize.Margin),
		PrintBackground:   PageSize.PrintBackground,
		PreferCSSPageSize: PageSize.PreferCSSPageSize,
	}
}

// Close shuts the browser down.
func (r *LocalRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher = nil
	}
	return err
}

// Fonts must be ready and every image decoded before printing, otherwise
// Chromium prints fallback glyphs or empty boxes.
const waitAssetsJS = `async () => {
  if (document.fonts && document.fonts.ready) {
    await document.fonts.ready;
  }
  const imgs = Array.from(document.images || []);
  await Promise.all(imgs.map((img) => img.decode ? img.decode().catch(() => undefined) : undefined));
  return true;
}`
