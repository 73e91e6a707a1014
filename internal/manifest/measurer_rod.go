package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"disc-report/internal/render"
)

// RodMeasurer measures pages in a headless Chromium at A4 size.
type RodMeasurer struct {
	Bin         string
	NoSandbox   bool
	PageTimeout time.Duration

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (m *RodMeasurer) ensureBrowser() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != nil {
		return m.browser, nil
	}
	l := launcher.New().Headless(true).NoSandbox(m.NoSandbox)
	if m.Bin != "" {
		l = l.Bin(m.Bin)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	m.browser, m.launcher = b, l
	return b, nil
}

// MeasurePage opens fileURL and collects anchors, the chart image and the
// percentage containers.
func (m *RodMeasurer) MeasurePage(ctx context.Context, fileURL string) (PageMeasurement, error) {
	browser, err := m.ensureBrowser()
	if err != nil {
		return PageMeasurement{}, err
	}
	timeout := m.PageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := browser.Context(pageCtx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return PageMeasurement{}, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             render.PageSize.ViewportWidthPx,
		Height:            render.PageSize.ViewportHeightPx,
		DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		return PageMeasurement{}, fmt.Errorf("set viewport: %w", err)
	}
	if err := page.Navigate(fileURL); err != nil {
		return PageMeasurement{}, fmt.Errorf("navigate %s: %w", fileURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return PageMeasurement{}, fmt.Errorf("wait load: %w", err)
	}
	res, err := page.Eval(measureJS)
	if err != nil {
		return PageMeasurement{}, fmt.Errorf("measure: %w", err)
	}
	var pm PageMeasurement
	if err := json.Unmarshal([]byte(res.Value.Str()), &pm); err != nil {
		return PageMeasurement{}, fmt.Errorf("decode measurement: %w", err)
	}
	return pm, nil
}

// Close shuts the browser down.
func (m *RodMeasurer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher = nil
	}
	return err
}

// measureJS returns a JSON string shaped like PageMeasurement.
const measureJS = `async () => {
  if (document.fonts && document.fonts.ready) {
    await document.fonts.ready;
  }
  const box = (el) => {
    const r = el.getBoundingClientRect();
    return { top: r.top, left: r.left, width: r.width, height: r.height };
  };
  const style = (el) => {
    const s = getComputedStyle(el);
    return {
      fontFamily: s.fontFamily,
      fontSize: parseFloat(s.fontSize) || 0,
      fontWeight: s.fontWeight,
      color: s.color,
      textAlign: s.textAlign,
      letterSpacing: parseFloat(s.letterSpacing) || 0,
      backgroundColor: s.backgroundColor,
    };
  };
  const out = { anchors: {}, chart: null, percentageGroups: [] };

  for (const key of ["Naam", "Voornaam", "Datum", "Stijl"]) {
    const el = document.querySelector('a[href="http://DBF_' + key + '"] span');
    if (el) {
      out.anchors[key] = { rect: box(el), style: style(el) };
    }
  }

  const chartSelectors = [
    'img._idGenObjectAttribute-1._idGenObjectAttribute-2[src*="image/"]',
    'img[class*="_idGenObjectAttribute-1"][class*="_idGenObjectAttribute-2"]',
    'img[src*="../image/"]',
  ];
  outer: for (const sel of chartSelectors) {
    for (const img of document.querySelectorAll(sel)) {
      const r = box(img);
      if (r.width > 100 && r.height > 100) {
        out.chart = { rect: r };
        break outer;
      }
    }
  }

  for (const c of document.querySelectorAll('div[id^="_idContainer"]')) {
    const spans = Array.from(c.querySelectorAll("span")).filter(
      (s) => s.children.length === 0 && s.textContent.trim() === "0%"
    );
    if (spans.length !== 4) continue;
    const items = spans.map((s) => ({ rect: box(s), style: style(s) }));
    items.sort((a, b) => a.rect.top - b.rect.top);
    out.percentageGroups.push(items);
  }
  out.percentageGroups.sort((a, b) => a[0].rect.top - b[0].rect.top);
  return JSON.stringify(out);
}`
