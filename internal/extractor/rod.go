package extractor

import (
	"context"
	"fmt"

	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	startDateSelector    = "#startDateFechaP"
	endDateSelector      = "#endDateFechaP"
	searchButtonSelector = "button.sg-btnForm"
	emptyResultSelector  = "td.dt-empty"
	downloadLinkText     = "Descargar en formato Excel"
	userAgent            = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// RodLauncher starts a local Chromium through go-rod.
type RodLauncher struct {
	SearchURL string
	Bin       string
	Headless  bool
}

func (l RodLauncher) Launch(ctx context.Context, downloadDir string) (Session, error) {
	ln := launcher.New().
		Headless(l.Headless).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("window-size", "1920,1080").
		Set("user-agent", userAgent)
	if l.Bin != "" {
		ln = ln.Bin(l.Bin)
	}

	controlURL, err := ln.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		ln.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	err = proto.BrowserSetDownloadBehavior{
		Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath: downloadDir,
	}.Call(browser)
	if err != nil {
		_ = browser.Close()
		ln.Kill()
		return nil, fmt.Errorf("failed to allow downloads into %s: %w", downloadDir, err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		ln.Kill()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &rodSession{
		searchURL: l.SearchURL,
		launcher:  ln,
		browser:   browser,
		page:      page,
	}, nil
}

type rodSession struct {
	searchURL string
	launcher  *launcher.Launcher
	browser   *rod.Browser
	page      *rod.Page
}

func (s *rodSession) Submit(ctx context.Context, r models.DateRange) error {
	page := s.page.Context(ctx)
	if err := page.Navigate(s.searchURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", s.searchURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed to load search page: %w", err)
	}

	from, to := r.FormatSource()
	if err := fillInput(page, startDateSelector, from); err != nil {
		return err
	}
	if err := fillInput(page, endDateSelector, to); err != nil {
		return err
	}

	button, err := page.Element(searchButtonSelector)
	if err != nil {
		return fmt.Errorf("failed to find search button: %w", err)
	}
	// a scripted click is not blocked by overlays
	if _, err := button.Eval("() => this.click()"); err != nil {
		return fmt.Errorf("failed to click search button: %w", err)
	}
	return nil
}

func fillInput(page *rod.Page, selector, value string) error {
	input, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", selector, err)
	}
	if err := input.SelectAllText(); err != nil {
		return fmt.Errorf("failed to clear %s: %w", selector, err)
	}
	if err := input.Input(value); err != nil {
		return fmt.Errorf("failed to type into %s: %w", selector, err)
	}
	return nil
}

func (s *rodSession) Probe(ctx context.Context) (ProbeResult, error) {
	page := s.page.Context(ctx)

	ok, link, err := page.HasR("a", downloadLinkText)
	if err != nil {
		return ProbePending, fmt.Errorf("failed to look for download link: %w", err)
	}
	if ok {
		// a hidden link is not clickable yet
		visible, err := link.Visible()
		if err != nil {
			return ProbePending, fmt.Errorf("failed to check download link visibility: %w", err)
		}
		if visible {
			return ProbeReady, nil
		}
	}

	ok, _, err = page.Has(emptyResultSelector)
	if err != nil {
		return ProbePending, fmt.Errorf("failed to look for empty result marker: %w", err)
	}
	if ok {
		return ProbeEmpty, nil
	}
	return ProbePending, nil
}

func (s *rodSession) TriggerDownload(ctx context.Context) error {
	page := s.page.Context(ctx)
	link, err := page.ElementR("a", downloadLinkText)
	if err != nil {
		return fmt.Errorf("failed to find download link: %w", err)
	}
	if _, err := link.Eval("() => this.click()"); err != nil {
		return fmt.Errorf("failed to click download link: %w", err)
	}
	return nil
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
