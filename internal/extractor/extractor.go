package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/sirupsen/logrus"
)

var ErrTimedOut = errors.New("extraction timed out")

// Session drives the registry search page. It is the only part of the
// extractor that touches a browser.
type Session interface {
	Submit(ctx context.Context, r models.DateRange) error
	// Probe checks once, without waiting, whether the result of the last
	// search is known.
	Probe(ctx context.Context) (ProbeResult, error)
	TriggerDownload(ctx context.Context) error
	Close() error
}

// Launcher acquires the browser session held for a whole run.
type Launcher interface {
	Launch(ctx context.Context, downloadDir string) (Session, error)
}

type Config struct {
	// SettleDelay is waited once after submitting, before the first probe.
	SettleDelay     time.Duration
	ResultTimeout   time.Duration
	DownloadTimeout time.Duration
	PollInterval    time.Duration
}

func DefaultConfig() Config {
	return Config{
		SettleDelay:     5 * time.Second,
		ResultTimeout:   30 * time.Second,
		DownloadTimeout: 60 * time.Second,
		PollInterval:    time.Second,
	}
}

type Outcome struct {
	State State
	File  string
}

var partialSuffixes = []string{".crdownload", ".part", ".tmp", ".download"}

type Extractor struct {
	session     Session
	downloadDir string
	config      Config
	clock       Clock
	logger      logrus.FieldLogger
}

func New(session Session, downloadDir string, cfg Config, clock Clock, logger logrus.FieldLogger) *Extractor {
	return &Extractor{
		session:     session,
		downloadDir: downloadDir,
		config:      cfg,
		clock:       clock,
		logger:      logger,
	}
}

// Fetch runs one search and, when the site offers a spreadsheet, waits for
// the download to finish. NoResults and Complete return a nil error.
func (e *Extractor) Fetch(ctx context.Context, r models.DateRange) (Outcome, error) {
	log := e.logger.WithField("range", r.String())
	state := StateSubmitting
	move := func(next State) {
		log.Infof("Extractor: %s -> %s", state, next)
		state = next
	}
	fail := func(err error) (Outcome, error) {
		move(StateError)
		return Outcome{State: state}, err
	}

	log.Infof("Extractor: %s", state)
	err := e.bounded(ctx, func(ctx context.Context) error { return e.session.Submit(ctx, r) })
	if errors.Is(err, ErrTimedOut) {
		move(StateTimedOut)
		return Outcome{State: state}, fmt.Errorf("%w: search form for %s not ready after %s", ErrTimedOut, r, e.config.ResultTimeout)
	}
	if err != nil {
		return fail(fmt.Errorf("failed to submit search for %s: %w", r, err))
	}
	move(StateAwaitingResult)

	if e.config.SettleDelay > 0 {
		e.clock.Sleep(e.config.SettleDelay)
	}

	deadline := e.clock.Now().Add(e.config.ResultTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		var probe ProbeResult
		err := e.bounded(ctx, func(ctx context.Context) error {
			var err error
			probe, err = e.session.Probe(ctx)
			return err
		})
		if err != nil && !errors.Is(err, ErrTimedOut) {
			return fail(fmt.Errorf("failed to probe search result for %s: %w", r, err))
		}
		if err == nil && probe == ProbeEmpty {
			move(StateNoResults)
			return Outcome{State: state}, nil
		}
		if err == nil && probe == ProbeReady {
			break
		}

		if !e.clock.Now().Before(deadline) {
			move(StateTimedOut)
			return Outcome{State: state}, fmt.Errorf("%w: no result for %s after %s", ErrTimedOut, r, e.config.ResultTimeout)
		}
		e.clock.Sleep(e.config.PollInterval)
	}

	move(StateDownloading)
	err = e.bounded(ctx, e.session.TriggerDownload)
	if errors.Is(err, ErrTimedOut) {
		move(StateTimedOut)
		return Outcome{State: state}, fmt.Errorf("%w: download link for %s not clickable after %s", ErrTimedOut, r, e.config.ResultTimeout)
	}
	if err != nil {
		return fail(fmt.Errorf("failed to trigger download for %s: %w", r, err))
	}

	deadline = e.clock.Now().Add(e.config.DownloadTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		file, done, err := e.completedDownload()
		if err != nil {
			return fail(err)
		}
		if done {
			move(StateComplete)
			log.Infof("Extractor: downloaded %s", filepath.Base(file))
			return Outcome{State: state, File: file}, nil
		}

		if !e.clock.Now().Before(deadline) {
			move(StateTimedOut)
			return Outcome{State: state}, fmt.Errorf("%w: download for %s not finished after %s", ErrTimedOut, r, e.config.DownloadTimeout)
		}
		e.clock.Sleep(e.config.PollInterval)
	}
}

// bounded runs one browser step under ResultTimeout. Browser lookups retry
// until their context ends, so an unbounded step could hang the run.
func (e *Extractor) bounded(ctx context.Context, step func(context.Context) error) error {
	if e.config.ResultTimeout <= 0 {
		return step(ctx)
	}
	stepCtx, cancel := context.WithTimeout(ctx, e.config.ResultTimeout)
	defer cancel()

	err := step(stepCtx)
	if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return ErrTimedOut
	}
	return err
}

// completedDownload returns the newest spreadsheet once no partial download
// artifact is left in the directory.
func (e *Extractor) completedDownload() (string, bool, error) {
	entries, err := os.ReadDir(e.downloadDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to list download directory %s: %w", e.downloadDir, err)
	}

	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		for _, suffix := range partialSuffixes {
			if strings.HasSuffix(name, suffix) {
				return "", false, nil
			}
		}
		if !strings.HasSuffix(name, ".xlsx") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed between listing and stat
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(e.downloadDir, entry.Name())
			newestMod = info.ModTime()
		}
	}

	return newest, newest != "", nil
}

// ClearDownloads empties the download directory so a previous range's file
// cannot be taken for the current one.
func (e *Extractor) ClearDownloads() error {
	if err := os.MkdirAll(e.downloadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory %s: %w", e.downloadDir, err)
	}

	entries, err := os.ReadDir(e.downloadDir)
	if err != nil {
		return fmt.Errorf("failed to list download directory %s: %w", e.downloadDir, err)
	}
	for _, entry := range entries {
		path := filepath.Join(e.downloadDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove stale download %s: %w", path, err)
		}
	}
	return nil
}

func (e *Extractor) Close() error {
	return e.session.Close()
}

// Opener acquires a session and wraps it in an Extractor.
type Opener struct {
	Launcher    Launcher
	DownloadDir string
	Config      Config
	Clock       Clock
	Logger      logrus.FieldLogger
}

func (o Opener) Open(ctx context.Context) (*Extractor, error) {
	if err := os.MkdirAll(o.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory %s: %w", o.DownloadDir, err)
	}

	session, err := o.Launcher.Launch(ctx, o.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire browser session: %w", err)
	}

	return New(session, o.DownloadDir, o.Config, o.Clock, o.Logger), nil
}
