// Package runlog collects everything a run logs so it can be shipped as a
// single text artifact when the run ends.
package runlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrAlreadyExported = errors.New("run log already exported")

const keyLayout = "20060102_150405"

type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

type Sink struct {
	logger    *logrus.Logger
	buf       *lockedBuffer
	startedAt time.Time

	mu       sync.Mutex
	exported bool
}

// New returns a sink whose logger writes to out and to the in-memory buffer.
func New(out io.Writer, startedAt time.Time) *Sink {
	buf := &lockedBuffer{}

	logger := logrus.New()
	logger.SetOutput(io.MultiWriter(out, buf))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
	logger.SetLevel(logrus.InfoLevel)

	return &Sink{logger: logger, buf: buf, startedAt: startedAt}
}

func (s *Sink) Logger() *logrus.Logger {
	return s.logger
}

// Key is the object name of the artifact, derived from the run start.
func (s *Sink) Key() string {
	return fmt.Sprintf("logs/ejecucion_%s.txt", s.startedAt.Format(keyLayout))
}

func (s *Sink) Contents() []byte {
	return s.buf.Bytes()
}

// Export uploads the buffered log. Only the first call does anything, later
// calls get ErrAlreadyExported whether or not the first upload succeeded.
func (s *Sink) Export(ctx context.Context, uploader Uploader) (string, error) {
	s.mu.Lock()
	if s.exported {
		s.mu.Unlock()
		return "", ErrAlreadyExported
	}
	s.exported = true
	s.mu.Unlock()

	key := s.Key()
	if err := uploader.Upload(ctx, key, s.Contents()); err != nil {
		return "", fmt.Errorf("failed to export run log: %w", err)
	}
	return key, nil
}

func (s *Sink) Exported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exported
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
