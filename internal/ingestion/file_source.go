package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"wooswap-indexer/internal/normalize"
	"wooswap-indexer/internal/observability"
)

const maxLineSize = 1 << 20

// FileSource replays newline-delimited JSON raw events.
// Blank lines are skipped; undecodable lines are logged and dropped.
type FileSource struct {
	path   string
	open   func() (io.ReadCloser, error)
	logger *logrus.Entry
}

// NewFileSource reads events from the file at path.
func NewFileSource(path string, logger *logrus.Entry) *FileSource {
	if logger == nil {
		logger = logrus.WithField("component", "file-source")
	}
	return &FileSource{
		path:   path,
		open:   func() (io.ReadCloser, error) { return os.Open(path) },
		logger: logger.WithField("path", path),
	}
}

// NewReaderSource reads events from r. name identifies it in logs and metrics.
func NewReaderSource(name string, r io.Reader, logger *logrus.Entry) *FileSource {
	s := NewFileSource(name, logger)
	s.open = func() (io.ReadCloser, error) { return io.NopCloser(r), nil }
	return s
}

// NewPathSource reads from path, or from standard input when path is "-".
func NewPathSource(path string, logger *logrus.Entry) *FileSource {
	if path == "-" {
		return NewReaderSource("stdin", os.Stdin, logger)
	}
	return NewFileSource(path, logger)
}

// Name implements Source.
func (s *FileSource) Name() string { return "file" }

// Subscribe implements Source. The channel closes at end of input.
func (s *FileSource) Subscribe(ctx context.Context) (<-chan *Message, error) {
	f, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}

	out := make(chan *Message, 256)
	go func() {
		defer close(out)
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)

		line := 0
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line++
			data := bytes.TrimSpace(scanner.Bytes())
			if len(data) == 0 {
				continue
			}

			observability.RecordEventReceived(s.Name())
			raw, err := normalize.Decode(data)
			if err != nil {
				observability.RecordEventDropped("decode")
				s.logger.WithError(err).WithField("line", line).Warn("Dropping undecodable line")
				continue
			}

			select {
			case out <- &Message{Raw: raw}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			s.logger.WithError(err).WithField("line", line).Error("Read failed")
			return
		}
		s.logger.WithField("lines", line).Info("End of input")
	}()

	return out, nil
}
