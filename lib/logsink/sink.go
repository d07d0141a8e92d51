// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package logsink

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/atomicfile"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/progress"
)

// DefaultMaxFileBytes is the rotation threshold when none is set.
const DefaultMaxFileBytes = 4 << 20

// markers prefix each line by level.
var markers = map[progress.Level]string{
	progress.LevelSuccess: "✓",
	progress.LevelError:   "✗",
	progress.LevelWarning: "⚠",
	progress.LevelInfo:    "ℹ",
}

// knownMarkers are left alone when a message already starts with one.
var knownMarkers = []string{"✓", "✗", "⚠", "ℹ", "✅", "❌"}

// Config configures a Sink.
type Config struct {
	Path string

	// MaxFileBytes triggers rotation. Zero selects DefaultMaxFileBytes;
	// negative disables rotation.
	MaxFileBytes int64

	Logger *slog.Logger
}

// Sink appends formatted log events to a file. Safe for concurrent
// use.
type Sink struct {
	path     string
	maxBytes int64
	logger   *slog.Logger

	// truncate empties the file after its content has been compressed.
	truncate func(path string, size int64) error

	mu   sync.Mutex
	file *os.File
	size int64
}

// Open creates the log directory if needed and opens the file for
// appending.
func Open(config Config) (*Sink, error) {
	if config.Path == "" {
		return nil, errors.New("log sink path is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.MaxFileBytes == 0 {
		config.MaxFileBytes = DefaultMaxFileBytes
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	sink := &Sink{
		path:     config.Path,
		maxBytes: config.MaxFileBytes,
		logger:   config.Logger,
		truncate: os.Truncate,
	}
	if err := sink.openLocked(); err != nil {
		return nil, err
	}
	return sink, nil
}

func (s *Sink) openLocked() error {
	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("inspecting log file: %w", err)
	}
	s.file = file
	s.size = info.Size()
	return nil
}

// Path returns the log file path.
func (s *Sink) Path() string {
	return s.path
}

// Format renders a log event as a log file line, without the trailing
// newline.
func Format(event progress.Event) string {
	message := event.Message
	if !hasMarker(message) {
		marker, ok := markers[event.Level]
		if !ok {
			marker = markers[progress.LevelInfo]
		}
		message = marker + " " + message
	}
	return "[" + event.Timestamp.Local().Format("15:04:05") + "] " + message
}

func hasMarker(message string) bool {
	for _, marker := range knownMarkers {
		if strings.HasPrefix(message, marker) {
			return true
		}
	}
	return false
}

// Handle writes event if it is a log event. It matches the broadcaster
// subscriber signature. Write failures are logged, not returned, so a
// full disk never disturbs the worker pipeline.
func (s *Sink) Handle(event progress.Event) {
	if event.Kind != progress.KindLog {
		return
	}
	if err := s.WriteLine(Format(event)); err != nil {
		s.logger.Warn("writing log file failed", "path", s.path, "error", err)
	}
}

// WriteLine appends line and a newline, rotating first when the file
// would exceed its size limit.
func (s *Sink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("log sink closed")
	}
	data := []byte(line + "\n")
	if s.maxBytes > 0 && s.size > 0 && s.size+int64(len(data)) > s.maxBytes {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}
	n, err := s.file.Write(data)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("appending to log file: %w", err)
	}
	return nil
}

// RotatedPath is where the previous generation is kept.
func (s *Sink) RotatedPath() string {
	return s.path + ".1.zst"
}

// rotateLocked compresses the current file into RotatedPath, replacing
// any older generation, and truncates the file.
func (s *Sink) rotateLocked() error {
	if err := s.file.Close(); err != nil {
		s.logger.Debug("closing log file before rotation", "error", err)
	}
	s.file = nil

	if err := compressFile(s.path, s.RotatedPath()); err != nil {
		// Keep appending to the oversized file rather than losing
		// lines.
		s.logger.Warn("log rotation failed", "path", s.path, "error", err)
		return s.openLocked()
	}
	if err := s.truncate(s.path, 0); err != nil {
		err = fmt.Errorf("truncating rotated log file: %w", err)
		// The sink stays usable; the next write retries the rotation.
		if openErr := s.openLocked(); openErr != nil {
			return errors.Join(err, openErr)
		}
		return err
	}
	s.logger.Debug("log file rotated", "path", s.path, "rotated", s.RotatedPath())
	return s.openLocked()
}

func compressFile(source, destination string) error {
	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := io.Copy(encoder, input); err != nil {
		encoder.Close()
		return fmt.Errorf("compressing %s: %w", source, err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finishing zstd stream: %w", err)
	}
	return atomicfile.Write(destination, compressed.Bytes(), 0o644)
}

// Clear truncates the log file. The rotated generation is removed too.
func (s *Sink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("log sink closed")
	}
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("clearing log file: %w", err)
	}
	s.size = 0
	return atomicfile.Remove(s.RotatedPath())
}

// Tail returns up to n of the most recent lines in the current file,
// oldest first.
func (s *Sink) Tail(n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log file: %w", err)
	}
	return lines, nil
}

// ReadRotated decompresses the rotated generation. Returns nil when
// there is none.
func ReadRotated(path string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()
	data, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	return data, nil
}

// Close closes the file. Further writes fail.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
