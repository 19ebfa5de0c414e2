package storage

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/types"
)

const dayLayout = "2006-01-02"

// Storage writes raw sentences to one log file per UTC day and gzips the
// previous day's file when the day changes
type Storage struct {
	outputDir string
	prefix    string
	file      *os.File
	day       string
	mu        sync.Mutex
	wg        sync.WaitGroup
}

// New creates a new Storage instance
func New(outputDir string) *Storage {
	return &Storage{
		outputDir: outputDir,
		prefix:    "ais",
	}
}

// Start opens today's log file
func (s *Storage) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateFile(time.Now().UTC())
}

// Stop closes the current file and waits for pending compression
func (s *Storage) Stop() error {
	s.mu.Lock()
	var err error
	if s.file != nil {
		err = s.file.Close()
		s.file = nil
		s.day = ""
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// WriteMessage appends a message received at the given time to that day's
// file. Files only rotate forward; a message stamped before the current day
// goes to the current file.
func (s *Storage) WriteMessage(at time.Time, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at = at.UTC()
	if s.file == nil || at.Format(dayLayout) > s.day {
		if err := s.rotateFile(at); err != nil {
			return err
		}
	}

	if _, err := s.file.Write(message); err != nil {
		return err
	}
	// datagram bytes are shared between consumers, so the newline is a separate write
	if len(message) == 0 || message[len(message)-1] != '\n' {
		_, err := s.file.Write([]byte{'\n'})
		return err
	}
	return nil
}

// WriteDatagram logs a datagram under its receipt day
func (s *Storage) WriteDatagram(_ context.Context, dg types.RawDatagram) error {
	return s.WriteMessage(dg.ReceiptTime, dg.Data)
}

func (s *Storage) path(day string) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("%s_%s.log", s.prefix, day))
}

// rotateFile switches to the file for the given day, compressing the one it replaces
func (s *Storage) rotateFile(at time.Time) error {
	day := at.Format(dayLayout)
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			log.Warn().Err(err).Str("file", s.file.Name()).Msg("Failed to close log file")
		}
		previous := s.path(s.day)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := compressFile(previous); err != nil {
				log.Error().Err(err).Str("file", previous).Msg("Failed to compress log file")
			}
		}()
	}

	file, err := os.OpenFile(s.path(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.file = nil
		s.day = ""
		return fmt.Errorf("failed to create log file: %w", err)
	}

	s.file = file
	s.day = day
	log.Info().Str("file", file.Name()).Msg("Writing raw log")
	return nil
}

// compressFile gzips a file next to itself and removes the original. An
// existing archive gets another gzip member appended.
func compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.OpenFile(path+".gz", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer target.Close()

	gzipWriter := gzip.NewWriter(target)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		return err
	}
	if err := gzipWriter.Close(); err != nil {
		return err
	}
	if err := target.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}
