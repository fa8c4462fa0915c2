// Package filestore holds message file payloads so they travel between
// services by id instead of inline. Files are kept in memory for fast reads
// and mirrored to disk so that agents running as separate processes on the
// same host can resolve ids written by the registry.
package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/common/logger"
	"github.com/agentmesh/agentmesh/pkg/a2a"
)

const indexFileName = "index.json"

// File is one stored payload.
type File struct {
	ID        string `json:"id"`
	MediaType string `json:"media_type"`
	Bytes     string `json:"-"` // base64 payload, kept out of the index
}

type indexEntry struct {
	ID        string `json:"id"`
	MediaType string `json:"media_type"`
	FileName  string `json:"file_name"`
}

// Store is a shared file store backed by a directory.
type Store struct {
	dir    string
	mu     sync.RWMutex
	files  map[string]*File
	logger *logger.Logger
}

// New opens (or creates) a store rooted at dir and loads its index.
func New(dir string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.InternalError("create file store directory", err)
	}
	s := &Store{
		dir:    dir,
		files:  make(map[string]*File),
		logger: log,
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Put stores base64 bytes under a fresh id and returns it.
func (s *Store) Put(b64 string, mediaType string) (string, error) {
	id := a2a.NewID()
	file := &File{ID: id, MediaType: mediaType, Bytes: b64}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path(id), []byte(b64), 0o644); err != nil {
		return "", errors.InternalError("write file", err)
	}
	s.files[id] = file
	if err := s.writeIndexLocked(); err != nil {
		return "", err
	}

	s.logger.Debug("Stored file",
		zap.String("file_id", id),
		zap.String("media_type", mediaType),
		zap.Int("size", len(b64)))
	return id, nil
}

// Get returns the stored file for id.
func (s *Store) Get(id string) (*File, error) {
	s.mu.RLock()
	file, ok := s.files[id]
	s.mu.RUnlock()
	if ok {
		return file, nil
	}

	// Another process may have written the file after our index load.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadIndexLocked(); err != nil {
		return nil, err
	}
	if file, ok = s.files[id]; ok {
		return file, nil
	}
	return nil, errors.NotFound("file", id)
}

// ClearAll removes every stored file and resets the index.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.files {
		if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
			return errors.InternalError("remove file", err)
		}
	}
	s.files = make(map[string]*File)
	if err := s.writeIndexLocked(); err != nil {
		return err
	}
	s.logger.Info("Cleared file store")
	return nil
}

// Len reports the number of stored files.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".b64")
}

func (s *Store) loadIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIndexLocked()
}

func (s *Store) loadIndexLocked() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.InternalError("read file store index", err)
	}

	var entries []indexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.InternalError("decode file store index", err)
	}

	for _, e := range entries {
		if _, ok := s.files[e.ID]; ok {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(s.dir, e.FileName))
		if err != nil {
			s.logger.WithError(err).Warn("Skipping unreadable file store entry", zap.String("file_id", e.ID))
			continue
		}
		s.files[e.ID] = &File{ID: e.ID, MediaType: e.MediaType, Bytes: string(payload)}
	}
	return nil
}

func (s *Store) writeIndexLocked() error {
	entries := make([]indexEntry, 0, len(s.files))
	for _, f := range s.files {
		entries = append(entries, indexEntry{
			ID:        f.ID,
			MediaType: f.MediaType,
			FileName:  fmt.Sprintf("%s.b64", f.ID),
		})
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.InternalError("encode file store index", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, indexFileName), data, 0o644); err != nil {
		return errors.InternalError("write file store index", err)
	}
	return nil
}
