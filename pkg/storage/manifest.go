package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ManifestVersion is the current version of the manifest file format.
const ManifestVersion = 1

// Manifest lists completed uploads.
type Manifest struct {
	// Version is the manifest file format version.
	Version int `json:"version"`

	// SavedAt is when the manifest was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Uploads in completion order.
	Uploads []UploadRecord `json:"uploads,omitempty"`
}

// UploadRecord describes one upload that was closed cleanly.
type UploadRecord struct {
	// Name is the sanitized file name.
	Name string `json:"name"`

	// Size is the number of bytes written.
	Size int64 `json:"size"`

	// ConnectionID identifies the connection that uploaded the file.
	ConnectionID string `json:"connection_id,omitempty"`

	// RemoteAddr is the client address.
	RemoteAddr string `json:"remote_addr,omitempty"`

	// Suite is the negotiated suite, if any.
	Suite string `json:"suite,omitempty"`

	// CompletedAt is when the file was closed.
	CompletedAt time.Time `json:"completed_at"`
}

// ManifestStore manages persistence of the manifest to a JSON file.
// Keep the file outside the storage root so uploads cannot overwrite it.
type ManifestStore struct {
	mu   sync.Mutex
	path string
}

// NewManifestStore creates a manifest store.
func NewManifestStore(path string) *ManifestStore {
	return &ManifestStore{path: path}
}

// Path returns the manifest file location.
func (s *ManifestStore) Path() string {
	return s.path
}

// Record appends rec to the manifest and saves it.
func (s *ManifestStore) Record(rec UploadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if m == nil {
		m = &Manifest{}
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}
	m.Uploads = append(m.Uploads, rec)
	return s.save(m)
}

// Load reads the manifest from disk.
// Returns nil, nil if the file doesn't exist (empty manifest).
func (s *ManifestStore) Load() (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Clear removes the manifest file.
func (s *ManifestStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *ManifestStore) load() (*Manifest, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *ManifestStore) save(m *Manifest) error {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	m.Version = ManifestVersion
	m.SavedAt = time.Now()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
