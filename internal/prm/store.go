package prm

import (
	"path/filepath"
)

// Store resolves PRM, LED and SLC files for image stems inside one
// product directory.
type Store struct {
	Dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the PRM path for stem.
func (s *Store) Path(stem string) string { return filepath.Join(s.Dir, stem+".PRM") }

// LEDPath returns the orbit (LED) path for stem.
func (s *Store) LEDPath(stem string) string { return filepath.Join(s.Dir, stem+".LED") }

// SLCPath returns the image path for stem.
func (s *Store) SLCPath(stem string) string { return filepath.Join(s.Dir, stem+".SLC") }

// Load reads the record for stem.
func (s *Store) Load(stem string) (*Record, error) {
	return ReadFile(s.Path(stem))
}

// Save writes rec as stem's record.
func (s *Store) Save(stem string, rec *Record) error {
	return WriteFile(s.Path(stem), rec)
}
