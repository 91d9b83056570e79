package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/secureshare/secureshare/models"
)

// SchemaVersion is the store file layout this build reads and writes. Files
// produced before versioning was introduced carry the code map at the top
// level and are migrated on load.
const SchemaVersion = 1

// Store errors
var (
	ErrNotFound      = errors.New("share code not found")
	ErrExpired       = errors.New("share code has expired")
	ErrDuplicateCode = errors.New("share code already in use")
	ErrStoreIO       = errors.New("share store I/O failure")
)

// storeDocument is the persisted layout: a schema version and the full
// code-to-record map. The whole document is rewritten on every mutation.
type storeDocument struct {
	Version int                        `json:"version"`
	Shares  map[string]json.RawMessage `json:"shares"`
}

// Store holds every live share record and persists them to a single JSON
// file. All mutating calls rewrite the file through a temp-file rename, so
// a crash mid-save never leaves a truncated store behind.
//
// The mutex serializes access within this process only. Two processes
// pointed at the same store file will race on save and the last writer
// wins; run one instance per store file.
type Store struct {
	mu          sync.Mutex
	path        string
	shares      map[string]*models.Share
	quarantined []string
}

// New opens the store at path, creating an empty one if the file does not
// exist yet. Records that fail validation are moved aside into quarantine
// files next to the store rather than aborting the load; QuarantinedFiles
// lists anything that was set aside.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: store path must not be empty", ErrStoreIO)
	}

	s := &Store{
		path:   path,
		shares: make(map[string]*models.Share),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the store file.
func (s *Store) Path() string {
	return s.path
}

// QuarantinedFiles returns the files written while setting aside records or
// store content that could not be loaded. Empty on a clean load.
func (s *Store) QuarantinedFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.quarantined))
	copy(out, s.quarantined)
	return out
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil // fresh store
	}
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrStoreIO, s.path, err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		// The file is not a JSON object at all. Set the bytes aside for
		// inspection and start empty.
		name, qerr := s.quarantineBytes("store", data)
		if qerr != nil {
			return fmt.Errorf("%w: store %s is unreadable and could not be quarantined: %v", ErrStoreIO, s.path, qerr)
		}
		s.quarantined = append(s.quarantined, name)
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("%w: removing unreadable store %s: %v", ErrStoreIO, s.path, err)
		}
		return nil
	}

	rawShares := top
	migrated := false
	if versionRaw, ok := top["version"]; ok {
		var version int
		if err := json.Unmarshal(versionRaw, &version); err != nil {
			return fmt.Errorf("%w: store %s: malformed version field: %v", ErrStoreIO, s.path, err)
		}
		if version != SchemaVersion {
			// A future layout is not ours to rewrite; leave the file alone.
			return fmt.Errorf("%w: store %s: unsupported schema version %d", ErrStoreIO, s.path, version)
		}
		rawShares = nil
		if sharesRaw, ok := top["shares"]; ok {
			if err := json.Unmarshal(sharesRaw, &rawShares); err != nil {
				return fmt.Errorf("%w: store %s: malformed shares map: %v", ErrStoreIO, s.path, err)
			}
		}
	} else {
		// Pre-versioning layout: the code map sits at the top level.
		// Loading rewrites the file in the current layout.
		migrated = true
	}

	dirty := migrated
	for code, raw := range rawShares {
		rec, err := decodeRecord(code, raw)
		if err != nil {
			name, qerr := s.quarantineBytes(code, raw)
			if qerr != nil {
				return fmt.Errorf("%w: record %s is unreadable and could not be quarantined: %v", ErrStoreIO, code, qerr)
			}
			s.quarantined = append(s.quarantined, name)
			dirty = true
			continue
		}
		s.shares[code] = rec
	}

	if dirty {
		if err := s.saveLocked(); err != nil {
			return err
		}
	}
	return nil
}

func decodeRecord(code string, raw json.RawMessage) (*models.Share, error) {
	var rec models.Share
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	rec.Code = code
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// quarantineBytes writes raw content into a uniquely named file next to the
// store and returns its path. The label comes from untrusted file content,
// so path separators in it must not escape the store directory.
func (s *Store) quarantineBytes(label string, raw []byte) (string, error) {
	label = filepath.Base(label)
	name := filepath.Join(filepath.Dir(s.path),
		fmt.Sprintf("%s.quarantine-%s-%s.json", filepath.Base(s.path), label, uuid.NewString()))
	if err := os.WriteFile(name, raw, 0o600); err != nil {
		return "", err
	}
	return name, nil
}

// saveLocked rewrites the store file. Callers must hold s.mu.
func (s *Store) saveLocked() error {
	doc := storeDocument{
		Version: SchemaVersion,
		Shares:  make(map[string]json.RawMessage, len(s.shares)),
	}
	for code, rec := range s.shares {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("%w: encoding record %s: %v", ErrStoreIO, code, err)
		}
		doc.Shares[code] = raw
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding store: %v", ErrStoreIO, err)
	}

	tmp := s.path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrStoreIO, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: replacing %s: %v", ErrStoreIO, s.path, err)
	}
	return nil
}

// Put adds a new record and persists the store. The code must be free or
// hold only an expired record; an unexpired record under the same code is
// never replaced. On a save failure the record stays visible in memory but
// may be lost on restart.
func (s *Store) Put(rec *models.Share) error {
	if rec == nil {
		return errors.New("storage: nil record")
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.shares[rec.Code]; ok {
		// An expired leftover only occupies the code until the next sweep;
		// writing over it is the same as evict-then-put.
		if !existing.Expired(rec.CreatedAt) {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, rec.Code)
		}
	}

	s.shares[rec.Code] = rec
	return s.saveLocked()
}

// Get returns the record stored under code. Expired records are reported
// with ErrExpired rather than silently returned; sweeping them out is
// EvictExpired's job.
func (s *Store) Get(code string, now time.Time) (*models.Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.shares[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if rec.Expired(now) {
		return nil, fmt.Errorf("%w: %s", ErrExpired, code)
	}
	return rec, nil
}

// Delete removes the record under code, if any, and persists the store.
func (s *Store) Delete(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shares[code]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	delete(s.shares, code)
	return s.saveLocked()
}

// EvictExpired removes every record whose lifetime has passed and persists
// the store when anything was removed. It returns the number of records
// evicted. An eviction that cannot be persisted is still effective in
// memory and is retried by the next successful save.
func (s *Store) EvictExpired(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for code, rec := range s.shares {
		if rec.Expired(now) {
			delete(s.shares, code)
			evicted++
		}
	}
	if evicted == 0 {
		return 0, nil
	}
	return evicted, s.saveLocked()
}

// Codes returns the set of codes currently present, expired or not. The
// share code generator uses it to avoid collisions.
func (s *Store) Codes() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make(map[string]struct{}, len(s.shares))
	for code := range s.shares {
		codes[code] = struct{}{}
	}
	return codes
}

// Count returns the number of records currently present.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shares)
}

// All returns every record sorted by code, for listings and offline tools.
func (s *Store) All() []*models.Share {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Share, 0, len(s.shares))
	for _, rec := range s.shares {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
