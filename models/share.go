package models

import (
	"fmt"
	"time"

	"github.com/secureshare/secureshare/crypto"
	"github.com/secureshare/secureshare/utils"
)

// ShareTTL is how long a share stays retrievable after creation. The TTL is
// fixed per share and never extended; regenerating a code means creating a
// new share.
const ShareTTL = 24 * time.Hour

// FileEntry is one file carried by a share. Data holds ciphertext when
// Encrypted is set and plaintext otherwise; Size always records the original
// plaintext length. Data is serialized as base64 in the store file.
type FileEntry struct {
	Name      string `json:"name"`
	Data      []byte `json:"data"`
	Size      int64  `json:"size"`
	Encrypted bool   `json:"encrypted"`
}

// Share is one published share: the salt its key is derived from, its
// lifetime and the files it carries. A share is immutable once created.
// The code is the store's lookup key rather than part of the persisted
// record, so it carries no JSON tag value.
type Share struct {
	Code      string      `json:"-"`
	Salt      []byte      `json:"salt"`
	CreatedAt time.Time   `json:"created"`
	ExpiresAt time.Time   `json:"expires"`
	Files     []FileEntry `json:"files"`
}

// Expired reports whether the share's lifetime has passed at the given
// instant. A share expiring exactly at now is still alive.
func (s *Share) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// File returns the first entry with the given name. Names are not required
// to be unique within a share, so callers wanting a specific duplicate must
// walk Files themselves.
func (s *Share) File(name string) (*FileEntry, bool) {
	for i := range s.Files {
		if s.Files[i].Name == name {
			return &s.Files[i], true
		}
	}
	return nil, false
}

// TotalSize returns the combined plaintext size of all files in the share.
func (s *Share) TotalSize() int64 {
	var total int64
	for i := range s.Files {
		total += s.Files[i].Size
	}
	return total
}

// Validate checks that a record is internally consistent. The store runs it
// on every record it loads so one bad entry can be quarantined instead of
// poisoning the whole store.
func (s *Share) Validate() error {
	if err := utils.ValidateShareCode(s.Code); err != nil {
		return fmt.Errorf("invalid share code %q: %w", s.Code, err)
	}
	if len(s.Salt) != crypto.SaltSize {
		return fmt.Errorf("share %s: salt must be %d bytes, got %d", s.Code, crypto.SaltSize, len(s.Salt))
	}
	if s.CreatedAt.IsZero() || s.ExpiresAt.IsZero() {
		return fmt.Errorf("share %s: missing timestamps", s.Code)
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return fmt.Errorf("share %s: expiry %s is not after creation %s",
			s.Code, s.ExpiresAt.Format(time.RFC3339), s.CreatedAt.Format(time.RFC3339))
	}
	if len(s.Files) == 0 {
		return fmt.Errorf("share %s: no files", s.Code)
	}
	for i := range s.Files {
		f := &s.Files[i]
		if f.Name == "" {
			return fmt.Errorf("share %s: file %d has no name", s.Code, i)
		}
		if f.Size < 0 {
			return fmt.Errorf("share %s: file %q has negative size", s.Code, f.Name)
		}
	}
	return nil
}
