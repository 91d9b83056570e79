package share

import (
	"errors"
	"fmt"
	"time"

	"github.com/secureshare/secureshare/archive"
	"github.com/secureshare/secureshare/crypto"
	"github.com/secureshare/secureshare/models"
	"github.com/secureshare/secureshare/storage"
	"github.com/secureshare/secureshare/utils"
)

// Service errors
var (
	ErrNoFiles        = errors.New("share must contain at least one file")
	ErrEmptyFileName  = errors.New("file name must not be empty")
	ErrFileNotFound   = errors.New("no such file in share")
	ErrEmptySelection = errors.New("no files selected for archive")
)

// qrPayloadFormat is the text encoded into a share's QR code. Kept stable
// so previously printed codes keep scanning to the same payload.
const qrPayloadFormat = "SecureShare Code: %s"

// QRPayload returns the text a QR code for the given share code carries.
func QRPayload(code string) string {
	return fmt.Sprintf(qrPayloadFormat, code)
}

// FileUpload is one file handed to CreateShare.
type FileUpload struct {
	Name string
	Data []byte
}

// CreateResult is everything the uploader gets back: the code to hand out,
// the derived key, the QR payload and the expiry instant. The key is
// returned for display only; it is never persisted and can always be
// re-derived from the code and the record's salt.
type CreateResult struct {
	Code      string
	Key       []byte
	QRPayload string
	ExpiresAt time.Time
}

// Service implements the share lifecycle over an injected record store:
// publishing files under a fresh code, looking them up and handing back
// decrypted content.
type Service struct {
	store *storage.Store
	now   func() time.Time
}

// NewService creates a share service backed by the given store.
func NewService(store *storage.Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// Count returns the number of share records currently held, expired or not.
func (s *Service) Count() int {
	return s.store.Count()
}

// CreateShare publishes the given files under a fresh 6-digit code and
// returns the code together with the key derived from it. The code is
// picked first, then the key is derived from it and the record's new salt;
// with encrypt set every payload is sealed under that key before the record
// is stored.
func (s *Service) CreateShare(files []FileUpload, encrypt bool) (*CreateResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	for _, f := range files {
		if f.Name == "" {
			return nil, ErrEmptyFileName
		}
	}

	// Sweep first so codes held by expired records are free again.
	if _, err := s.store.EvictExpired(s.now()); err != nil {
		return nil, err
	}

	code, err := GenerateCode(s.store.Codes())
	if err != nil {
		return nil, err
	}

	salt, err := crypto.GenerateSalt(crypto.SaltSize)
	if err != nil {
		return nil, err
	}
	key, err := crypto.DeriveKey(code, salt)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	rec := &models.Share{
		Code:      code,
		Salt:      salt,
		CreatedAt: now,
		ExpiresAt: now.Add(models.ShareTTL),
		Files:     make([]models.FileEntry, 0, len(files)),
	}
	for _, f := range files {
		entry := models.FileEntry{
			Name:      f.Name,
			Data:      f.Data,
			Size:      int64(len(f.Data)),
			Encrypted: encrypt,
		}
		if encrypt {
			sealed, err := crypto.EncryptGCM(f.Data, key)
			if err != nil {
				return nil, fmt.Errorf("encrypting %q: %w", f.Name, err)
			}
			entry.Data = sealed
		}
		rec.Files = append(rec.Files, entry)
	}

	if err := s.store.Put(rec); err != nil {
		return nil, err
	}

	return &CreateResult{
		Code:      code,
		Key:       key,
		QRPayload: QRPayload(code),
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Retrieve looks up the record stored under code. Expired records answer
// with the store's ErrExpired, unknown codes with ErrNotFound. Every
// retrieval also sweeps expired records so they do not pile up between
// uploads.
func (s *Service) Retrieve(code string) (*models.Share, error) {
	if err := utils.ValidateShareCode(code); err != nil {
		return nil, err
	}

	now := s.now()
	rec, err := s.store.Get(code, now)

	// The sweep runs after the lookup so an expired code still answers
	// Expired rather than NotFound. The sweep belongs to the request
	// cycle, so its failure fails the request too.
	if _, serr := s.store.EvictExpired(now); serr != nil {
		return nil, errors.Join(err, serr)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DownloadFile returns the plaintext of the named file. For encrypted
// entries the key is re-derived from the record's code and salt; a record
// tampered with on disk surfaces as crypto.ErrAuthentication. Duplicate
// names resolve to the first entry.
func (s *Service) DownloadFile(rec *models.Share, name string) ([]byte, error) {
	entry, ok := rec.File(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFileNotFound, name)
	}
	if !entry.Encrypted {
		return entry.Data, nil
	}

	key, err := crypto.DeriveKey(rec.Code, rec.Salt)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureZeroBytes(key)

	plaintext, err := crypto.DecryptGCM(entry.Data, key)
	if err != nil {
		return nil, fmt.Errorf("decrypting %q: %w", name, err)
	}
	return plaintext, nil
}

// DownloadArchive bundles the selected files into a single ZIP, decrypting
// each entry first. Selected entries keep the order they hold in the
// record. An empty selection is refused unless allowEmpty is set, in which
// case a valid empty archive is returned.
func (s *Service) DownloadArchive(rec *models.Share, names map[string]struct{}, allowEmpty bool) ([]byte, error) {
	if len(names) == 0 && !allowEmpty {
		return nil, ErrEmptySelection
	}

	var key []byte
	defer func() { crypto.SecureZeroBytes(key) }()

	matched := make(map[string]struct{}, len(names))
	entries := make([]archive.Entry, 0, len(names))
	for i := range rec.Files {
		f := &rec.Files[i]
		if _, want := names[f.Name]; !want {
			continue
		}
		matched[f.Name] = struct{}{}

		data := f.Data
		if f.Encrypted {
			if key == nil {
				var err error
				if key, err = crypto.DeriveKey(rec.Code, rec.Salt); err != nil {
					return nil, err
				}
			}
			plaintext, err := crypto.DecryptGCM(f.Data, key)
			if err != nil {
				return nil, fmt.Errorf("decrypting %q: %w", f.Name, err)
			}
			data = plaintext
		}
		entries = append(entries, archive.Entry{Name: f.Name, Data: data})
	}

	for name := range names {
		if _, ok := matched[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrFileNotFound, name)
		}
	}

	return archive.Build(entries)
}

// AllNames returns the name set of every file in the record, ready to feed
// DownloadArchive for a download-everything request.
func AllNames(rec *models.Share) map[string]struct{} {
	names := make(map[string]struct{}, len(rec.Files))
	for i := range rec.Files {
		names[rec.Files[i].Name] = struct{}{}
	}
	return names
}
