package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureshare/secureshare/models"
)

func makeShare(code string, created time.Time, data []byte) *models.Share {
	return &models.Share{
		Code:      code,
		Salt:      []byte("0123456789abcdef"),
		CreatedAt: created,
		ExpiresAt: created.Add(models.ShareTTL),
		Files: []models.FileEntry{
			{Name: "payload.bin", Data: data, Size: int64(len(data)), Encrypted: false},
		},
	}
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shares.json")
	store, err := New(path)
	require.NoError(t, err)
	return store, path
}

func TestStoreEmptyPath(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrStoreIO)
}

func TestStoreFreshFileIsOptional(t *testing.T) {
	store, path := newTestStore(t)
	assert.Equal(t, 0, store.Count())
	assert.Empty(t, store.QuarantinedFiles())

	// The file only appears once something is written
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStorePutGetRoundTrip(t *testing.T) {
	store, path := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	rec := makeShare("428190", now, []byte("hello"))
	require.NoError(t, store.Put(rec))

	got, err := store.Get("428190", now)
	require.NoError(t, err)
	assert.Equal(t, rec.Files, got.Files)
	assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))

	// A second store opened on the same file sees the same record
	reopened, err := New(path)
	require.NoError(t, err)
	got, err = reopened.Get("428190", now)
	require.NoError(t, err)
	assert.Equal(t, "428190", got.Code)
	assert.Equal(t, []byte("hello"), got.Files[0].Data)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestStoreBinaryPayloadRoundTrip(t *testing.T) {
	store, path := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	// Every possible byte value must survive serialization untouched
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, store.Put(makeShare("990017", now, payload)))

	reopened, err := New(path)
	require.NoError(t, err)
	got, err := reopened.Get("990017", now)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Files[0].Data)

	// And the payload is stored as base64 text, not raw bytes
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), base64.StdEncoding.EncodeToString(payload))
}

func TestStorePutDuplicate(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Put(makeShare("555000", now, []byte("first"))))

	err := store.Put(makeShare("555000", now.Add(time.Minute), []byte("second")))
	assert.ErrorIs(t, err, ErrDuplicateCode)

	// The original record is untouched
	got, err := store.Get("555000", now)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got.Files[0].Data)
}

func TestStorePutOverExpiredRecord(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	stale := makeShare("555001", now.Add(-2*models.ShareTTL), []byte("stale"))
	require.NoError(t, store.Put(stale))

	// The code is free again once its record has expired
	fresh := makeShare("555001", now, []byte("fresh"))
	require.NoError(t, store.Put(fresh))

	got, err := store.Get("555001", now)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), got.Files[0].Data)
}

func TestStorePutInvalidRecord(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	bad := makeShare("12345", now, []byte("x")) // five digit code
	err := store.Put(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid share code")

	assert.Error(t, store.Put(nil))
}

func TestStoreGetMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get("000000", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreExpiryBoundary(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	rec := makeShare("731008", now.Add(-models.ShareTTL), nil)
	rec.Files[0].Data = []byte("boundary")
	rec.Files[0].Size = 8
	require.NoError(t, store.Put(rec))

	// Alive exactly at the expiry instant
	got, err := store.Get("731008", rec.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, "731008", got.Code)

	// Rejected one second past it, but still present until a sweep
	_, err = store.Get("731008", rec.ExpiresAt.Add(time.Second))
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, 1, store.Count())

	evicted, err := store.EvictExpired(rec.ExpiresAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 0, store.Count())

	_, err = store.Get("731008", rec.ExpiresAt.Add(time.Second))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreEvictExpired(t *testing.T) {
	store, path := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Put(makeShare("111111", now.Add(-30*time.Hour), []byte("old"))))
	require.NoError(t, store.Put(makeShare("222222", now.Add(-25*time.Hour), []byte("old"))))
	require.NoError(t, store.Put(makeShare("333333", now, []byte("live"))))

	evicted, err := store.EvictExpired(now)
	require.NoError(t, err)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 1, store.Count())

	// Nothing left to evict on a second sweep
	evicted, err = store.EvictExpired(now)
	require.NoError(t, err)
	assert.Equal(t, 0, evicted)

	// The sweep is persisted
	reopened, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
	_, err = reopened.Get("333333", now)
	assert.NoError(t, err)
}

func TestStoreDelete(t *testing.T) {
	store, path := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Put(makeShare("640128", now, []byte("x"))))
	require.NoError(t, store.Delete("640128"))
	assert.ErrorIs(t, store.Delete("640128"), ErrNotFound)

	reopened, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Count())
}

func TestStoreCodesAndAll(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	for _, code := range []string{"300001", "300002", "100003"} {
		require.NoError(t, store.Put(makeShare(code, now, []byte("x"))))
	}

	codes := store.Codes()
	assert.Len(t, codes, 3)
	_, ok := codes["300002"]
	assert.True(t, ok)

	all := store.All()
	require.Len(t, all, 3)
	assert.Equal(t, "100003", all[0].Code, "listings are sorted by code")
	assert.Equal(t, "300002", all[2].Code)
}

func TestStoreFileLayout(t *testing.T) {
	store, path := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(makeShare("271828", now, []byte("hi"))))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, float64(SchemaVersion), doc["version"])

	shares, ok := doc["shares"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, shares, "271828")

	rec := shares["271828"].(map[string]any)
	assert.Equal(t, "2026-03-01T12:00:00Z", rec["created"])
	assert.Equal(t, "2026-03-02T12:00:00Z", rec["expires"])

	// No temp files linger after a save
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestStoreQuarantinesBadRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shares.json")
	now := time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC)
	salt := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))

	content := fmt.Sprintf(`{
  "version": 1,
  "shares": {
    "123456": {"salt": %q, "created": %q, "expires": %q,
      "files": [{"name": "ok.txt", "data": "aGk=", "size": 2, "encrypted": false}]},
    "654321": {"salt": "c2hvcnQ=", "created": %q, "expires": %q,
      "files": [{"name": "bad.txt", "data": "aGk=", "size": 2, "encrypted": false}]}
  }
}`, salt, now.Format(time.RFC3339), now.Add(models.ShareTTL).Format(time.RFC3339),
		now.Format(time.RFC3339), now.Add(models.ShareTTL).Format(time.RFC3339))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := New(path)
	require.NoError(t, err)

	// The valid record loads, the short-salt one is set aside
	assert.Equal(t, 1, store.Count())
	_, err = store.Get("123456", now)
	assert.NoError(t, err)

	quarantined := store.QuarantinedFiles()
	require.Len(t, quarantined, 1)
	assert.Contains(t, filepath.Base(quarantined[0]), "654321")

	qraw, err := os.ReadFile(quarantined[0])
	require.NoError(t, err)
	assert.Contains(t, string(qraw), "c2hvcnQ=", "quarantine keeps the original record bytes")

	// The rewritten store no longer carries the bad record
	reopened, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
	assert.Empty(t, reopened.QuarantinedFiles())
}

func TestStoreMigratesLegacyLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shares.json")
	now := time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC)
	salt := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))

	// Files written before schema versioning hold the code map at top level
	legacy := fmt.Sprintf(`{
  "808017": {"salt": %q, "created": %q, "expires": %q,
    "files": [{"name": "a.txt", "data": "aGk=", "size": 2, "encrypted": true}]}
}`, salt, now.Format(time.RFC3339), now.Add(models.ShareTTL).Format(time.RFC3339))
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	store, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count())

	got, err := store.Get("808017", now)
	require.NoError(t, err)
	assert.True(t, got.Files[0].Encrypted)

	// The file is rewritten under the versioned layout
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, float64(SchemaVersion), doc["version"])
}

func TestStoreRejectsUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shares.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "shares": {}}`), 0o600))

	_, err := New(path)
	require.ErrorIs(t, err, ErrStoreIO)
	assert.Contains(t, err.Error(), "unsupported schema version")

	// The file is left exactly as it was
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version": 99, "shares": {}}`, string(raw))
}

func TestStoreQuarantinesUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shares.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o600))

	store, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Count())

	quarantined := store.QuarantinedFiles()
	require.Len(t, quarantined, 1)
	qraw, err := os.ReadFile(quarantined[0])
	require.NoError(t, err)
	assert.Equal(t, "not json at all", string(qraw))

	// The broken file is gone so the next save starts clean
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
