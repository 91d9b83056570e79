package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// ErrDuplicateName is returned when two entries would share a name inside
// the archive. Most extractors silently overwrite on collision, so the
// archive is refused instead of built.
var ErrDuplicateName = errors.New("duplicate entry name in archive")

// Entry is one named file destined for an archive.
type Entry struct {
	Name string
	Data []byte
}

// Build packs the entries into a DEFLATE-compressed ZIP archive, preserving
// the order given. An empty entry list yields a valid empty archive.
func Build(entries []Entry) ([]byte, error) {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return nil, errors.New("archive entry without a name")
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, e.Name)
		}
		seen[e.Name] = struct{}{}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   e.Name,
			Method: zip.Deflate,
		})
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("creating archive entry %q: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			zw.Close()
			return nil, fmt.Errorf("writing archive entry %q: %w", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}
