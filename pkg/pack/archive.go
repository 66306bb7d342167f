package pack

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/evidencepack/pkg/errors"
)

// archiveTime is the modification time of every zip entry.
var archiveTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Archive writes the pack in dir to w as a zip file. Only files listed in
// SHA256SUMS are included, plus SHA256SUMS itself, in manifest order.
func Archive(dir string, w io.Writer) error {
	sums, err := os.ReadFile(filepath.Join(dir, FileChecksums))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPack, err, "read %s", FileChecksums)
	}
	entries, err := ParseChecksums(sums)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := addFile(zw, dir, e.Path); err != nil {
			zw.Close()
			return err
		}
	}
	if err := addFile(zw, dir, FileChecksums); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "finish archive")
	}
	return nil
}

func addFile(zw *zip.Writer, dir, rel string) error {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPack, err, "open %s", rel)
	}
	defer f.Close()

	hdr := &zip.FileHeader{Name: rel, Method: zip.Deflate, Modified: archiveTime}
	hdr.SetMode(0o644)
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "archive %s", rel)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "archive %s", rel)
	}
	return nil
}
