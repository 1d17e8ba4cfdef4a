package fota

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/ecowatt/gateway/internal/errors"
)

// verifyImage streams the scratch image through an incremental SHA-256
// hash in HashBufferSize-sized reads and compares the result, and the
// total size read, against the manifest.
func verifyImage(path string, m Manifest) error {
	errFactory := errors.New()

	f, err := os.Open(path)
	if err != nil {
		return errFactory.Wrap(errors.ErrResourceNotFound, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, HashBufferSize)
	var total uint32

	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += uint32(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errFactory.Wrap(errors.ErrResourceNotFound, err)
		}
	}

	if total != m.Size {
		return errFactory.WithData(ErrSizeMismatch, total)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if got != m.Hash {
		return errFactory.WithData(ErrHashMismatch, got)
	}

	return nil
}
