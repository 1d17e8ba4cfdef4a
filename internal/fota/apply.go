package fota

import (
	"io"
	"os"

	"github.com/ecowatt/gateway/internal/errors"
)

// PartitionWriter abstracts the OTA partition swap so the manager can be
// tested without a real bootloader. OpenNext returns a handle to the
// inactive partition; Activate commits it as the next boot target;
// Rollback reverts to the factory image if one is present, falling back
// to the previous OTA image otherwise, and reports which of the two it
// used.
type PartitionWriter interface {
	OpenNext() (io.WriteCloser, error)
	Activate() error
	Rollback() (target string, err error)
}

const (
	// RollbackToFactory is the target reported by Rollback when a
	// factory image was available and used.
	RollbackToFactory = "factory"
	// RollbackToPreviousOTA is the target reported by Rollback when no
	// factory image was present and the prior OTA image was restored
	// instead.
	RollbackToPreviousOTA = "previous_ota"
)

// filePartitionWriter is a PartitionWriter backed by plain files, for
// hosts without a real dual-partition bootloader: the "next" partition
// is a file next to the active one. Activate copies the staged image
// over active.img, keeping the previous one as backup.img; Rollback
// copies factory.img, or else backup.img, back over active.img.
type filePartitionWriter struct {
	dir string
}

// NewFilePartitionWriter returns a PartitionWriter rooted at dir, storing
// the active/staged images as active.img, staged.img, backup.img, and
// an optional factory.img.
func NewFilePartitionWriter(dir string) PartitionWriter {
	return &filePartitionWriter{dir: dir}
}

func (w *filePartitionWriter) stagedPath() string  { return w.dir + "/staged.img" }
func (w *filePartitionWriter) activePath() string  { return w.dir + "/active.img" }
func (w *filePartitionWriter) backupPath() string  { return w.dir + "/backup.img" }
func (w *filePartitionWriter) factoryPath() string { return w.dir + "/factory.img" }

func (w *filePartitionWriter) OpenNext() (io.WriteCloser, error) {
	f, err := os.OpenFile(w.stagedPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrInitFailed, err)
	}
	return f, nil
}

func (w *filePartitionWriter) Activate() error {
	errFactory := errors.New()

	if data, err := os.ReadFile(w.activePath()); err == nil {
		if err := os.WriteFile(w.backupPath(), data, 0o600); err != nil {
			return errFactory.Wrap(errors.ErrInitFailed, err)
		}
	}

	data, err := os.ReadFile(w.stagedPath())
	if err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}
	if err := os.WriteFile(w.activePath(), data, 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}

	return nil
}

// Rollback restores the factory image if one is present, otherwise the
// previous OTA image from backup.img, and reports which it used.
func (w *filePartitionWriter) Rollback() (string, error) {
	errFactory := errors.New()

	if data, err := os.ReadFile(w.factoryPath()); err == nil {
		if err := os.WriteFile(w.activePath(), data, 0o600); err != nil {
			return "", errFactory.Wrap(errors.ErrInitFailed, err)
		}
		return RollbackToFactory, nil
	}

	data, err := os.ReadFile(w.backupPath())
	if err != nil {
		return "", errFactory.Wrap(errors.ErrInitFailed, err)
	}
	if err := os.WriteFile(w.activePath(), data, 0o600); err != nil {
		return "", errFactory.Wrap(errors.ErrInitFailed, err)
	}

	return RollbackToPreviousOTA, nil
}

// writeVerifiedImage streams the verified scratch image into the staged
// partition, aborting on any short write.
func writeVerifiedImage(pw PartitionWriter, scratchPath string, size uint32) error {
	errFactory := errors.New()

	src, err := os.Open(scratchPath)
	if err != nil {
		return errFactory.Wrap(errors.ErrResourceNotFound, err)
	}
	defer src.Close()

	dst, err := pw.OpenNext()
	if err != nil {
		return err
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}
	if uint32(n) != size {
		return errFactory.WithData(ErrShortWrite, n)
	}

	return nil
}
