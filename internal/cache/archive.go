package cache

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ArchiveResult counts the files moved by Export or Import.
type ArchiveResult struct {
	Files   int
	Bytes   int64
	Skipped int
}

// Export writes every committed entry (audio and text) to w as a
// zstd-compressed tar. Temp files and expired entries are left out.
func (c *Cache) Export(w io.Writer, level int) (ArchiveResult, error) {
	var res ArchiveResult

	if level <= 0 {
		level = 3
	}
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return res, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	tw := tar.NewWriter(enc)

	var writeErr error
	walkErr := c.walkEntries(func(path string, d fs.DirEntry, info fs.FileInfo) {
		if writeErr != nil {
			return
		}
		if isTemp(d.Name()) || c.isExpired(info.ModTime()) {
			res.Skipped++
			return
		}
		rel, err := filepath.Rel(c.cfg.Root, path)
		if err != nil {
			res.Skipped++
			return
		}
		n, err := addFile(tw, path, filepath.ToSlash(rel), info)
		if err != nil {
			writeErr = err
			return
		}
		res.Files++
		res.Bytes += n
	})

	closeErr := errors.Join(tw.Close(), enc.Close())
	if err := errors.Join(walkErr, writeErr, closeErr); err != nil {
		return res, fmt.Errorf("failed to export cache: %w", err)
	}
	return res, nil
}

func addFile(tw *tar.Writer, path, name string, info fs.FileInfo) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, err
	}
	return io.Copy(tw, f)
}

// Import restores entries from an archive produced by Export. Each file is
// written through a temp file and renamed into place, so a failed import
// leaves no partial entries. Existing valid entries are kept.
func (c *Cache) Import(r io.Reader) (ArchiveResult, error) {
	var res ArchiveResult

	dec, err := zstd.NewReader(r)
	if err != nil {
		return res, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("failed to read cache archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			res.Skipped++
			continue
		}

		dest, err := c.archivePath(hdr.Name)
		if err != nil {
			return res, err
		}

		isAudio := !isText(dest)
		if isAudio && c.validate(dest) {
			res.Skipped++
			continue
		}
		if isAudio && hdr.Size < c.cfg.MinFileSize {
			res.Skipped++
			continue
		}

		if err := c.importFile(tr, dest, hdr, isAudio); err != nil {
			return res, err
		}
		res.Files++
		res.Bytes += hdr.Size
	}
}

func (c *Cache) importFile(src io.Reader, dest string, hdr *tar.Header, isAudio bool) error {
	tmp, err := c.CreateTmpSoundFile(dest, false)
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		c.Discard(tmp)
		return fmt.Errorf("failed to write %s: %w", hdr.Name, err)
	}

	if isAudio {
		if err := c.Commit(tmp, dest, true); err != nil {
			return err
		}
	} else {
		if err := tmp.File.Close(); err != nil {
			tmp.File = nil
			c.Discard(tmp)
			return err
		}
		tmp.File = nil
		if err := os.Rename(tmp.Path, dest); err != nil {
			c.Discard(tmp)
			return err
		}
	}

	if !hdr.ModTime.IsZero() {
		_ = os.Chtimes(dest, hdr.ModTime, hdr.ModTime)
	}
	return nil
}

// archivePath maps an archive name to a path under the root, rejecting
// names that would escape it.
func (c *Cache) archivePath(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("%w: %s", ErrInvalidArchive, name)
	}
	dest := filepath.Join(c.cfg.Root, clean)
	if c.topLevel(dest) == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidArchive, name)
	}
	return dest, nil
}
