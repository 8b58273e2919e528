// Package tarx extracts gzip-compressed npm package tarballs.
//
// npm tarballs wrap their content in a leading "package/" directory (the
// name varies for some publishers), which is stripped on extraction. Paths
// that would escape the destination are refused.
package tarx

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Extract unpacks a gzip-compressed tar stream into dest, stripping the
// first path component of every entry. Entries whose stripped path contains
// ".." segments are skipped, as are unsupported entry types. Symlink
// creation failures are tolerated.
func Extract(ctx context.Context, r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to decompress tarball: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}

		rel, ok := stripRoot(hdr.Name)
		if !ok {
			continue
		}

		target := filepath.Join(dest, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", rel, err)
			}

		case tar.TypeSymlink:
			// Some hosts forbid symlink creation; tolerate failure.
			_ = os.MkdirAll(filepath.Dir(target), 0o755)
			_ = os.Symlink(hdr.Linkname, target)

		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode()); err != nil {
				return fmt.Errorf("failed to write %s: %w", rel, err)
			}
		}
	}
}

// ExtractBytes unpacks an in-memory tarball into dest.
func ExtractBytes(ctx context.Context, data []byte, dest string) error {
	return Extract(ctx, bytes.NewReader(data), dest)
}

// stripRoot removes the first path component and validates the remainder.
// It returns false when the entry should be skipped: the wrapper directory
// itself, or a path that would escape the destination.
func stripRoot(name string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")

	i := strings.IndexByte(name, '/')
	if i < 0 {
		return "", false
	}

	rel := path.Clean(name[i+1:])
	if rel == "." || rel == "" {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, "../") || strings.Contains(rel, "/../") || strings.HasSuffix(rel, "/..") {
		return "", false
	}
	return rel, true
}

// writeFile creates parent directories and writes one regular file.
func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	perm := os.FileMode(0o644)
	if mode&0o111 != 0 {
		perm = 0o755
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
