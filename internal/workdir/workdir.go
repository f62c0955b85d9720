// Package workdir manages the host directory mounted into the guest as its
// GEMDOS hard drive.
package workdir

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/seantiz/stbuild/internal/macro"
	"github.com/seantiz/stbuild/internal/model"
)

// Layout names the fixed files inside a working directory.
type Layout struct {
	Editor       string
	Compiler     string
	StagedSource string
	NativeSource string
	Backup       string
	// Object is the compiler's intermediate output. Empty means the compiler
	// leaves nothing observable and a fixed delay is used instead.
	Object   string
	Artifact string
}

// DefaultLayout returns the file names the GFA-BASIC tools expect.
func DefaultLayout() Layout {
	return Layout{
		Editor:       macro.EditorName,
		Compiler:     macro.CompilerName,
		StagedSource: macro.SourceName,
		NativeSource: macro.NativeName,
		Backup:       "SOURCE.BAK",
		Object:       "SOURCE.O",
		Artifact:     "TEST.PRG",
	}
}

// StaleFiles lists the per-run files a task must remove before it starts the
// guest, so that completion detection never sees a previous run's output.
func (l Layout) StaleFiles(task string) []string {
	files := []string{l.StagedSource, l.NativeSource, l.Backup}
	if task == model.TaskCompile {
		if l.Object != "" {
			files = append(files, l.Object)
		}
		files = append(files, l.Artifact)
	}
	return files
}

// Prepare makes sure dir exists and holds the editor and compiler. The
// template tree is copied in the first time the editor is missing.
func Prepare(dir, template string, l Layout) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}

	if !exists(filepath.Join(dir, l.Editor)) {
		if template == "" {
			return fmt.Errorf("%s missing from %s and no template configured", l.Editor, dir)
		}
		if err := CopyTree(template, dir); err != nil {
			return fmt.Errorf("seed working directory from %s: %w", template, err)
		}
	}

	for _, name := range []string{l.Editor, l.Compiler} {
		if !exists(filepath.Join(dir, name)) {
			return fmt.Errorf("%s missing from working directory %s", name, dir)
		}
	}
	return nil
}

// ErrSourceInWorkDir is returned when the caller's source is one of the
// per-run files that staging would remove or overwrite.
var ErrSourceInWorkDir = errors.New("source is a per-run file of the working directory")

// CheckSource fails if src names one of the given files in dir, either by
// path or as the same file on disk.
func CheckSource(src, dir string, names []string) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	srcInfo, srcErr := os.Stat(absSrc)

	for _, name := range names {
		target, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("working directory: %w", err)
		}
		if target == absSrc {
			return fmt.Errorf("%w: %s", ErrSourceInWorkDir, src)
		}
		if srcErr != nil {
			continue
		}
		if info, err := os.Stat(target); err == nil && os.SameFile(srcInfo, info) {
			return fmt.Errorf("%w: %s is %s", ErrSourceInWorkDir, src, name)
		}
	}
	return nil
}

// Clean removes the given files from dir. Files that are already gone are
// not an error.
func Clean(dir string, names []string) error {
	var errs []error
	for _, name := range names {
		err := os.Remove(filepath.Join(dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove stale %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Stage copies the caller's source into dir under the staged name and returns
// the destination path. The original is never modified.
func Stage(src, dir string, l Layout) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("source: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("source %s is a directory", src)
	}

	dst := filepath.Join(dir, l.StagedSource)
	if err := copyFile(src, dst, 0o644); err != nil {
		return "", fmt.Errorf("stage source: %w", err)
	}
	return dst, nil
}

// CopyTree copies every regular file under src into dst, creating
// directories as needed. Existing files are overwritten.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
