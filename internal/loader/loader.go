// Package loader finds shapelet containers on disk and decodes them, either
// from bare pickle files or from pickles wrapped in zip archives.
package loader

import (
	"archive/zip"
	"bufio"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shapelet-cli/internal/pyobj"
)

var (
	// ErrLoad marks an input file that is missing, corrupt or of the wrong format.
	ErrLoad = eris.New("loader: load failed")
	// ErrNotDir is returned by Discover when the root is not a readable directory.
	ErrNotDir = eris.New("loader: not a directory")
)

// Supported container extensions.
const (
	ExtPickle = ".pkl"
	ExtZip    = ".zip"
)

// DiscoverOptions tunes Discover.
type DiscoverOptions struct {
	Extensions   []string // case-insensitive; defaults to .pkl and .zip
	NonRecursive bool
}

// Discover lists input files under dir, sorted for a deterministic run order.
func Discover(dir string, opts DiscoverOptions) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, eris.Wrapf(ErrNotDir, "%s", dir)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{ExtPickle, ExtZip}
	}
	want := func(name string) bool {
		ext := strings.ToLower(filepath.Ext(name))
		for _, e := range exts {
			if strings.ToLower(e) == ext {
				return true
			}
		}
		return false
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if opts.NonRecursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !want(d.Name()) {
			return nil
		}
		if !d.Type().IsRegular() {
			st, err := os.Stat(path)
			if err != nil || !st.Mode().IsRegular() {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "loader: walk %s", dir)
	}

	slices.Sort(files)
	return files, nil
}

// Container is one decoded input object and where it came from.
type Container struct {
	Source string // path on disk
	Member string // zip member name, empty for bare pickles
	Data   any
}

// Name returns the base name of the pickle the data was read from.
func (c Container) Name() string {
	if c.Member != "" {
		return filepath.Base(c.Member)
	}
	return filepath.Base(c.Source)
}

// Load dispatches on the file extension.
func Load(path string) (Container, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtZip:
		return LoadZip(path, "")
	case ExtPickle:
		return LoadPickle(path)
	default:
		return Container{}, eris.Wrapf(ErrLoad, "unsupported file type %q (expected .pkl or .zip): %s", filepath.Ext(path), path)
	}
}

// LoadPickle decodes a bare pickle file.
func LoadPickle(path string) (Container, error) {
	if !strings.EqualFold(filepath.Ext(path), ExtPickle) {
		return Container{}, eris.Wrapf(ErrLoad, "expected .pkl file: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return Container{}, eris.Wrapf(ErrLoad, "open %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck

	data, err := decode(f)
	if err != nil {
		return Container{}, eris.Wrapf(ErrLoad, "%s: %v", path, err)
	}
	return Container{Source: path, Data: data}, nil
}

// LoadZip decodes a pickle stored inside a zip archive. With an empty member
// the first .pkl entry in archive order is used.
func LoadZip(path, member string) (Container, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return Container{}, eris.Wrapf(ErrLoad, "open archive %s: %v", path, err)
	}
	defer r.Close() //nolint:errcheck

	var target *zip.File
	var pickles int
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(f.Name), ExtPickle) {
			continue
		}
		pickles++
		if target == nil && (member == "" || f.Name == member) {
			target = f
		}
	}
	if pickles == 0 {
		return Container{}, eris.Wrapf(ErrLoad, "zip file contains no .pkl entries: %s", path)
	}
	if target == nil {
		return Container{}, eris.Wrapf(ErrLoad, "member not found in zip: %s", member)
	}

	rc, err := target.Open()
	if err != nil {
		return Container{}, eris.Wrapf(ErrLoad, "open entry %s: %v", target.Name, err)
	}
	defer rc.Close() //nolint:errcheck

	data, err := decode(rc)
	if err != nil {
		return Container{}, eris.Wrapf(ErrLoad, "%s!%s: %v", path, target.Name, err)
	}
	return Container{Source: path, Member: target.Name, Data: data}, nil
}

// Members lists the .pkl entries of a zip archive in archive order.
func Members(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, eris.Wrapf(ErrLoad, "open archive %s: %v", path, err)
	}
	defer r.Close() //nolint:errcheck

	var names []string
	for _, f := range r.File {
		if !f.FileInfo().IsDir() && strings.EqualFold(filepath.Ext(f.Name), ExtPickle) {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

func decode(r io.Reader) (any, error) {
	return pyobj.Decode(bufio.NewReader(r))
}
