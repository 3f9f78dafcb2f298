// Package pkgbuild assembles a service and its roles into a deployable
// package archive.
package pkgbuild

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set"
	"github.com/ryanuber/go-glob"

	"github.com/DevExpGBB/azsvc/internal/service"
)

// DefaultExcludes are directory name globs never packaged.
var DefaultExcludes = []string{"*.logs"}

// ErrMissingContent is wrapped by PackagingError when a role directory or
// entry point does not exist.
var ErrMissingContent = errors.New("missing role content")

// PackagingError reports a failure building the package.
type PackagingError struct {
	Role string
	Path string
	Err  error
}

func (e *PackagingError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("packaging %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("packaging role %s (%s): %v", e.Role, e.Path, e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }

// Artifact is a built package.
type Artifact struct {
	Path string
	// Entries holds the top-level archive entry names.
	Entries mapset.Set
	// RoleEntries lists the files packaged for each role, slash separated
	// and relative to the role directory.
	RoleEntries map[string][]string
	Size        int64
}

// Builder builds packages. The zero value uses DefaultExcludes.
type Builder struct {
	// Excludes are globs matched against every directory name below a role
	// root. Matching directories are skipped with everything under them.
	Excludes []string
}

// Build writes the package for svc to <root>/cloud_package.zip, replacing
// any earlier package. Nothing is written if any role is incomplete.
func (b *Builder) Build(svc *service.Service) (*Artifact, error) {
	if err := b.check(svc); err != nil {
		return nil, err
	}

	art := &Artifact{
		Path:        svc.Path(service.PackageFile),
		Entries:     mapset.NewSet(),
		RoleEntries: make(map[string][]string),
	}

	tmp, err := os.CreateTemp(svc.Root, ".cloud_package-*.zip")
	if err != nil {
		return nil, &PackagingError{Path: svc.Root, Err: err}
	}
	defer os.Remove(tmp.Name())

	if err := b.write(tmp, svc, art); err != nil {
		tmp.Close()
		return nil, err
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return nil, &PackagingError{Path: tmp.Name(), Err: err}
	}
	art.Size = info.Size()
	if err := tmp.Close(); err != nil {
		return nil, &PackagingError{Path: tmp.Name(), Err: err}
	}
	if err := os.Rename(tmp.Name(), art.Path); err != nil {
		return nil, &PackagingError{Path: art.Path, Err: err}
	}
	return art, nil
}

// check verifies every role directory and entry point exists.
func (b *Builder) check(svc *service.Service) error {
	for _, r := range svc.Definition.Roles {
		dir := svc.RoleDir(r.Name)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return &PackagingError{Role: r.Name, Path: dir, Err: ErrMissingContent}
		}
		if r.EntryPoint == "" {
			continue
		}
		entry := filepath.Join(dir, filepath.FromSlash(r.EntryPoint))
		if _, err := os.Stat(entry); err != nil {
			return &PackagingError{Role: r.Name, Path: entry, Err: ErrMissingContent}
		}
	}
	return nil
}

func (b *Builder) write(w io.Writer, svc *service.Service, art *Artifact) error {
	zw := zip.NewWriter(w)

	for _, name := range []string{service.DefinitionFile, service.CloudConfigFile} {
		data, err := os.ReadFile(svc.Path(name))
		if err != nil {
			return &PackagingError{Path: svc.Path(name), Err: err}
		}
		if err := addFile(zw, name, data); err != nil {
			return &PackagingError{Path: name, Err: err}
		}
		art.Entries.Add(name)
	}

	for _, r := range svc.Definition.Roles {
		data, files, err := b.roleArchive(svc.RoleDir(r.Name))
		if err != nil {
			return &PackagingError{Role: r.Name, Path: svc.RoleDir(r.Name), Err: err}
		}
		name := "roles/" + r.Name + ".zip"
		if err := addFile(zw, name, data); err != nil {
			return &PackagingError{Role: r.Name, Path: name, Err: err}
		}
		art.Entries.Add(name)
		art.RoleEntries[r.Name] = files
	}

	if err := zw.Close(); err != nil {
		return &PackagingError{Path: svc.Root, Err: err}
	}
	return nil
}

// roleArchive zips the tree under dir, skipping excluded directories.
func (b *Builder) roleArchive(dir string) ([]byte, []string, error) {
	var (
		buf   bytes.Buffer
		files []string
	)
	zw := zip.NewWriter(&buf)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if d.IsDir() {
			if b.excluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := addFile(zw, rel, data); err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, nil, err
	}
	sort.Strings(files)
	return buf.Bytes(), files, nil
}

func (b *Builder) excluded(dirName string) bool {
	excludes := b.Excludes
	if excludes == nil {
		excludes = DefaultExcludes
	}
	for _, ex := range excludes {
		if glob.Glob(ex, dirName) {
			return true
		}
	}
	return false
}

func addFile(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}
