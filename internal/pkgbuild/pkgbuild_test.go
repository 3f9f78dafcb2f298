package pkgbuild

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevExpGBB/azsvc/internal/service"
)

func newService(t *testing.T, roles ...string) *service.Service {
	t.Helper()
	root := t.TempDir()
	svc := &service.Service{
		Root:       root,
		Definition: &service.Definition{Name: "mysvc"},
		Cloud:      &service.Configuration{Name: "mysvc"},
	}
	for _, r := range roles {
		require.NoError(t, svc.AddRole(service.RoleDefinition{Name: r, Type: service.WebRole, EntryPoint: "server.js"}, 1))
		writeFile(t, filepath.Join(root, r, "server.js"), "server")
	}
	require.NoError(t, svc.Save())
	return svc
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readRoleArchive(t *testing.T, pkg, role string) []string {
	t.Helper()
	zr, err := zip.OpenReader(pkg)
	require.NoError(t, err)
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != "roles/"+role+".zip" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		inner, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err)
		var names []string
		for _, g := range inner.File {
			names = append(names, g.Name)
		}
		return names
	}
	t.Fatalf("role archive for %s not found", role)
	return nil
}

func TestBuild_ExcludesLogDirectories(t *testing.T) {
	svc := newService(t, "WebRole1")
	role := svc.RoleDir("WebRole1")
	writeFile(t, filepath.Join(role, "server.js.logs", "0.txt"), "log")
	writeFile(t, filepath.Join(role, "lib", "deep", "trace.logs", "1.txt"), "log")
	writeFile(t, filepath.Join(role, "lib", "util.js"), "util")
	writeFile(t, filepath.Join(role, "server.js.logsbackup", "keep.txt"), "keep")
	writeFile(t, filepath.Join(role, "server.logs.txt"), "keep")

	art, err := (&Builder{}).Build(svc)
	require.NoError(t, err)

	want := []string{"lib/util.js", "server.js", "server.js.logsbackup/keep.txt", "server.logs.txt"}
	assert.Equal(t, want, art.RoleEntries["WebRole1"])
	assert.ElementsMatch(t, want, readRoleArchive(t, art.Path, "WebRole1"))
}

func TestBuild_Entries(t *testing.T) {
	svc := newService(t, "WebRole1", "WorkerRole1")

	art, err := (&Builder{}).Build(svc)
	require.NoError(t, err)

	assert.Equal(t, svc.Path(service.PackageFile), art.Path)
	assert.Equal(t, 4, art.Entries.Cardinality())
	assert.True(t, art.Entries.Contains(
		service.DefinitionFile,
		service.CloudConfigFile,
		"roles/WebRole1.zip",
		"roles/WorkerRole1.zip",
	))

	info, err := os.Stat(art.Path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), art.Size)
}

func TestBuild_OverwritesExistingPackage(t *testing.T) {
	svc := newService(t, "WebRole1")
	writeFile(t, svc.Path(service.PackageFile), "stale")

	art, err := (&Builder{}).Build(svc)
	require.NoError(t, err)

	zr, err := zip.OpenReader(art.Path)
	require.NoError(t, err)
	zr.Close()

	leftovers, err := filepath.Glob(filepath.Join(svc.Root, ".cloud_package-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestBuild_MissingRoleContent(t *testing.T) {
	svc := newService(t, "WebRole1")
	require.NoError(t, svc.AddRole(service.RoleDefinition{Name: "Ghost", Type: service.WorkerRole}, 1))

	_, err := (&Builder{}).Build(svc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingContent))

	var pe *PackagingError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Ghost", pe.Role)

	_, statErr := os.Stat(svc.Path(service.PackageFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuild_MissingEntryPoint(t *testing.T) {
	svc := newService(t, "WebRole1")
	require.NoError(t, os.Remove(filepath.Join(svc.RoleDir("WebRole1"), "server.js")))

	_, err := (&Builder{}).Build(svc)
	assert.True(t, errors.Is(err, ErrMissingContent))
}

func TestBuild_CustomExcludes(t *testing.T) {
	svc := newService(t, "WebRole1")
	writeFile(t, filepath.Join(svc.RoleDir("WebRole1"), "node_modules", "x", "index.js"), "x")
	writeFile(t, filepath.Join(svc.RoleDir("WebRole1"), "a.logs", "kept.txt"), "x")

	art, err := (&Builder{Excludes: []string{"node_modules"}}).Build(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.logs/kept.txt", "server.js"}, art.RoleEntries["WebRole1"])
}
