package assets

import (
	"archive/zip"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/resources"
)

// ArchiveEntry is one file inside a container archive.
type ArchiveEntry struct {
	// Name is the entry file name without directories or extension.
	Name string
	// FileName is the entry path inside the archive.
	FileName string
	Kind     resources.AssetKind
	file     *zip.File
}

// VirtualPath is where the entry is cached when the archive is mounted at
// archiveVPath.
func (e ArchiveEntry) VirtualPath(archiveVPath string) string {
	return archiveVPath + "/" + e.Name
}

func (e ArchiveEntry) Read() ([]byte, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "open entry %s: %s", e.FileName, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "read entry %s: %s", e.FileName, err)
	}
	return data, nil
}

// Archive is an opened container. Entries of unknown kind are skipped.
type Archive struct {
	Path    string
	reader  *zip.ReadCloser
	entries []ArchiveEntry
}

func OpenArchive(p string) (*Archive, error) {
	r, err := zip.OpenReader(p)
	if err != nil {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "open archive %s: %s", p, err)
	}
	a := &Archive{Path: p, reader: r}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		kind := KindForFile(f.Name)
		if kind == resources.AssetKindUnknown {
			continue
		}
		base := path.Base(f.Name)
		a.entries = append(a.entries, ArchiveEntry{
			Name:     strings.TrimSuffix(base, path.Ext(base)),
			FileName: f.Name,
			Kind:     kind,
			file:     f,
		})
	}
	sort.Slice(a.entries, func(i, j int) bool { return a.entries[i].FileName < a.entries[j].FileName })
	return a, nil
}

func (a *Archive) Entries() []ArchiveEntry {
	return a.entries
}

func (a *Archive) Close() error {
	return a.reader.Close()
}
