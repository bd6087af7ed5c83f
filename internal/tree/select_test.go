package tree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/italolelis/seafile_downloader/internal/transfer"
)

func sampleTree() []transfer.FileNode {
	root := "/"
	docs := "/docs/"

	return []transfer.FileNode{
		Root(),
		{ID: "/docs/", Name: "docs", Parent: &root, IsDir: true},
		{ID: "/readme.md", Name: "readme.md", Parent: &root, Size: 1500},
		{ID: "/docs/a.pdf", Name: "a.pdf", Parent: &docs, Size: 2500},
		{ID: "/docs-old.zip", Name: "docs-old.zip", Parent: &root, Size: 1000},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleTree())

	assert.Equal(t, Summary{Files: 3, Dirs: 1, TotalSize: 5000}, s)
	assert.Equal(t, "3 files in 1 folders, 5.0 kB total", s.String())
}

func TestItems(t *testing.T) {
	dir := filepath.Join("tmp", "out")

	all := Items(sampleTree(), dir)
	assert.Equal(t, []transfer.DownloadItem{
		{FilePath: "/readme.md", SavePath: filepath.Join(dir, "readme.md")},
		{FilePath: "/docs/a.pdf", SavePath: filepath.Join(dir, "docs", "a.pdf")},
		{FilePath: "/docs-old.zip", SavePath: filepath.Join(dir, "docs-old.zip")},
	}, all)

	// a directory selection does not match siblings sharing its prefix
	docs := Items(sampleTree(), dir, "/docs")
	assert.Equal(t, []transfer.DownloadItem{
		{FilePath: "/docs/a.pdf", SavePath: filepath.Join(dir, "docs", "a.pdf")},
	}, docs)

	single := Items(sampleTree(), dir, "/readme.md")
	assert.Len(t, single, 1)

	assert.Len(t, Items(sampleTree(), dir, "/"), 3)
	assert.Empty(t, Items(sampleTree(), dir, "/missing"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(sampleTree()))

	assert.ErrorIs(t, Validate(sampleTree()[1:]), ErrNoRoot)
	assert.ErrorIs(t, Validate(append(sampleTree(), Root())), ErrMultipleRoots)

	orphanParent := "/nowhere/"
	orphan := append(sampleTree(), transfer.FileNode{ID: "/nowhere/x", Parent: &orphanParent})
	assert.ErrorContains(t, Validate(orphan), "missing parent")

	filePathParent := "/readme.md"
	underFile := append(sampleTree(), transfer.FileNode{ID: "/readme.md/x", Parent: &filePathParent})
	assert.Error(t, Validate(underFile))
}
