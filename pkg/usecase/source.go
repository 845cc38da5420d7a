package usecase

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
)

// maxExtractedSize caps the uncompressed size of a source archive
const maxExtractedSize = 2 << 30

type sourceFetcher struct {
	client interfaces.SourceClient
}

// NewSourceFetcher creates a SourceFetcher that downloads repository zipballs
func NewSourceFetcher(client interfaces.SourceClient) interfaces.SourceFetcher {
	return &sourceFetcher{
		client: client,
	}
}

// Fetch downloads owner/repo at the configured branch and extracts it into a temporary directory
func (uc *sourceFetcher) Fetch(ctx context.Context, src *model.SourceFetch) (*model.Artifact, error) {
	logger := ctxlog.From(ctx)

	zipData, err := uc.client.DownloadZipball(ctx, src.Owner, src.Repo, src.Branch)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download zipball",
			goerr.V("owner", src.Owner), goerr.V("repo", src.Repo), goerr.V("branch", src.Branch))
	}

	logger.Info("Downloaded zipball",
		"size_bytes", len(zipData),
		"owner", src.Owner,
		"repo", src.Repo,
		"branch", src.Branch,
	)

	artifact, err := extractZip(ctx, zipData)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to extract zipball", goerr.V("owner", src.Owner), goerr.V("repo", src.Repo))
	}

	logger.Info("Extracted source artifact",
		"dir", artifact.Dir,
		"file_count", len(artifact.Files),
		"total_size_bytes", artifact.Size,
	)

	return artifact, nil
}

// extractZip unpacks a zipball into a private temporary directory. GitHub zipballs wrap the tree
// in a single "<owner>-<repo>-<sha>/" directory; when present it becomes the artifact root.
func extractZip(ctx context.Context, zipData []byte) (*model.Artifact, error) {
	tempDir, err := os.MkdirTemp("", "herald-source-*")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create temporary directory")
	}
	if err := os.Chmod(tempDir, 0700); err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, goerr.Wrap(err, "failed to restrict temporary directory", goerr.V("dir", tempDir))
	}
	ctxlog.From(ctx).Debug("Extracting source", "temp_dir", tempDir)

	artifact, err := extractInto(zipData, tempDir)
	if err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, err
	}
	return artifact, nil
}

func extractInto(zipData []byte, tempDir string) (*model.Artifact, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, goerr.Wrap(err, "invalid zip archive")
	}

	artifact := &model.Artifact{
		Name:    model.SourceArtifactName,
		Dir:     tempDir,
		Cleanup: tempDir,
	}
	roots := make(map[string]struct{})

	for _, f := range zr.File {
		artifact.Size += int64(f.UncompressedSize64)
		if artifact.Size > maxExtractedSize {
			return nil, goerr.New("archive too large", goerr.V("limit", int64(maxExtractedSize)))
		}

		if err := extractFile(f, tempDir); err != nil {
			return nil, err
		}

		root, _, _ := strings.Cut(f.Name, "/")
		roots[root] = struct{}{}
		if !f.FileInfo().IsDir() {
			artifact.Files = append(artifact.Files, f.Name)
		}
	}

	if len(roots) == 1 {
		for root := range roots {
			if info, err := os.Stat(filepath.Join(tempDir, root)); err == nil && info.IsDir() {
				artifact.Dir = filepath.Join(tempDir, root)
			}
		}
	}

	return artifact, nil
}

// extractFile writes one archive entry below destDir. Entries escaping destDir are rejected.
func extractFile(f *zip.File, destDir string) error {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return goerr.New("archive entry escapes destination", goerr.V("entry", f.Name))
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(destPath, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return goerr.Wrap(err, "failed to create directory", goerr.V("dir", filepath.Dir(destPath)))
	}

	rc, err := f.Open()
	if err != nil {
		return goerr.Wrap(err, "failed to open archive entry", goerr.V("entry", f.Name))
	}
	defer rc.Close()

	mode := f.FileInfo().Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return goerr.Wrap(err, "failed to create file", goerr.V("path", destPath))
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return goerr.Wrap(err, "failed to write file", goerr.V("path", destPath))
	}
	return nil
}
