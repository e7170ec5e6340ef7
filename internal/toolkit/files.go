package toolkit

import (
	"mime"
	"os"
	"path/filepath"
	"sort"

	"github.com/caseforge/caseforge/internal/infra/logger"
)

// FileInfo describes one file available for upload steps.
type FileInfo struct {
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	FileType string `json:"file_type"`
}

// InspectUploadDir lists the files under dir that generated cases may
// attach to multipart requests. A missing directory is created and
// yields an empty catalog.
func InspectUploadDir(dir string) ([]FileInfo, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		fileType := mime.TypeByExtension(filepath.Ext(name))
		if fileType == "" {
			fileType = "application/octet-stream"
		}
		files = append(files, FileInfo{
			FileName: name,
			FilePath: filepath.Join(dir, name),
			FileType: fileType,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].FileName < files[j].FileName })

	logger.Debug("scanned upload directory", logger.String("dir", dir), logger.Int("files", len(files)))
	return files, nil
}
