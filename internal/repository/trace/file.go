package trace

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jgivc/ftpstage/internal/entity"
	"github.com/spf13/afero"
)

const filePerm = 0o644

type fileRepository struct {
	fs   afero.Fs
	path string
	log  *slog.Logger
}

func NewFileRepository(path string, log *slog.Logger) *fileRepository {
	return NewFileRepositoryWithFS(afero.NewOsFs(), path, log)
}

func NewFileRepositoryWithFS(fs afero.Fs, path string, log *slog.Logger) *fileRepository {
	return &fileRepository{
		fs:   fs,
		path: path,
		log:  log.With(slog.String("item", "TraceFileRepository")),
	}
}

// Save appends one key=value line per field.
func (r *fileRepository) Save(_ context.Context, rec *entity.TraceRecord) error {
	f, err := r.fs.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("cannot open trace file %s: %w", r.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, field := range rec.Fields {
		if _, err := fmt.Fprintf(w, "%s=%s\n", field.Key, field.Value); err != nil {
			return fmt.Errorf("cannot write trace: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("cannot write trace: %w", err)
	}

	r.log.Debug("Trace saved", slog.String("path", r.path), slog.Int("fields", len(rec.Fields)))

	return nil
}
