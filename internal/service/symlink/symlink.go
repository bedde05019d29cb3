package symlink

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/jgivc/ftpstage/internal/entity"
	"github.com/jgivc/ftpstage/internal/fsutil"
	"github.com/jgivc/ftpstage/internal/runstate"
	"github.com/spf13/afero"
)

type symlinkStage struct {
	fs    afero.Fs
	state *runstate.RunState
	log   *slog.Logger
}

func NewSymlinkStage(state *runstate.RunState, log *slog.Logger) *symlinkStage {
	return NewSymlinkStageWithFS(afero.NewOsFs(), state, log)
}

func NewSymlinkStageWithFS(fs afero.Fs, state *runstate.RunState, log *slog.Logger) *symlinkStage {
	return &symlinkStage{
		fs:    fs,
		state: state,
		log:   log.With(slog.String("item", "SymlinkStage")),
	}
}

// Apply creates every link. A link that already points at its target is
// skipped, failures are counted and do not stop the remaining links.
func (s *symlinkStage) Apply(ctx context.Context, specs []entity.SymlinkSpec) error {
	var created int

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := s.apply(spec)
		if err != nil {
			s.state.IncErrors()
			s.log.Error("Cannot create symlink", slog.String("link", spec.Link),
				slog.String("target", spec.Target), slog.Any("error", err))

			continue
		}

		if ok {
			created++
		}
	}

	s.log.Info("Symlinks applied", slog.Int("total", len(specs)), slog.Int("created", created))

	return nil
}

func (s *symlinkStage) apply(spec entity.SymlinkSpec) (bool, error) {
	free, err := fsutil.ClearLocation(s.fs, spec.Link, spec.Target)
	if err != nil {
		return false, err
	}

	if !free {
		s.log.Debug("Symlink is up to date", slog.String("link", spec.Link))

		return false, nil
	}

	if err := fsutil.MkdirParent(s.fs, spec.Link); err != nil {
		return false, err
	}

	if err := fsutil.Symlink(s.fs, spec.Target, spec.Link); err != nil {
		if errors.Is(err, os.ErrExist) {
			s.log.Warn("File exists", slog.String("link", spec.Link), slog.String("target", spec.Target))

			return false, nil
		}

		return false, err
	}

	return true, nil
}
