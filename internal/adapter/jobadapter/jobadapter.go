package jobadapter

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jgivc/ftpstage/internal/common"
	"github.com/jgivc/ftpstage/internal/entity"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
)

const (
	minSpeed = 1
	maxSpeed = 100

	syncDirPerm = 0o755
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type nodeDesc struct {
	Node      string   `json:"node"`
	CurrentIP *string  `json:"currentIP"`
	Files     []string `json:"files"`
}

type symlinkDesc struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// jobDesc mirrors the JSON job description written by the scheduler.
type jobDesc struct {
	DNS       string              `json:"dns"`
	Execution string              `json:"execution"`
	SyncDir   string              `json:"syncDir"`
	Hash      string              `json:"hash"`
	Speed     *int                `json:"speed"`
	Data      []nodeDesc          `json:"data"`
	Symlinks  []symlinkDesc       `json:"symlinks"`
	WaitFor   map[string][]string `json:"waitForFilesOfTask"`
}

type jobAdapter struct {
	fs  afero.Fs
	log *slog.Logger
}

func NewJobAdapter(log *slog.Logger) *jobAdapter {
	return NewJobAdapterWithFS(afero.NewOsFs(), log)
}

func NewJobAdapterWithFS(fs afero.Fs, log *slog.Logger) *jobAdapter {
	return &jobAdapter{
		fs:  fs,
		log: log.With(slog.String("item", "JobAdapter")),
	}
}

// Load reads the job description and creates the sync directory.
func (a *jobAdapter) Load(path string) (*entity.Task, error) {
	a.log.Info("Load job description", slog.String("path", path))

	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.NewExitError(common.ExitJobDescriptionMissing,
				fmt.Errorf("%w: %s", common.ErrJobDescriptionMissing, path))
		}

		return nil, fmt.Errorf("cannot read job description: %w", err)
	}

	var desc jobDesc
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidJobDescription, err)
	}

	task, err := toTask(&desc)
	if err != nil {
		return nil, err
	}

	if err := a.fs.MkdirAll(task.SyncDir, syncDirPerm); err != nil {
		return nil, fmt.Errorf("cannot create sync dir %s: %w", task.SyncDir, err)
	}

	a.log.Info("Job description loaded",
		slog.String("task", task.ID),
		slog.Int("nodes", len(task.Nodes)),
		slog.Int("symlinks", len(task.Symlinks)),
		slog.Int("depending_tasks", len(task.WaitFor)),
	)

	return task, nil
}

func toTask(desc *jobDesc) (*entity.Task, error) {
	if desc.Hash == "" {
		return nil, fmt.Errorf("%w: hash is empty", common.ErrInvalidJobDescription)
	}

	if desc.SyncDir == "" {
		return nil, fmt.Errorf("%w: syncDir is empty", common.ErrInvalidJobDescription)
	}

	speed := maxSpeed
	if desc.Speed != nil {
		speed = *desc.Speed
	}

	if speed < minSpeed || speed > maxSpeed {
		return nil, fmt.Errorf("%w: speed %d is out of range %d..%d", common.ErrInvalidJobDescription, speed, minSpeed, maxSpeed)
	}

	task := &entity.Task{
		ID:        desc.Hash,
		Execution: desc.Execution,
		DNS:       desc.DNS,
		SyncDir:   desc.SyncDir,
		Speed:     speed,
		Nodes:     make([]*entity.NodeJob, 0, len(desc.Data)),
		Symlinks:  make([]entity.SymlinkSpec, 0, len(desc.Symlinks)),
		WaitFor:   desc.WaitFor,
	}

	for _, d := range desc.Data {
		if d.Node == "" {
			return nil, fmt.Errorf("%w: node name is empty", common.ErrInvalidJobDescription)
		}

		job := &entity.NodeJob{
			Node:  d.Node,
			Files: append([]string(nil), d.Files...),
		}
		if d.CurrentIP != nil {
			job.KnownIP = *d.CurrentIP
		}

		task.Nodes = append(task.Nodes, job)
	}

	for _, s := range desc.Symlinks {
		task.Symlinks = append(task.Symlinks, entity.SymlinkSpec{Link: s.Src, Target: s.Dst})
	}

	if task.WaitFor == nil {
		task.WaitFor = map[string][]string{}
	}

	return task, nil
}
