package jobadapter

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jgivc/ftpstage/internal/common"
	"github.com/jgivc/ftpstage/internal/entity"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const validJob = `{
  "dns": "http://scheduler:8080/",
  "execution": "exec-1",
  "syncDir": "/sync/",
  "hash": "abc123",
  "speed": 50,
  "data": [
    {"node": "node-a", "currentIP": "10.0.0.1", "files": ["/data/a", "/data/b"]},
    {"node": "node-b", "currentIP": null, "files": ["/data/c"]}
  ],
  "symlinks": [{"src": "/work/in", "dst": "/data/a"}],
  "waitForFilesOfTask": {"peer1": ["/data/x"]}
}`

func TestLoad(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	testCases := []struct {
		name       string
		content    *string
		expectCode int
		expectErr  error
		expect     *entity.Task
	}{
		{
			name:    "Valid job",
			content: ptr(validJob),
			expect: &entity.Task{
				ID:        "abc123",
				Execution: "exec-1",
				DNS:       "http://scheduler:8080/",
				SyncDir:   "/sync/",
				Speed:     50,
				Nodes: []*entity.NodeJob{
					{Node: "node-a", KnownIP: "10.0.0.1", Files: []string{"/data/a", "/data/b"}},
					{Node: "node-b", Files: []string{"/data/c"}},
				},
				Symlinks: []entity.SymlinkSpec{{Link: "/work/in", Target: "/data/a"}},
				WaitFor:  map[string][]string{"peer1": {"/data/x"}},
			},
		},
		{
			name:    "Speed defaults to full",
			content: ptr(`{"hash": "h", "syncDir": "/s"}`),
			expect: &entity.Task{
				ID:       "h",
				SyncDir:  "/s",
				Speed:    100,
				Nodes:    []*entity.NodeJob{},
				Symlinks: []entity.SymlinkSpec{},
				WaitFor:  map[string][]string{},
			},
		},
		{
			name:       "Missing file",
			expectCode: common.ExitJobDescriptionMissing,
			expectErr:  common.ErrJobDescriptionMissing,
		},
		{
			name:      "Broken JSON",
			content:   ptr(`{"hash": `),
			expectErr: common.ErrInvalidJobDescription,
		},
		{
			name:      "Speed out of range",
			content:   ptr(`{"hash": "h", "syncDir": "/s", "speed": 0}`),
			expectErr: common.ErrInvalidJobDescription,
		},
		{
			name:      "No hash",
			content:   ptr(`{"syncDir": "/s"}`),
			expectErr: common.ErrInvalidJobDescription,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if tc.content != nil {
				require.NoError(t, afero.WriteFile(fs, "/job.json", []byte(*tc.content), 0o644))
			}

			task, err := NewJobAdapterWithFS(fs, log).Load("/job.json")
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				if tc.expectCode != 0 {
					require.Equal(t, tc.expectCode, common.ExitCode(err))
				}
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expect, task)

			ok, err := afero.DirExists(fs, task.SyncDir)
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func ptr(s string) *string {
	return &s
}
