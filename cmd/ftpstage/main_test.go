package main

import (
	"testing"

	"github.com/jgivc/ftpstage/internal/common"
	"github.com/stretchr/testify/require"
)

func TestRunUsage(t *testing.T) {
	t.Chdir(t.TempDir())

	testCases := []struct {
		name string
		argv []string
		code int
	}{
		{name: "No arguments", argv: []string{}, code: common.ExitUsage},
		{name: "Bad trace flag", argv: []string{"maybe", "run", "job.json"}, code: common.ExitUsage},
		{name: "Missing job", argv: []string{"true", "run", "job.json", "--log-level", "error"}, code: common.ExitJobDescriptionMissing},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.code, run(tc.argv))
		})
	}
}
