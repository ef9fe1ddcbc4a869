package jobx

import (
	"context"

	"github.com/Abraxas-365/examforge/pkg/fsx"
	"github.com/Abraxas-365/examforge/pkg/logx"
)

// FlagPauser pauses intake while a flag file exists. Operators create and
// remove the file (directly or through the admin API) to stop and resume
// generation without restarting the worker.
type FlagPauser struct {
	fs   fsx.FileReader
	path string
}

// NewFlagPauser creates a pauser watching the given flag file path.
func NewFlagPauser(fs fsx.FileReader, path string) *FlagPauser {
	return &FlagPauser{fs: fs, path: path}
}

// Paused reports whether the flag file currently exists. Lookup errors are
// treated as not paused so a broken filesystem cannot wedge the worker.
func (p *FlagPauser) Paused(ctx context.Context) bool {
	exists, err := p.fs.Exists(ctx, p.path)
	if err != nil {
		logx.WithError(err).Warn("jobx: pause flag check failed")
		return false
	}
	return exists
}
