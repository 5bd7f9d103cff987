package scanner

import (
	"fmt"
	"strings"
)

// Stage names a step of the scan pipeline.
type Stage string

const (
	StageLayers     Stage = "layer discovery"
	StageRecipes    Stage = "recipe discovery"
	StageAppends    Stage = "append discovery"
	StageOverrides  Stage = "override discovery"
	StageWorkspaces Stage = "devtool workspace discovery"
)

// StageError reports a pipeline stage whose command failed. Either Err is set
// (the command could not run) or Status holds its non-zero exit code.
type StageError struct {
	Stage  Stage
	Status int
	Stderr string
	Err    error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	msg := fmt.Sprintf("%s failed: exit status %d", e.Stage, e.Status)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }
