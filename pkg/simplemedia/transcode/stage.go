package transcode

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Stage is a step of a transcode job
type Stage int

const (
	StageIdle Stage = iota
	StageStaged
	StageDownloaded
	StageConverted
	StageUploaded
	StageCleaned
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageStaged:
		return "staged"
	case StageDownloaded:
		return "downloaded"
	case StageConverted:
		return "converted"
	case StageUploaded:
		return "uploaded"
	case StageCleaned:
		return "cleaned"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError reports the stage a job was attempting when it failed
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Job is the ephemeral record of one transcode run. It lives only for the
// duration of Worker.Run.
type Job struct {
	ID         uuid.UUID
	SourceKey  string
	Prefix     string
	StagingDir string
	InputPath  string
	OutputDir  string
	Stage      Stage
	History    []Stage
	Result     *simplemedia.TranscodeResult
	Err        error
}

func (j *Job) advance(s Stage) {
	j.Stage = s
	j.History = append(j.History, s)
}

func (j *Job) fail(attempted Stage, err error) error {
	j.Err = &StageError{Stage: attempted, Err: err}
	j.advance(StageFailed)
	return j.Err
}
