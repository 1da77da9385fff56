package pipeline

import (
	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

var (
	ErrPoseMustBeSet        = errors.New("pose must be set")
	ErrScoresMustBeSet      = errors.New("score table must be set")
	ErrTagMustBeSet         = checkpoint.ErrTagMustBeSet
	ErrRegionOutOfRange     = region.ErrOutOfRange
	ErrUnknownStrategy      = stage.ErrUnknownStrategy
	ErrFragmentsRequired    = errors.New("fragment libraries are required")
	ErrLengthMismatch       = errors.New("model and reference model differ in length")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrCollaboratorRequired = errors.New("collaborator is required")
)
