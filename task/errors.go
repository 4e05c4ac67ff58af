package task

import (
	"errors"
	"fmt"

	"github.com/BaSui01/doctranslate/types"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskNotReady      = errors.New("task not ready")
	ErrTaskFailed        = errors.New("task failed")
	ErrInvalidTransition = errors.New("invalid task transition")
	ErrManagerClosed     = errors.New("task manager is shut down")
)

func notFound(id string) error {
	return types.NewError(types.ErrTaskNotFound, fmt.Sprintf("task %s not found", id)).
		WithCause(ErrTaskNotFound)
}

func notReady(id string, status Status) error {
	return types.NewError(types.ErrTaskNotReady, fmt.Sprintf("task %s is still %s", id, status)).
		WithCause(ErrTaskNotReady).WithRetryable(true)
}

func failed(id, msg string) error {
	return types.NewError(types.ErrTaskFailed, fmt.Sprintf("task %s failed: %s", id, msg)).
		WithCause(ErrTaskFailed)
}

func invalidTransition(id string, from, to Status) error {
	return types.NewError(types.ErrInvalidTransition, fmt.Sprintf("task %s: %s -> %s", id, from, to)).
		WithCause(ErrInvalidTransition)
}
