package crew

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRecipeNotRegistered = errors.New("crew: task recipe not registered")
	ErrDuplicateRecipeName = errors.New("crew: duplicate task recipe name")
	ErrDependencyCycle     = errors.New("crew: task dependency cycle")
	ErrNoStore             = errors.New("crew: graph store is required")
)

// CycleError names the recipes of a rejected dependency cycle, first and last equal.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDependencyCycle, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrDependencyCycle }

// TaskFailedError reports a worker failure. The run continues past it.
type TaskFailedError struct {
	Recipe string
	TaskID string
	Err    error
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("crew: recipe %q task %s failed: %v", e.Recipe, e.TaskID, e.Err)
}

func (e *TaskFailedError) Unwrap() error { return e.Err }
