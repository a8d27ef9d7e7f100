// Package rollback implements transactional construction: every successful step
// of a multi-step constructor pushes an action which undoes exactly that step.
// If the constructor fails the actions run in reverse order of acquisition. If it
// succeeds the stack is defused and ownership passes to the constructed value.
//
//	rb := rollback.New("device context", logger)
//	defer rb.Unwind()
//
//	instance, err := createInstance()
//	if err != nil {
//		return nil, err
//	}
//	rb.Push("instance", func() { destroyInstance(instance) })
//	...
//	rb.Defuse()
//	return ctx, nil
package rollback

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

type step struct {
	name string
	undo func() error
}

// Stack is a list of undo actions. The zero value is not usable, create one
// with New.
type Stack struct {
	scope  string
	logger *slog.Logger
	steps  []step
	fired  bool
}

// New returns an empty stack. The scope is included in log messages. A nil
// logger discards everything.
func New(scope string, logger *slog.Logger) *Stack {
	if logger == nil {
		logger = slog.New(nopHandler{})
	}

	return &Stack{
		scope:  scope,
		logger: logger,
	}
}

// Push registers undo as the action which reverts the step called name.
func (s *Stack) Push(name string, undo func()) {
	s.PushErr(name, func() error {
		undo()
		return nil
	})
}

// PushErr is like Push but for undo actions which can fail. Failures do not stop
// the unwinding; they are collected and returned by Unwind.
func (s *Stack) PushErr(name string, undo func() error) {
	s.steps = append(s.steps, step{name: name, undo: undo})
}

// Len returns the number of pending undo actions.
func (s *Stack) Len() int {
	return len(s.steps)
}

// Defuse drops all pending actions. After Defuse, Unwind is a no-op. This is what
// a constructor calls right before returning its result.
func (s *Stack) Defuse() {
	s.steps = nil
}

// Fired returns true if Unwind ran at least one undo action.
func (s *Stack) Fired() bool {
	return s.fired
}

// Unwind runs all pending actions in reverse order of their Push and empties the
// stack. It is safe to call more than once and it is meant to be deferred.
func (s *Stack) Unwind() error {
	var errs error

	for i := len(s.steps) - 1; i >= 0; i-- {
		st := s.steps[i]
		s.logger.Warn(fmt.Sprintf("%s rollback", st.name), slog.String("scope", s.scope))
		s.fired = true

		if err := runUndo(st); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "undo %s", st.name))
		}
	}

	s.steps = nil
	return errs
}

// runUndo calls the undo action and turns a panic into an error so that the rest
// of the stack still runs.
func runUndo(st step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()

	return st.undo()
}
