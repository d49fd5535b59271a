package itemsync

import "context"

// Task is a handle to background work started by the engine.
type Task struct {
	done chan struct{}
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// completedTask returns a task that has already finished with err.
func completedTask(err error) *Task {
	t := newTask()
	t.finish(err)
	return t
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task's result, or nil while it is still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
