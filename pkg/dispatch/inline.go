package dispatch

// Inline runs every task on the submitting goroutine. It honours the same
// Submit contract as Dispatcher without queueing, so task outcomes are
// applied in submission order.
type Inline struct{}

// Submit runs the task to completion and returns its completed future
func (Inline) Submit(kind Kind, task Task) (*Future, error) {
	if task.Future == nil {
		task.Future = NewFuture()
	}

	err := run(task)
	if task.OnComplete != nil {
		task.OnComplete(err)
	}
	task.Future.complete(err)
	return task.Future, nil
}
