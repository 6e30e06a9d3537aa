package upload

import "sync"

// Batch is the handle for the tasks started by one Dispatch call.
type Batch struct {
	Epoch   uint64
	TaskIDs []string

	wg      sync.WaitGroup
	mu      sync.Mutex
	results []Result
}

func newBatch(epoch uint64) *Batch {
	return &Batch{Epoch: epoch, TaskIDs: make([]string, 0)}
}

func (b *Batch) add(r Result) {
	b.mu.Lock()
	b.results = append(b.results, r)
	b.mu.Unlock()
}

// Wait blocks until every task of the batch has finished.
func (b *Batch) Wait() {
	b.wg.Wait()
}

// Done returns a channel closed once every task has finished.
func (b *Batch) Done() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(ch)
	}()
	return ch
}

// Results returns the results collected so far in completion order.
func (b *Batch) Results() []Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Result, len(b.results))
	copy(out, b.results)
	return out
}

// Failed counts results that produced no upload because of an error.
func (b *Batch) Failed() int {
	n := 0
	for _, r := range b.Results() {
		if r.Err != nil {
			n++
		}
	}
	return n
}
