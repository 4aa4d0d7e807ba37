package indexer

import "golang.org/x/sync/errgroup"

// runPool runs fn once per item in items across n goroutines, collecting
// the first error encountered. Each worker keeps draining the job
// channel even after its own call to fn fails, so a single bad item
// doesn't strand work queued behind it.
func runPool(n int, items int, fn func(i int) error) error {
	if n <= 0 {
		n = 1
	}
	if items == 0 {
		return nil
	}
	if n > items {
		n = items
	}

	jobs := make(chan int, items)
	for i := 0; i < items; i++ {
		jobs <- i
	}
	close(jobs)

	var g errgroup.Group
	for w := 0; w < n; w++ {
		g.Go(func() error {
			var firstErr error
			for i := range jobs {
				if err := fn(i); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		})
	}
	return g.Wait()
}
