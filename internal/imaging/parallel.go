// internal/imaging/parallel.go
package imaging

import (
	"runtime"
	"sync"
)

// parallelFor runs fn(i) for i in [0, n) on at most workers goroutines,
// striding the indexes so slow items spread across workers.
func parallelFor(n, workers int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(start int) {
			defer wg.Done()
			for i := start; i < n; i += workers {
				fn(i)
			}
		}(w)
	}
	wg.Wait()
}

// Result is the outcome of normalizing one input.
type Result struct {
	Data []byte
	Err  error
}

// NormalizeAll normalizes every input concurrently. Results keep input order.
func NormalizeAll(inputs [][]byte, maxSide, quality, workers int) []Result {
	results := make([]Result, len(inputs))
	parallelFor(len(inputs), workers, func(i int) {
		data, err := Normalize(inputs[i], maxSide, quality)
		results[i] = Result{Data: data, Err: err}
	})
	return results
}
