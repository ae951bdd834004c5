package engine

import "net"

// accepted connection waiting for a pool worker
type job struct {
	id   uint64
	conn net.Conn
}

// start simple worker pool for handling connections,
// the accept loop blocks on jobs once every worker is busy
func (e *Engine) startWorkerPool(n int) chan<- job {
	jobs := make(chan job)
	for range n {
		go func() {
			for j := range jobs {
				e.handle(j.id, j.conn)
			}
		}()
	}
	return jobs
}
