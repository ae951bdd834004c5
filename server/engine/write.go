package engine

import (
	"io"
	"time"
)

// write built response fully, a short write is an error
func send(s *session) stateFunc {
	s.state = Sending
	w := s.w

	if w.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return s.fail(err)
		}
	}

	for len(s.out) > 0 {
		n, err := s.conn.Write(s.out)
		s.sent += n
		s.out = s.out[n:]
		if err != nil {
			return s.fail(err)
		}
		if n == 0 {
			return s.fail(io.ErrShortWrite)
		}
	}
	return nil
}
