package engine

import (
	"net"

	"github.com/kfcemployee/tinyhttpd/server/protocol"
	"github.com/kfcemployee/tinyhttpd/server/router"
)

// State of one connection in the worker state machine
type State uint8

const (
	Receiving State = iota
	Parsing
	Resolving
	Handling
	Serializing
	Sending
	Closed
)

var stateNames = [...]string{
	Receiving:   "receiving",
	Parsing:     "parsing",
	Resolving:   "resolving",
	Handling:    "handling",
	Serializing: "serializing",
	Sending:     "sending",
	Closed:      "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// session is everything one connection owns while it is served,
// it lives for one Serve call and is never shared between workers
type session struct {
	w    *Worker
	id   uint64
	conn net.Conn

	bufp *[]byte // pooled receive buffer, put back as is
	buf  []byte
	raw  []byte // buf[:n]

	req *protocol.Request
	h   router.Handler
	res *protocol.Response
	out []byte

	state State
	sent  int
	err   error
	stack []byte
}

// fail records err for the current state and stops the machine
func (s *session) fail(err error) stateFunc {
	s.err = err
	return nil
}
