package router

import (
	"github.com/kfcemployee/tinyhttpd/server/protocol"
)

// Handler turns a request into a response.
// a returned error aborts the connection without a response.
type Handler func(req *protocol.Request) (*protocol.Response, error)
