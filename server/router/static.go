package router

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/kfcemployee/tinyhttpd/server/protocol"
)

var ErrStaticUnavailable = errors.New("static file unavailable")

var notFoundBody = []byte("<html><body><h1>404 Not Found</h1></body></html>")

// Static serves files from one root dir when no route matched
type Static struct {
	root string
}

func NewStatic(root string) *Static {
	return &Static{root: root}
}

// File maps a url path into the root and reads the whole file.
// the path is cleaned as an absolute slash path first, so ".." stops at the root.
func (s *Static) File(urlPath string) ([]byte, error) {
	rel := path.Clean("/" + urlPath)
	name := filepath.Join(s.root, filepath.FromSlash(rel))

	fi, err := os.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaticUnavailable, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrStaticUnavailable, rel)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaticUnavailable, err)
	}
	return data, nil
}

// Serve never fails: 200 with file bytes and a derived type, or the fixed 404 page
func (s *Static) Serve(req *protocol.Request) *protocol.Response {
	data, err := s.File(req.Path)
	if err != nil {
		return protocol.NewResponse(404, notFoundBody).WithContentType(protocol.TypeHTML)
	}
	return protocol.NewResponse(200, data)
}
