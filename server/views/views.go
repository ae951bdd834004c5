// Package views holds the demo pages served by tinyhttpd.
package views

import (
	"bytes"
	"embed"
	"html/template"
	"sort"
	"time"

	"github.com/kfcemployee/tinyhttpd/server/protocol"
	"github.com/kfcemployee/tinyhttpd/server/router"
)

//go:embed templates/*.html
var files embed.FS

var templates = template.Must(template.ParseFS(files, "templates/*.html"))

var methodNotAllowed = []byte("<html><body><h1>405 Method Not Allowed</h1></body></html>")

// Registrar is anything routes can be added to, server.Server satisfies it
type Registrar interface {
	Handle(pattern string, h router.Handler) error
}

// Pages renders the demo views, now is the clock used by /now
type Pages struct {
	now func() time.Time
}

func New(now func() time.Time) *Pages {
	if now == nil {
		now = time.Now
	}
	return &Pages{now: now}
}

// Register adds every view in match order
func (p *Pages) Register(r Registrar) error {
	routes := []struct {
		pattern string
		h       router.Handler
	}{
		{"/now", p.Now},
		{"/show_request", p.ShowRequest},
		{"/parameters", p.Parameters},
		{"/user/<user_id>/profile", p.UserProfile},
	}
	for _, rt := range routes {
		if err := r.Handle(rt.pattern, rt.h); err != nil {
			return err
		}
	}
	return nil
}

// Register adds the views with the wall clock
func Register(r Registrar) error {
	return New(nil).Register(r)
}

func (p *Pages) Now(req *protocol.Request) (*protocol.Response, error) {
	return render("now.html", struct{ Now string }{
		Now: p.now().Format("2006-01-02 15:04:05.000000"),
	})
}

type pair struct {
	Name  string
	Value string
}

// ShowRequest echoes the request line, headers and body
func (p *Pages) ShowRequest(req *protocol.Request) (*protocol.Response, error) {
	headers := make([]pair, 0, len(req.Headers))
	for k, v := range req.Headers {
		headers = append(headers, pair{k, v})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Name < headers[j].Name })

	return render("show_request.html", struct {
		Method, Target, Protocol string
		Headers                  []pair
		Body                     string
	}{
		Method:   req.Method,
		Target:   req.Target,
		Protocol: req.Protocol,
		Headers:  headers,
		Body:     string(bytes.ToValidUTF8(req.Body, nil)),
	})
}

type param struct {
	Name   string
	Values []string
}

// Parameters dumps a urlencoded POST body, other methods get 405
func (p *Pages) Parameters(req *protocol.Request) (*protocol.Response, error) {
	if req.Method != "POST" {
		return protocol.NewResponse(405, methodNotAllowed).WithContentType(protocol.TypeHTML), nil
	}

	// bad pairs are skipped, the rest is still shown
	form, _ := req.Form()
	params := make([]param, 0, len(form))
	for k, vs := range form {
		params = append(params, param{k, vs})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })

	return render("parameters.html", struct{ Params []param }{params})
}

func (p *Pages) UserProfile(req *protocol.Request) (*protocol.Response, error) {
	return render("user_profile.html", struct{ UserID string }{req.Param("user_id")})
}

func render(name string, data any) (*protocol.Response, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return protocol.NewResponse(200, buf.Bytes()).WithContentType(protocol.TypeHTML), nil
}
