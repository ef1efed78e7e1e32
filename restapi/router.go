package restapi

//
//Copyright 2018 Telenor Digital AS
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//http://www.apache.org/licenses/LICENSE-2.0
//
//Unless required by applicable law or agreed to in writing, software
//distributed under the License is distributed on an "AS IS" BASIS,
//WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//See the License for the specific language governing permissions and
//limitations under the License.
//
import (
	"context"
	"net/http"
	"strings"
)

type pathParameter string

// segment is one element of a route pattern. Parameters match any
// non-empty element and are stored in the request context.
type segment struct {
	name  string
	param bool
}

type route struct {
	segments []segment
	handler  http.HandlerFunc
}

func (r *route) match(elements []string) (map[string]string, bool) {
	if len(elements) != len(r.segments) {
		return nil, false
	}
	params := make(map[string]string)
	for i, s := range r.segments {
		switch {
		case s.param && elements[i] != "":
			params[s.name] = elements[i]
		case s.param:
			return nil, false
		case s.name != elements[i]:
			return nil, false
		}
	}
	return params, true
}

// parameterRouter routes requests on paths with parameters like
// /neighbors/{addr}. It is set up once before the server starts and isn't
// safe for concurrent modification.
type parameterRouter struct {
	routes []route
}

// AddRoute adds a handler for the pattern. Parameters are written as
// {name}.
func (p *parameterRouter) AddRoute(pattern string, handler http.HandlerFunc) {
	r := route{handler: handler}
	for _, e := range strings.Split(pattern, "/") {
		if strings.HasPrefix(e, "{") && strings.HasSuffix(e, "}") {
			r.segments = append(r.segments, segment{name: e[1 : len(e)-1], param: true})
			continue
		}
		r.segments = append(r.segments, segment{name: e})
	}
	p.routes = append(p.routes, r)
}

// GetHandler returns the handler for the URI or http.NotFound if no route
// matches. Query parameters are ignored when matching.
func (p *parameterRouter) GetHandler(uri string) http.HandlerFunc {
	path := strings.SplitN(uri, "?", 2)[0]
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	elements := strings.Split(path, "/")
	for i := range p.routes {
		params, ok := p.routes[i].match(elements)
		if !ok {
			continue
		}
		handler := p.routes[i].handler
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for k, v := range params {
				ctx = context.WithValue(ctx, pathParameter(k), v)
			}
			handler(w, r.WithContext(ctx))
		}
	}
	return http.NotFound
}

// Handler returns a http.HandlerFunc that dispatches on the request path
func (p *parameterRouter) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.GetHandler(r.URL.Path)(w, r)
	}
}

func pathParam(r *http.Request, name string) string {
	v, _ := r.Context().Value(pathParameter(name)).(string)
	return v
}
