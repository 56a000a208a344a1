package api

import (
	"fmt"
	"io"
	"strings"

	"github.com/gorilla/mux"
)

// WriteRoutes walks through all routes registered in the router and writes
// one "METHOD<TAB>PATH" line per route
func WriteRoutes(w io.Writer, r *mux.Router) error {
	return r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return nil // Skip routes without templates
		}
		if route.GetHandler() == nil {
			return nil // Subrouter prefixes
		}

		methods, err := route.GetMethods()
		methodStr := "ANY"
		if err == nil && len(methods) > 0 {
			methodStr = strings.Join(methods, ",")
		}

		_, err = fmt.Fprintf(w, "%s\t%s\n", methodStr, pathTemplate)
		return err
	})
}
