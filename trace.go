// trace.go - Category-gated tracing for shim and subsystem activity
//
// Tracing is advisory and never on the correctness path: a disabled
// category costs one map lookup.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	traceOut        io.Writer = os.Stderr
	traceCategories           = map[string]bool{}
	traceAll        bool
)

// traceInit enables the comma-separated categories, e.g.
// "shim,ddraw,user32". "*" enables everything.
func traceInit(spec string) {
	for _, cat := range strings.Split(spec, ",") {
		cat = strings.TrimSpace(cat)
		if cat == "" {
			continue
		}
		if cat == "*" {
			traceAll = true
			continue
		}
		traceCategories[cat] = true
	}
}

// traceEnabled reports whether a category is being traced.
func traceEnabled(cat string) bool {
	return traceAll || traceCategories[cat]
}

// tracef emits one trace line if the category is enabled.
func tracef(cat string, format string, args ...any) {
	if !traceEnabled(cat) {
		return
	}
	fmt.Fprintf(traceOut, "[%s] %s\n", cat, fmt.Sprintf(format, args...))
}
