package store

import (
	"fmt"
	"strings"

	"github.com/rohankatakam/elemgraph/internal/element"
)

// visible evaluates the element's visibility expression against the
// user's data auths. An expression is a "|" separated list of
// alternatives, each a "&" separated list of required labels, so
// "public|private&audit" is readable with "public" or with both "private"
// and "audit". An absent or empty expression is readable by everyone.
func (q *query) visible(e *element.Element) bool {
	if q.visibility == "" {
		return true
	}
	var expr string
	switch v := e.Properties[q.visibility].(type) {
	case nil:
		return true
	case string:
		expr = v
	case []string:
		return q.user.CanSee(v)
	default:
		expr = fmt.Sprint(v)
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}
	for _, alt := range strings.Split(expr, "|") {
		var labels []string
		for _, l := range strings.Split(alt, "&") {
			if l = strings.TrimSpace(l); l != "" {
				labels = append(labels, l)
			}
		}
		if q.user.CanSee(labels) {
			return true
		}
	}
	return false
}
