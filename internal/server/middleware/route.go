package middleware

import (
	"net/http"
	"strings"
)

// RouteAction is the resource and action derived from a route pattern.
type RouteAction struct {
	Scope    string
	Resource string
	Action   string
}

// EventType returns the telemetry event type for the route, e.g. "http.desktop.heartbeat".
func (ra RouteAction) EventType() string {
	return "http." + ra.Resource + "." + ra.Action
}

// ParseRoute derives scope, resource and action from a chi route pattern
// (e.g. POST /api/admin/desktops/{desktopAppId}/assign -> admin, desktops, assign).
// A trailing literal after a parameter is the action; otherwise the action follows the method.
func ParseRoute(method, pattern string) RouteAction {
	var segs []string
	for _, s := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if s != "" && s != "*" {
			segs = append(segs, s)
		}
	}
	if len(segs) > 0 && segs[0] == "api" {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return RouteAction{Scope: "unknown", Resource: "unknown", Action: strings.ToLower(method)}
	}
	ra := RouteAction{Scope: segs[0]}
	last := len(segs) - 1
	switch {
	case len(segs) == 1:
		ra.Resource, ra.Action = segs[0], methodToAction(method, false)
	case isParam(segs[last]):
		ra.Resource, ra.Action = segs[last-1], methodToAction(method, true)
	case isParam(segs[last-1]):
		ra.Resource, ra.Action = literalBefore(segs, last-1), segs[last]
	case method == http.MethodGet:
		ra.Resource, ra.Action = segs[last], "list"
	default:
		ra.Resource, ra.Action = segs[last-1], segs[last]
	}
	return ra
}

func isParam(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}

func literalBefore(segs []string, i int) string {
	for j := i - 1; j >= 0; j-- {
		if !isParam(segs[j]) {
			return segs[j]
		}
	}
	return "unknown"
}

func methodToAction(method string, item bool) string {
	switch method {
	case http.MethodGet:
		if item {
			return "get"
		}
		return "list"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
