package server

import "strings"

// systemPaths are the probe and info routes.
var systemPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/alive":   true,
	"/info":    true,
	"/version": true,
	"/metrics": true,
}

// formatHandlerName shortens Gin's handler path for display:
//
//	"github.com/kbukum/audioscribe/server.(*TranscribeRoutes).Upload-fm" -> "TranscribeRoutes.Upload"
func formatHandlerName(fullPath string) string {
	name := strings.TrimSuffix(fullPath, "-fm")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.ReplaceAll(name, "(*", "")
	name = strings.ReplaceAll(name, ")", "")

	// Closures such as "endpoint.Health.func1" are shown by their constructor.
	if strings.Contains(name, ".func") {
		parts := strings.Split(name, ".")
		for i := len(parts) - 1; i >= 0; i-- {
			if !strings.HasPrefix(parts[i], "func") {
				return strings.ToLower(parts[i])
			}
		}
	}

	if pkg, rest, ok := strings.Cut(name, "."); ok && rest != "" && strings.ToLower(pkg) == pkg {
		name = rest
	}
	return name
}

func methodOrder(method string) int {
	switch method {
	case "GET":
		return 0
	case "POST":
		return 1
	case "PUT":
		return 2
	case "PATCH":
		return 3
	case "DELETE":
		return 4
	default:
		return 5
	}
}
