package tools

import (
	"context"
	"regexp"
	"strings"

	"github.com/neuralhub/neuralhub/internal/auth"
)

var driveLetter = regexp.MustCompile(`^([a-zA-Z]):[\\/]`)

// handleTranslatePath converts a path between notation styles so agents on
// different hosts can exchange file locations. Pure string translation, no
// filesystem access.
func (d *Dispatcher) handleTranslatePath(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	path := strArg(args, "path")
	posix := toPosix(path)
	windows := toWindows(path)
	fileURL := "file://" + posix

	switch strArg(args, "style") {
	case "posix":
		return map[string]any{"original": path, "translated": posix, "style": "posix"}, nil
	case "windows":
		return map[string]any{"original": path, "translated": windows, "style": "windows"}, nil
	case "fileurl":
		return map[string]any{"original": path, "translated": fileURL, "style": "fileurl"}, nil
	default:
		return map[string]any{
			"original": path,
			"posix":    posix,
			"windows":  windows,
			"fileUrl":  fileURL,
		}, nil
	}
}

// toPosix rewrites a Windows path as a POSIX one: drive letters become a
// leading /<letter> segment, backslashes become slashes.
func toPosix(path string) string {
	out := path
	if m := driveLetter.FindStringSubmatch(out); m != nil {
		out = "/" + strings.ToLower(m[1]) + "/" + out[len(m[0]):]
	}
	return strings.ReplaceAll(out, `\`, "/")
}

// toWindows rewrites a POSIX path as a Windows one; a leading /<letter>/
// segment becomes a drive letter.
func toWindows(path string) string {
	out := toPosix(path)
	if len(out) >= 3 && out[0] == '/' && out[2] == '/' {
		out = strings.ToUpper(string(out[1])) + ":" + out[2:]
	}
	return strings.ReplaceAll(out, "/", `\`)
}
