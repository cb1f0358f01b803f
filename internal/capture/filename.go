package capture

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Filename derives the deterministic screenshot name for the item at index.
// The pattern is NNN_host_path.png, e.g. 003_example.com_pricing_team.png;
// the path segment collapses to "root" for the site root. The same (index,
// URL) pair always yields the same name.
func Filename(index int, pageURL string) string {
	host := "unknown"
	pathPart := "root"
	if u, err := url.Parse(pageURL); err == nil {
		if h := u.Hostname(); h != "" {
			host = invalidFilenameChars.ReplaceAllString(h, "_")
		}
		if p := strings.Trim(u.EscapedPath(), "/"); p != "" {
			pathPart = invalidFilenameChars.ReplaceAllString(p, "_")
		}
	}
	const maxPathPart = 80
	if len(pathPart) > maxPathPart {
		pathPart = pathPart[:maxPathPart]
	}
	return fmt.Sprintf("%03d_%s_%s.png", index, host, pathPart)
}
