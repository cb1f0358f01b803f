package urlnorm

import "strings"

// hostBlocklist matches hostnames against exact entries and suffix wildcards.
// "*.example.com" and ".example.com" both mean the domain and any subdomain.
type hostBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostBlocklist(patterns []string) *hostBlocklist {
	bl := &hostBlocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		entry := strings.TrimSpace(strings.ToLower(raw))
		if entry == "" {
			continue
		}
		if suffix, ok := wildcardSuffix(entry); ok {
			bl.addSuffix(suffix)
			continue
		}
		bl.exact[entry] = struct{}{}
	}
	if len(bl.exact) == 0 && len(bl.suffixes) == 0 {
		return nil
	}
	return bl
}

func wildcardSuffix(entry string) (string, bool) {
	switch {
	case strings.HasPrefix(entry, "*."):
		return strings.TrimPrefix(entry, "*."), true
	case strings.HasPrefix(entry, "."):
		return strings.TrimPrefix(entry, "."), true
	default:
		return "", false
	}
}

func (b *hostBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// Blocked reports whether host matches any blocklist entry. A nil blocklist
// never blocks.
func (b *hostBlocklist) Blocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
