package models

import (
	"sort"
	"strings"
)

// Message is one email as returned by the mail proxy.
type Message struct {
	Snippet string            `json:"snippet"`
	Headers map[string]string `json:"headers"`
}

// Header returns the value of the named header, matching the name case-insensitively.
// An exact key wins; otherwise the first case-insensitive match in sorted key order.
func (m Message) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for _, k := range m.HeaderNames() {
		if strings.EqualFold(k, name) {
			return m.Headers[k]
		}
	}
	return ""
}

// HeaderNames returns the header keys in sorted order.
func (m Message) HeaderNames() []string {
	names := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
