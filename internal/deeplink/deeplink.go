// Package deeplink builds the query-string URLs that hand collected form data
// off to the marketplace app.
package deeplink

import (
	"net/url"
	"strings"

	"github.com/harvestflow/harvestflow/internal/models"
)

// Encode renders baseURL plus the collected data as a deep-link URL.
//
// Parameters appear in collection order. Keys have underscores rewritten to
// hyphens before escaping so they match the app's form parameter names.
// Values are trimmed; entries whose trimmed value is empty are left out of the
// query string entirely (they still count as answered upstream). Both sides
// use query-component escaping with space encoded as "+".
//
// With no data the result is baseURL with a single trailing "?" so the
// consumer can distinguish "form started" from a bare route. Pure and
// idempotent for identical inputs.
func Encode(baseURL string, data models.CollectedData) string {
	prefix := baseURL
	if !strings.HasSuffix(prefix, "?") {
		prefix += "?"
	}

	var sb strings.Builder
	for _, fv := range data {
		value := strings.TrimSpace(fv.Value)
		if value == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(strings.ReplaceAll(fv.Key, "_", "-")))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(value))
	}
	return prefix + sb.String()
}
