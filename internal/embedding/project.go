package embedding

import (
	"fmt"
	"strings"
	"time"

	"github.com/bhaveshbhatkar/AISecurityLog/internal/parser"
)

const maxUserAgentLen = 100

// ProjectText renders a record into the canonical pipe-delimited text used
// for embedding. The rendering is deterministic and stable across runs:
// segments for absent fields are omitted entirely, never replaced with
// placeholders.
//
// Example: "2024-01-15T10:30:45Z | IP:192.168.1.1 | GET /api/users 200 | UA:Mozilla/5.0"
func ProjectText(rec *parser.Record) string {
	var parts []string

	if rec.Timestamp != nil {
		parts = append(parts, rec.Timestamp.Format(time.RFC3339))
	}

	if rec.SrcIP != "" {
		parts = append(parts, "IP:"+rec.SrcIP)
	}

	method := rec.Method
	if method == "" {
		method = "UNKNOWN"
	}
	url := rec.URL
	if url == "" {
		url = "/"
	}
	status := 0
	if rec.Status != nil {
		status = *rec.Status
	}
	parts = append(parts, fmt.Sprintf("%s %s %d", method, url, status))

	if rec.UserAgent != "" {
		ua := rec.UserAgent
		if len(ua) > maxUserAgentLen {
			ua = ua[:maxUserAgentLen]
		}
		parts = append(parts, "UA:"+ua)
	}

	if rec.Username != "" {
		parts = append(parts, "User:"+rec.Username)
	}

	return strings.Join(parts, " | ")
}
