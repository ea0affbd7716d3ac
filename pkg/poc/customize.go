package poc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/jsonutil"
	"github.com/scanforge/scanforge/pkg/strutil"
)

var errNoJSON = errors.New("poc: no JSON object in reply")

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

func buildPrompt(f finding.Finding) string {
	var b strings.Builder
	b.WriteString("You are a security engineer writing a proof-of-concept for a vulnerability.\n")
	b.WriteString("Extract the parameters needed to exercise it.\n\n")
	fmt.Fprintf(&b, "Vulnerability: %s\n", firstNonEmpty(f.Title, f.Message, f.RuleID))
	fmt.Fprintf(&b, "Category: %s\n", f.Category)
	fmt.Fprintf(&b, "File: %s:%d\n", f.FilePath, f.LineStart)
	if f.Snippet != "" {
		fmt.Fprintf(&b, "Code:\n```\n%s\n```\n", strutil.Truncate(f.Snippet, defaults.SnippetMaxLen))
	}
	b.WriteString(`
Reply with one JSON object and nothing else:
{"target_url": "probable endpoint, default http://localhost:8000/",
 "param_name": "vulnerable parameter, e.g. id",
 "payload": "a non-destructive test payload",
 "method": "GET or POST",
 "notes": "one sentence"}
`)
	return b.String()
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// parseReply decodes the completion, tolerating code fences and prose
// around the object.
func parseReply(reply string) (Params, error) {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:] // drop the info string, e.g. "json"
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return Params{}, errNoJSON
	}
	var p Params
	if err := jsonutil.UnmarshalLenient([]byte(s[start:end+1]), &p); err != nil {
		return Params{}, fmt.Errorf("poc: decode reply: %w", err)
	}
	return p, nil
}

// merge overlays the usable fields of reply on base.
func merge(base, reply Params, logger *slog.Logger) Params {
	out := base
	if u := strings.TrimSpace(reply.TargetURL); u != "" {
		if pu, err := url.Parse(u); err == nil && (pu.Scheme == "http" || pu.Scheme == "https") && pu.Host != "" {
			out.TargetURL = u
		} else {
			logger.Debug("ignoring LLM target_url", slog.String("target_url", u))
		}
	}
	if p := strings.TrimSpace(reply.ParamName); p != "" {
		out.ParamName = p
	}
	if reply.Payload != "" {
		out.Payload = reply.Payload
	}
	if m := strings.ToUpper(strings.TrimSpace(reply.Method)); allowedMethods[m] {
		out.Method = m
	}
	out.Notes = strings.TrimSpace(reply.Notes)
	return out
}

// customize asks the completer for parameters. Any failure keeps base.
func (g *Generator) customize(ctx context.Context, f finding.Finding, base Params) (Params, bool) {
	reply, err := g.completer.Complete(ctx, buildPrompt(f))
	if err != nil {
		g.logger.Warn("LLM customization failed, using plain template",
			slog.String("finding", f.ID),
			slog.String("error", err.Error()))
		return base, false
	}
	p, err := parseReply(reply)
	if err != nil {
		g.logger.Warn("LLM reply unparseable, using plain template",
			slog.String("finding", f.ID),
			slog.String("error", err.Error()))
		return base, false
	}
	return merge(base, p, g.logger), true
}
