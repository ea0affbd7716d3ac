package poc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/llm"
	"github.com/scanforge/scanforge/pkg/safety"
)

func newGenerator(t *testing.T, opts Options) *Generator {
	t.Helper()
	g, err := New(opts)
	require.NoError(t, err)
	return g
}

func replying(reply string, err error) llm.Completer {
	return llm.CompleterFunc(func(context.Context, string) (string, error) {
		return reply, err
	})
}

func sqliFinding() finding.Finding {
	return finding.Finding{
		ID:        "semgrep-sqli-1",
		Scanner:   "semgrep",
		RuleID:    "python.sqlalchemy.raw-query",
		Category:  finding.CategorySQLInjection,
		Severity:  finding.High,
		Title:     "SQL injection via string formatting",
		FilePath:  "app/db.py",
		LineStart: 42,
		Snippet:   `db.execute("SELECT * FROM users WHERE id = %s" % uid)`,
	}
}

func TestGeneratePlainTemplate(t *testing.T) {
	g := newGenerator(t, Options{})

	art, err := g.Generate(context.Background(), sqliFinding())
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, art.State)
	assert.Equal(t, []State{StateSelected, StateTemplateLookup, StateSafetyCheck, StateAccepted}, art.Path)
	assert.Equal(t, "sqli.py", art.FileName)
	assert.False(t, art.Customized)
	assert.Contains(t, art.Content, `TARGET_URL = "http://localhost:8000"`)
	assert.Contains(t, art.Content, `PARAM = "id"`)
	assert.Contains(t, art.Content, `PAYLOAD = "' OR '1'='1"`)
	assert.Contains(t, art.Content, "# Location: app/db.py:42")
	assert.Empty(t, art.Substitutions)
}

func TestEveryTemplateRendersSafely(t *testing.T) {
	g := newGenerator(t, Options{})
	for _, cat := range []string{"sql-injection", "xss", "command-injection", "path-traversal"} {
		t.Run(cat, func(t *testing.T) {
			f := sqliFinding()
			f.Category = cat
			art, err := g.Generate(context.Background(), f)
			require.NoError(t, err)
			assert.Equal(t, StateAccepted, art.State)
			assert.NotContains(t, art.Content, "{{")
			assert.NotContains(t, art.Content, "<no value>")
		})
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		f    finding.Finding
		want string
		ok   bool
	}{
		{"category", finding.Finding{Category: "sql-injection"}, "sqli.py", true},
		{"alias underscore", finding.Finding{Category: "Cross_Site_Scripting"}, "xss.html", true},
		{"rce", finding.Finding{Category: "rce"}, "cmdi.sh", true},
		{"traversal", finding.Finding{Category: "path-traversal"}, "traversal.py", true},
		{"cwe fallback", finding.Finding{Category: "other", CWEIDs: []string{"CWE-78: OS Command Injection"}}, "cmdi.sh", true},
		{"secret", finding.Finding{Category: "hardcoded-secret", CWEIDs: []string{"CWE-798"}}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, ok := Lookup(tt.f)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, k.Template)
		})
	}
}

func TestGenerateUnsupported(t *testing.T) {
	called := false
	g := newGenerator(t, Options{Completer: llm.CompleterFunc(func(context.Context, string) (string, error) {
		called = true
		return "", nil
	})})
	f := sqliFinding()
	f.Category = finding.CategoryHardcodedSecret

	art, err := g.Generate(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, StateUnsupported, art.State)
	assert.Equal(t, []State{StateSelected, StateTemplateLookup, StateUnsupported}, art.Path)
	assert.Empty(t, art.Content)
	assert.False(t, called, "no LLM call without a template")
	assert.False(t, g.Supported(f))
}

func TestGenerateLLMCustomized(t *testing.T) {
	reply := "```json\n" + `{"target_url": "http://localhost:5000/users", "param_name": "uid",
"payload": "1 OR 1=1", "method": "post", "notes": "uid reaches raw SQL"}` + "\n```"
	var prompt string
	g := newGenerator(t, Options{Completer: llm.CompleterFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return reply, nil
	})})

	art, err := g.Generate(context.Background(), sqliFinding())
	require.NoError(t, err)
	assert.True(t, art.Customized)
	assert.Equal(t, []State{StateSelected, StateTemplateLookup, StateLLMCustomize, StateSafetyCheck, StateAccepted}, art.Path)
	assert.Equal(t, Params{
		TargetURL: "http://localhost:5000/users",
		ParamName: "uid",
		Payload:   "1 OR 1=1",
		Method:    "POST",
		Notes:     "uid reaches raw SQL",
	}, art.Params)
	assert.Contains(t, art.Content, `METHOD = "POST"`)
	assert.Contains(t, prompt, "SQL injection via string formatting")
	assert.Contains(t, prompt, "app/db.py:42")
}

func TestGenerateLLMFallback(t *testing.T) {
	tests := map[string]llm.Completer{
		"error":       replying("", errors.New("connection refused")),
		"unparseable": replying("I cannot help with that.", nil),
		"bad json":    replying("{target_url: nope", nil),
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			g := newGenerator(t, Options{Completer: c})
			art, err := g.Generate(context.Background(), sqliFinding())
			require.NoError(t, err)
			assert.Equal(t, StateAccepted, art.State)
			assert.False(t, art.Customized)
			assert.Contains(t, art.Path, StateLLMCustomize)
			assert.Equal(t, "http://localhost:8000", art.Params.TargetURL)
			assert.Contains(t, art.Content, `PAYLOAD = "' OR '1'='1"`)
		})
	}
}

func TestGenerateLLMUnusableFieldsIgnored(t *testing.T) {
	g := newGenerator(t, Options{Completer: replying(
		`{"target_url": "javascript:alert(1)", "method": "TRACE", "param_name": " q "}`, nil)})

	art, err := g.Generate(context.Background(), sqliFinding())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", art.Params.TargetURL)
	assert.Equal(t, "GET", art.Params.Method)
	assert.Equal(t, "q", art.Params.ParamName)
}

func TestGenerateDropTableNeverReturned(t *testing.T) {
	g := newGenerator(t, Options{Completer: replying(`{"payload": "1'; DROP TABLE users; --"}`, nil)})

	art, err := g.Generate(context.Background(), sqliFinding())
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, art.State)
	assert.NotContains(t, strings.ToUpper(art.Content), "DROP TABLE")
	assert.Contains(t, art.Content, `PAYLOAD = "1'; SELECT 1; --"`)
	require.Len(t, art.Substitutions, 1)
	assert.Equal(t, "drop-table", art.Substitutions[0].Rule)
}

func TestGenerateQuotedDropTableNeverReturned(t *testing.T) {
	replies := map[string]string{
		"quoted name": `{"payload": "1'; DROP TABLE 'users'; --"}`,
		"no name":     `{"payload": "1'; DROP TABLE; --"}`,
		"truncate":    `{"payload": "1'; truncate table [audit]; --"}`,
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			g := newGenerator(t, Options{Completer: replying(reply, nil)})

			art, err := g.Generate(context.Background(), sqliFinding())
			require.NoError(t, err)
			assert.Equal(t, StateAccepted, art.State)
			upper := strings.ToUpper(art.Content)
			assert.NotContains(t, upper, "DROP TABLE")
			assert.NotContains(t, upper, "TRUNCATE TABLE")
			assert.Contains(t, art.Content, `PAYLOAD = "1'; SELECT 1; --"`)
			require.Len(t, art.Substitutions, 1)
		})
	}
}

func TestGenerateRejected(t *testing.T) {
	g := newGenerator(t, Options{Completer: replying(`{"payload": "; shutdown -h now"}`, nil)})
	f := sqliFinding()
	f.Category = finding.CategoryCommandInjection

	art, err := g.Generate(context.Background(), f)
	var v *safety.Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "shutdown", v.Hits[0].Rule)
	assert.Equal(t, StateRejected, art.State)
	assert.Empty(t, art.Content)
	assert.Equal(t, []State{StateSelected, StateTemplateLookup, StateLLMCustomize, StateSafetyCheck, StateRejected}, art.Path)
}

func TestGenerateXSSWarnsAndEscapes(t *testing.T) {
	g := newGenerator(t, Options{})
	f := sqliFinding()
	f.Category = finding.CategoryXSS

	art, err := g.Generate(context.Background(), f)
	require.NoError(t, err)
	assert.Contains(t, art.Content, `value="&lt;script&gt;alert(document.domain)&lt;/script&gt;"`)
	require.NotEmpty(t, art.Warnings)
	assert.Equal(t, "script-tag", art.Warnings[0].Rule)
}

func TestCustomTemplates(t *testing.T) {
	fsys := fstest.MapFS{
		"poc/sqli.py.tmpl":      {Data: []byte("cleanup = 'TRUNCATE TABLE {{ .param_name }}'\n")},
		"poc/cmdi.sh.tmpl":      {Data: []byte("mkfs.ext4 /dev/sdz\n")},
		"poc/xss.html.tmpl":     {Data: []byte("{{ .payload }}")},
		"poc/traversal.py.tmpl": {Data: []byte("{{ .payload }}")},
	}
	g := newGenerator(t, Options{Templates: fsys})

	art, err := g.Generate(context.Background(), sqliFinding())
	require.NoError(t, err)
	assert.Equal(t, "cleanup = 'SELECT 1'\n", art.Content)

	f := sqliFinding()
	f.Category = "command-injection"
	_, err = g.Generate(context.Background(), f)
	var v *safety.Violation
	assert.ErrorAs(t, err, &v)
}

func TestNewRejectsBrokenTemplate(t *testing.T) {
	_, err := New(Options{Templates: fstest.MapFS{
		"poc/sqli.py.tmpl": {Data: []byte("{{ .payload ")},
	}})
	assert.Error(t, err)
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		payload string
		wantErr bool
	}{
		{"plain", `{"payload": "a"}`, "a", false},
		{"fenced json", "```json\n{\"payload\": \"b\"}\n```", "b", false},
		{"fenced bare", "```\n{\"payload\": \"c\"}\n```", "c", false},
		{"prose around", "Here you go:\n{\"payload\": \"d\"}\nGood luck.", "d", false},
		{"no object", "sorry", "", true},
		{"broken", `{"payload": }`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parseReply(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.payload, p.Payload)
		})
	}
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, shellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
