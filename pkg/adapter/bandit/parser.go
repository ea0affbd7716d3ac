package bandit

import (
	"strconv"
	"strings"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/jsonutil"
	"github.com/scanforge/scanforge/pkg/regexcache"
)

type report struct {
	Results []jsonutil.RawMessage `json:"results"`
	Errors  []struct {
		Filename string `json:"filename"`
		Reason   string `json:"reason"`
	} `json:"errors"`
}

type result struct {
	Filename   string `json:"filename"`
	TestID     string `json:"test_id"`
	TestName   string `json:"test_name"`
	Severity   string `json:"issue_severity"`
	Confidence string `json:"issue_confidence"`
	Text       string `json:"issue_text"`
	LineNumber int    `json:"line_number"`
	LineRange  []int  `json:"line_range"`
	Code       string `json:"code"`
	MoreInfo   string `json:"more_info"`
	CWE        struct {
		ID   int    `json:"id"`
		Link string `json:"link"`
	} `json:"issue_cwe"`
}

// categories maps bandit test ids onto finding categories.
var categories = map[string]string{
	"B608": finding.CategorySQLInjection,
	"B610": finding.CategorySQLInjection,
	"B611": finding.CategorySQLInjection,
	"B602": finding.CategoryCommandInjection,
	"B603": finding.CategoryCommandInjection,
	"B604": finding.CategoryCommandInjection,
	"B605": finding.CategoryCommandInjection,
	"B606": finding.CategoryCommandInjection,
	"B607": finding.CategoryCommandInjection,
	"B609": finding.CategoryCommandInjection,
	"B307": finding.CategoryCommandInjection,
	"B105": finding.CategoryHardcodedSecret,
	"B106": finding.CategoryHardcodedSecret,
	"B107": finding.CategoryHardcodedSecret,
	"B301": finding.CategoryDeserialization,
	"B302": finding.CategoryDeserialization,
	"B506": finding.CategoryDeserialization,
	"B303": finding.CategoryInsecureCrypto,
	"B304": finding.CategoryInsecureCrypto,
	"B305": finding.CategoryInsecureCrypto,
	"B324": finding.CategoryInsecureCrypto,
	"B501": finding.CategoryInsecureCrypto,
	"B502": finding.CategoryInsecureCrypto,
	"B201": finding.CategoryMisconfiguration,
	"B104": finding.CategoryMisconfiguration,
	"B701": finding.CategoryXSS,
	"B702": finding.CategoryXSS,
	"B703": finding.CategoryXSS,
}

// Parse converts bandit JSON into findings. root is used to relativize
// absolute file names.
func Parse(data []byte, root string) ([]finding.Finding, error) {
	var rep report
	if err := jsonutil.UnmarshalLenient(data, &rep); err != nil {
		return nil, adapter.Undecodable(Name, err)
	}
	c := adapter.NewCollector(Name)
	adapter.DecodeEach(c, rep.Results, func(r result) []finding.Finding {
		return []finding.Finding{convert(r, root)}
	})
	return c.Result()
}

func convert(r result, root string) finding.Finding {
	sev, _ := finding.ParseSeverity(r.Severity)
	category, ok := categories[r.TestID]
	if !ok {
		category = finding.CategoryOther
	}
	lineEnd := r.LineNumber
	if n := len(r.LineRange); n > 0 && r.LineRange[n-1] > lineEnd {
		lineEnd = r.LineRange[n-1]
	}
	f := finding.Finding{
		Scanner:    Name,
		Kind:       finding.KindCode,
		RuleID:     r.TestID,
		Category:   category,
		Severity:   sev,
		Title:      r.TestName,
		Message:    r.Text,
		FilePath:   adapter.CleanPath(root, r.Filename),
		LineStart:  r.LineNumber,
		LineEnd:    lineEnd,
		Snippet:    adapter.Snippet(stripLineNumbers(r.Code), defaults.SnippetMaxLen),
		Confidence: strings.ToLower(r.Confidence),
		CVEIDs:     finding.ExtractCVEs(r.Text),
		RawFields: map[string]any{
			"test_name": r.TestName,
			"more_info": r.MoreInfo,
		},
	}
	if r.CWE.ID > 0 {
		f.CWEIDs = []string{"CWE-" + strconv.Itoa(r.CWE.ID)}
	}
	return f
}

// stripLineNumbers removes the "NN " prefix bandit puts on each code line.
func stripLineNumbers(code string) string {
	re := regexcache.MustGet(`(?m)^\d+\s?`)
	return re.ReplaceAllString(code, "")
}
