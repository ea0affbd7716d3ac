package finding

import (
	"sort"
	"testing"

	"github.com/scanforge/scanforge/pkg/jsonutil"
)

func TestSeverityIsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s    Severity
		want bool
	}{
		{Critical, true},
		{High, true},
		{Medium, true},
		{Low, true},
		{Info, true},
		{"Unknown", false},
		{"", false},
		{"CRITICAL", false}, // case-sensitive
	}
	for _, tt := range tests {
		t.Run(string(tt.s), func(t *testing.T) {
			t.Parallel()
			if got := tt.s.IsValid(); got != tt.want {
				t.Errorf("Severity(%q).IsValid() = %v, want %v", tt.s, got, tt.want)
			}
		})
	}
}

func TestSeverityScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s    Severity
		want int
	}{
		{Critical, 5},
		{High, 4},
		{Medium, 3},
		{Low, 2},
		{Info, 1},
		{"Unknown", 0},
	}
	for _, tt := range tests {
		if got := tt.s.Score(); got != tt.want {
			t.Errorf("Severity(%q).Score() = %d, want %d", tt.s, got, tt.want)
		}
	}
}

func TestSeveritySortOrder(t *testing.T) {
	t.Parallel()

	input := []Severity{Low, Critical, Medium, Info, High}
	sort.Slice(input, func(i, j int) bool {
		return input[i].Score() > input[j].Score()
	})
	expected := []Severity{Critical, High, Medium, Low, Info}
	for i, s := range input {
		if s != expected[i] {
			t.Errorf("pos %d: got %s, want %s", i, s, expected[i])
		}
	}
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   Severity
		wantOK bool
	}{
		{"CRITICAL", Critical, true},
		{"High", High, true},
		{"moderate", Medium, true},
		{"WARNING", Medium, true},
		{"low", Low, true},
		{"UNKNOWN", Info, true},
		{"informational", Info, true},
		{"bogus", Info, false},
		{"", Info, false},
	}
	for _, tt := range tests {
		got, ok := ParseSeverity(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseSeverity(%q) = (%s, %v), want (%s, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMax(t *testing.T) {
	t.Parallel()
	if got := Max(High, Critical); got != Critical {
		t.Errorf("Max(high, critical) = %s", got)
	}
	if got := Max(Medium, Low); got != Medium {
		t.Errorf("Max(medium, low) = %s", got)
	}
}

func TestSeverityJSON(t *testing.T) {
	t.Parallel()

	data, err := jsonutil.Marshal(Critical)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"critical"` {
		t.Errorf("got %s, want %q", data, "critical")
	}
}
