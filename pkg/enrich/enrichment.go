package enrich

import "slices"

// KEVStatus is membership in the CISA Known Exploited Vulnerabilities
// catalog.
type KEVStatus string

const (
	KEVInCatalog    KEVStatus = "in_catalog"
	KEVNotInCatalog KEVStatus = "not_in_catalog"
	KEVUnknown      KEVStatus = "unknown"
)

// Reachability is whether the vulnerable package is actually called.
type Reachability string

const (
	Reachable     Reachability = "true"
	Unreachable   Reachability = "false"
	NotApplicable Reachability = "not_applicable"
	ReachUnknown  Reachability = "unknown"
)

// KEV carries the catalog status and, when listed, the catalog entry.
type KEV struct {
	Status            KEVStatus `json:"status"`
	CVE               string    `json:"cve,omitempty"`
	VendorProject     string    `json:"vendor_project,omitempty"`
	Product           string    `json:"product,omitempty"`
	VulnerabilityName string    `json:"vulnerability_name,omitempty"`
	DateAdded         string    `json:"date_added,omitempty"`
	DueDate           string    `json:"due_date,omitempty"`
	RequiredAction    string    `json:"required_action,omitempty"`
	RansomwareUse     string    `json:"known_ransomware_campaign_use,omitempty"`
}

// EPSS is the exploit prediction score of the highest-scoring CVE on a
// finding.
type EPSS struct {
	CVE        string  `json:"cve"`
	Score      float64 `json:"score"`
	Percentile float64 `json:"percentile"`
	Date       string  `json:"date,omitempty"`
}

// Evidence backs a reachability verdict.
type Evidence struct {
	Import    string   `json:"import"`
	CallSites []string `json:"call_sites,omitempty"` // file:line
}

// FalsePositive is a heuristic verdict.
type FalsePositive struct {
	Flag   bool   `json:"flag"`
	Reason string `json:"reason,omitempty"`
	Rule   string `json:"rule,omitempty"`
}

// Enrichment is the merged view of every enricher for one finding. Each
// enricher fills its own fields in a partial Enrichment; Merge combines
// them, so order does not matter. Unset fields read as unknown.
type Enrichment struct {
	KEV                  KEV            `json:"kev"`
	EPSS                 *EPSS          `json:"epss"`
	Reachable            Reachability   `json:"reachable"`
	ReachabilityEvidence *Evidence      `json:"reachability_evidence,omitempty"`
	FalsePositive        *FalsePositive `json:"false_positive"`
	Degraded             []string       `json:"degraded,omitempty"`
}

// Merge folds the set fields of p into e.
func (e *Enrichment) Merge(p Enrichment) {
	if p.KEV.Status != "" {
		e.KEV = p.KEV
	}
	if p.EPSS != nil {
		e.EPSS = p.EPSS
	}
	if p.Reachable != "" {
		e.Reachable = p.Reachable
	}
	if p.ReachabilityEvidence != nil {
		e.ReachabilityEvidence = p.ReachabilityEvidence
	}
	if p.FalsePositive != nil {
		e.FalsePositive = p.FalsePositive
	}
	e.Degraded = append(e.Degraded, p.Degraded...)
}

// Finalize marks every field no enricher set as unknown and sorts the
// degraded list.
func (e *Enrichment) Finalize() {
	if e.KEV.Status == "" {
		e.KEV.Status = KEVUnknown
	}
	if e.Reachable == "" {
		e.Reachable = ReachUnknown
	}
	slices.Sort(e.Degraded)
	e.Degraded = slices.Compact(e.Degraded)
}

// IsFalsePositive reports whether an enricher flagged the finding.
func (e Enrichment) IsFalsePositive() bool {
	return e.FalsePositive != nil && e.FalsePositive.Flag
}

// EPSSScore returns the score, or 0 with ok false when there is none.
func (e Enrichment) EPSSScore() (float64, bool) {
	if e.EPSS == nil {
		return 0, false
	}
	return e.EPSS.Score, true
}
