package finding

// Kind classifies what a scanner inspected. It decides which enrichers
// apply: reachability only makes sense for dependency findings, and is
// never meaningful for container images.
type Kind string

const (
	KindCode       Kind = "code"       // SAST on first-party source
	KindDependency Kind = "dependency" // vulnerable third-party package
	KindContainer  Kind = "container"  // OS or image layer package
	KindSecret     Kind = "secret"     // hardcoded credential
	KindConfig     Kind = "config"     // IaC or config misconfiguration
	KindDynamic    Kind = "dynamic"    // DAST against a running target
)

// Common categories. Adapters may emit others; these are the ones the
// PoC generator and the false-positive rules know by name.
const (
	CategorySQLInjection     = "sql-injection"
	CategoryXSS              = "xss"
	CategoryCommandInjection = "command-injection"
	CategoryPathTraversal    = "path-traversal"
	CategoryHardcodedSecret  = "hardcoded-secret"
	CategoryVulnerableDep    = "vulnerable-dependency"
	CategoryMisconfiguration = "misconfiguration"
	CategoryInsecureCrypto   = "insecure-crypto"
	CategoryDeserialization  = "insecure-deserialization"
	CategoryOther            = "other"
)
