package model

// Status is the outcome of enriching one record.
type Status string

const (
	StatusEnriched   Status = "enriched"
	StatusUnenriched Status = "unenriched"
)

// Reason explains an unenriched record or a missing staff list.
type Reason string

const (
	ReasonNotFound     Reason = "not_found"
	ReasonRateLimited  Reason = "rate_limited"
	ReasonNetworkError Reason = "network_error"
	ReasonError        Reason = "error"
	ReasonNoIdentity   Reason = "no_identity" // no name or EIN to search with
)

// Strategy records which query priority produced a match.
type Strategy string

const (
	StrategyEIN          Strategy = "ein"
	StrategyNameLocation Strategy = "name_location"
	StrategyName         Strategy = "name"
)

// MatchCandidate is one organization returned by a nonprofit search.
type MatchCandidate struct {
	EIN            string   `json:"ein"`
	Name           string   `json:"name"`
	SubName        string   `json:"sub_name,omitempty"`
	City           string   `json:"city,omitempty"`
	State          string   `json:"state,omitempty"`
	NTEECode       string   `json:"ntee_code,omitempty"`
	SubsectionCode int      `json:"subsection_code,omitempty"`
	Strategy       Strategy `json:"strategy,omitempty"`
}

// Organization is the filing-level profile of a matched nonprofit.
type Organization struct {
	EIN            string  `json:"ein"`
	Name           string  `json:"name"`
	CareOf         string  `json:"care_of,omitempty"`
	Address        string  `json:"address,omitempty"`
	City           string  `json:"city,omitempty"`
	State          string  `json:"state,omitempty"`
	Zipcode        string  `json:"zipcode,omitempty"`
	NTEECode       string  `json:"ntee_code,omitempty"`
	SubsectionCode int     `json:"subsection_code,omitempty"`
	RulingDate     string  `json:"ruling_date,omitempty"`
	RevenueAmount  float64 `json:"revenue_amount,omitempty"`
	IncomeAmount   float64 `json:"income_amount,omitempty"`
	AssetAmount    float64 `json:"asset_amount,omitempty"`
	LatestFiling   *Filing `json:"latest_filing,omitempty"`
}

// Filing summarizes one Form 990 filing.
type Filing struct {
	TaxPeriod        int     `json:"tax_period"`
	TaxYear          int     `json:"tax_year"`
	FormType         int     `json:"form_type"`
	PDFURL           string  `json:"pdf_url,omitempty"`
	TotalRevenue     float64 `json:"total_revenue,omitempty"`
	TotalExpenses    float64 `json:"total_expenses,omitempty"`
	TotalAssets      float64 `json:"total_assets,omitempty"`
	TotalLiabilities float64 `json:"total_liabilities,omitempty"`
}

// StaffMember is one person listed on an organization's website.
type StaffMember struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// EnrichmentResult holds everything discovered for one record. Nil or empty
// fields mean "not found", not "error".
type EnrichmentResult struct {
	Status       Status          `json:"status"`
	Reason       Reason          `json:"reason,omitempty"`
	Match        *MatchCandidate `json:"match,omitempty"`
	Organization *Organization   `json:"organization,omitempty"`
	Staff        []StaffMember   `json:"staff,omitempty"`
	SourceURL    string          `json:"source_url,omitempty"`
	StaffReason  Reason          `json:"staff_reason,omitempty"`
}

// Unenriched returns a result marking the record as not enriched.
func Unenriched(reason Reason) EnrichmentResult {
	return EnrichmentResult{Status: StatusUnenriched, Reason: reason}
}
