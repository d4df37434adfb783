// Package model defines the vendor directory domain types shared across
// the store, ingestion pipeline, and HTTP API.
package model

import "time"

// CompanyType classifies a company's role in the supply chain.
type CompanyType string

const (
	CompanyTypeManufacturer CompanyType = "MANUFACTURER"
	CompanyTypeDistributor  CompanyType = "DISTRIBUTOR"
	CompanyTypeBoth         CompanyType = "BOTH"
)

// CompanyStatus tracks whether a company is usable for procurement.
type CompanyStatus string

const (
	CompanyStatusActive   CompanyStatus = "ACTIVE"
	CompanyStatusLimited  CompanyStatus = "LIMITED"
	CompanyStatusInactive CompanyStatus = "INACTIVE"
)

// ContactType classifies a contact channel.
type ContactType string

const (
	ContactTypeSales       ContactType = "SALES"
	ContactTypeProcurement ContactType = "PROCUREMENT"
	ContactTypeSupport     ContactType = "SUPPORT"
	ContactTypeGeneral     ContactType = "GENERAL"
	ContactTypeQA          ContactType = "QA"
	ContactTypeRegulatory  ContactType = "REGULATORY"
)

// LinkRole describes how a company relates to a product type.
type LinkRole string

const (
	LinkRolePrimaryManufacturer   LinkRole = "PRIMARY_MANUFACTURER"
	LinkRoleAuthorizedDistributor LinkRole = "AUTHORIZED_DISTRIBUTOR"
	LinkRoleReseller              LinkRole = "RESELLER"
)

// VerificationState is the tri-state trust flag gating procurement use.
type VerificationState string

const (
	VerificationUnverified    VerificationState = "UNVERIFIED"
	VerificationAutoVerified  VerificationState = "AUTO_VERIFIED"
	VerificationHumanVerified VerificationState = "HUMAN_VERIFIED"
)

// ValidCompanyType reports whether s is a known company type.
func ValidCompanyType(s string) bool {
	switch CompanyType(s) {
	case CompanyTypeManufacturer, CompanyTypeDistributor, CompanyTypeBoth:
		return true
	}
	return false
}

// ValidCompanyStatus reports whether s is a known company status.
func ValidCompanyStatus(s string) bool {
	switch CompanyStatus(s) {
	case CompanyStatusActive, CompanyStatusLimited, CompanyStatusInactive:
		return true
	}
	return false
}

// ValidLinkRole reports whether s is a known link role.
func ValidLinkRole(s string) bool {
	switch LinkRole(s) {
	case LinkRolePrimaryManufacturer, LinkRoleAuthorizedDistributor, LinkRoleReseller:
		return true
	}
	return false
}

// ValidVerificationState reports whether s is a known verification state.
func ValidVerificationState(s string) bool {
	switch VerificationState(s) {
	case VerificationUnverified, VerificationAutoVerified, VerificationHumanVerified:
		return true
	}
	return false
}

// ProductType is a catalog entry vendors are linked to.
type ProductType struct {
	ID           int64     `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Keywords     []string  `json:"keywords"`
	Pharmacopeia []string  `json:"pharmacopeia"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IntRange is an inclusive numeric range, e.g. lead time in days.
type IntRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// QuantityRange is an inclusive quantity range with a unit, e.g. MOQ.
type QuantityRange struct {
	Min  int    `json:"min"`
	Max  int    `json:"max"`
	Unit string `json:"unit,omitempty"`
}

// Compliance holds regulatory metadata for a company.
type Compliance struct {
	PharmacopeiaSupported []string `json:"pharmacopeia_supported"`
}

// Company is a supplier entity in the directory.
type Company struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"name"`
	CompanyType        CompanyType       `json:"company_type"`
	Website            string            `json:"website,omitempty"`
	HQCountry          string            `json:"hq_country,omitempty"`
	Certifications     []string          `json:"certifications"`
	Compliance         Compliance        `json:"compliance"`
	RegionsServed      []string          `json:"regions_served"`
	LeadTimeDaysRange  *IntRange         `json:"lead_time_days_range,omitempty"`
	MOQRange           *QuantityRange    `json:"moq_range,omitempty"`
	LastVerifiedAt     *time.Time        `json:"last_verified_at,omitempty"`
	VerificationSource string            `json:"verification_source,omitempty"`
	Status             CompanyStatus     `json:"status"`
	ConfidenceScore    float64           `json:"confidence_score"`
	VerificationState  VerificationState `json:"verification_state"`
	Contacts           []Contact         `json:"contacts,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Contact is a communication channel for a company.
type Contact struct {
	ID        int64       `json:"id"`
	CompanyID int64       `json:"company_id"`
	Type      ContactType `json:"type"`
	Name      string      `json:"name,omitempty"`
	Email     string      `json:"email,omitempty"`
	Phone     string      `json:"phone,omitempty"`
	WhatsApp  string      `json:"whatsapp,omitempty"`
	Telegram  string      `json:"telegram,omitempty"`
}

// ProductLink joins a company to a product type with a supply role.
// A (product type, company) pair is unique.
type ProductLink struct {
	ID            int64    `json:"id"`
	ProductTypeID int64    `json:"product_type_id"`
	CompanyID     int64    `json:"company_id"`
	Role          LinkRole `json:"role"`
	Notes         string   `json:"notes,omitempty"`
}

// SourceRecord is raw ingested evidence captured from a scraped page.
type SourceRecord struct {
	ID            int64     `json:"id"`
	SourceName    string    `json:"source_name"`
	SourceURL     string    `json:"source_url"`
	RetrievedAt   time.Time `json:"retrieved_at"`
	ParserVersion string    `json:"parser_version"`
	HTTPStatus    int       `json:"http_status,omitempty"`
	ContentHash   string    `json:"content_hash,omitempty"`
}

// Evidence is a parsed, confidence-scored claim about a company derived
// from a source record. Every attribute written by ingestion traces back
// to one of these rows.
type Evidence struct {
	ID             int64   `json:"id"`
	CompanyID      int64   `json:"company_id"`
	SourceRecordID int64   `json:"source_record_id"`
	FieldName      string  `json:"field_name"`
	FieldValue     string  `json:"field_value,omitempty"`
	Confidence     float64 `json:"confidence"`
}
