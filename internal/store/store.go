// Package store provides persistence for the vendor directory with
// SQLite and Postgres backends.
package store

import (
	"context"
	"errors"

	"github.com/sells-group/manuid/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ProductTypeFilter narrows product type listings.
type ProductTypeFilter struct {
	Query        string // case-insensitive substring on name or slug
	Pharmacopeia string // exact pharmacopeia marker, e.g. "USP"
	Limit        int
}

// VendorFilter narrows the vendor search join. Filters that require
// inspecting JSON columns (regions, certifications) are applied by the
// directory service after the query.
type VendorFilter struct {
	ProductTypeID int64  // exact product type; takes precedence over Query
	Query         string // substring match on product type name/slug
	Country       string
	CompanyType   model.CompanyType
	Status        model.CompanyStatus
	MinConfidence float64
}

// VendorRow pairs a company with its role for the matched product type.
type VendorRow struct {
	Company model.Company
	Role    model.LinkRole
}

// Store defines the persistence interface for the vendor directory.
type Store interface {
	// Product types
	ListProductTypes(ctx context.Context, filter ProductTypeFilter) ([]model.ProductType, error)
	GetProductTypeBySlug(ctx context.Context, slug string) (*model.ProductType, error)
	CreateProductType(ctx context.Context, pt *model.ProductType) error
	CountProductTypes(ctx context.Context) (int, error)

	// Companies
	GetCompany(ctx context.Context, id int64) (*model.Company, error)
	FindCompanyByWebsite(ctx context.Context, website string) (*model.Company, error)
	FindCompanyByName(ctx context.Context, name string) (*model.Company, error)
	CreateCompany(ctx context.Context, c *model.Company) error
	UpdateCompany(ctx context.Context, c *model.Company) error
	CountCompanies(ctx context.Context) (int, error)
	SearchVendors(ctx context.Context, filter VendorFilter) ([]VendorRow, error)

	// Contacts
	ListContacts(ctx context.Context, companyID int64) ([]model.Contact, error)
	CreateContact(ctx context.Context, c *model.Contact) error
	UpdateContact(ctx context.Context, c *model.Contact) error

	// Product links
	UpsertProductLink(ctx context.Context, link *model.ProductLink) error
	ListProductTypesForCompany(ctx context.Context, companyID int64) ([]model.ProductType, error)

	// Source records and evidence
	CreateSourceRecord(ctx context.Context, sr *model.SourceRecord) error
	ListSourceRecords(ctx context.Context, limit int) ([]model.SourceRecord, error)
	SourceRecordExists(ctx context.Context, sourceURL string) (bool, error)
	AddEvidence(ctx context.Context, evidence []model.Evidence) error
	ListEvidenceURLs(ctx context.Context, companyID int64) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
