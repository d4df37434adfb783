// Package directory is the service layer over the vendor store: search
// with ranking, vendor detail assembly, and the verification workflow.
package directory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/manuid/internal/model"
	"github.com/sells-group/manuid/internal/normalize"
	"github.com/sells-group/manuid/internal/score"
	"github.com/sells-group/manuid/internal/store"
)

// Service exposes directory operations to the HTTP API and CLI.
type Service struct {
	store store.Store
}

// New builds a Service over the given store.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// SearchRequest carries vendor search criteria.
type SearchRequest struct {
	Query          string
	Country        string
	CompanyType    model.CompanyType
	Status         model.CompanyStatus
	Role           model.LinkRole
	Certifications []string
	Regions        []string
	MinConfidence  float64
	Limit          int
}

// SearchMatch is one ranked vendor in a search result.
type SearchMatch struct {
	Company model.Company  `json:"company"`
	Role    model.LinkRole `json:"role"`
	Score   float64        `json:"score"`
	Reasons []string       `json:"reasons"`
}

// SearchResult is a ranked vendor list plus query resolution metadata.
type SearchResult struct {
	NormalizedQuery string             `json:"normalized_query"`
	ProductType     *model.ProductType `json:"product_type,omitempty"`
	Matches         []SearchMatch      `json:"matches"`
}

const defaultSearchLimit = 25

// SearchVendors resolves the free-text query to a product type, pulls
// candidate vendors from the store, applies the in-memory filters the
// store cannot express (role, regions, certification subset), and ranks
// the survivors. An empty status filter defaults to ACTIVE.
func (s *Service) SearchVendors(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	norm, err := normalize.Query(ctx, s.store, req.Query)
	if err != nil {
		return nil, eris.Wrap(err, "directory: normalize search query")
	}

	status := req.Status
	if status == "" {
		status = model.CompanyStatusActive
	}
	filter := store.VendorFilter{
		Country:       req.Country,
		CompanyType:   req.CompanyType,
		Status:        status,
		MinConfidence: req.MinConfidence,
	}
	if norm.ProductType != nil {
		filter.ProductTypeID = norm.ProductType.ID
	} else {
		filter.Query = norm.NormalizedQuery
	}

	rows, err := s.store.SearchVendors(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "directory: search vendors")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	scoreReq := score.Request{
		Certifications: req.Certifications,
		Role:           req.Role,
	}

	// Best row per company wins; the join can return a company once per
	// matching product link.
	best := make(map[int64]SearchMatch)
	var order []int64
	for i := range rows {
		row := rows[i]
		if req.Role != "" && row.Role != req.Role {
			continue
		}
		if !servesRegions(&row.Company, req.Regions) {
			continue
		}
		if !holdsCertifications(&row.Company, req.Certifications) {
			continue
		}
		total, reasons := score.Score(&row.Company, scoreReq, row.Role)
		match := SearchMatch{
			Company: row.Company,
			Role:    row.Role,
			Score:   total,
			Reasons: reasons,
		}
		prev, seen := best[row.Company.ID]
		if !seen {
			order = append(order, row.Company.ID)
		}
		if !seen || match.Score > prev.Score {
			best[row.Company.ID] = match
		}
	}

	matches := make([]SearchMatch, 0, len(order))
	for _, id := range order {
		matches = append(matches, best[id])
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	zap.L().Debug("vendor search",
		zap.String("normalized_query", norm.NormalizedQuery),
		zap.Int("candidates", len(rows)),
		zap.Int("matches", len(matches)),
	)

	return &SearchResult{
		NormalizedQuery: norm.NormalizedQuery,
		ProductType:     norm.ProductType,
		Matches:         matches,
	}, nil
}

// holdsCertifications reports whether the company holds every requested
// certification, compared case-insensitively.
func holdsCertifications(company *model.Company, requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	held := make(map[string]bool, len(company.Certifications))
	for _, c := range company.Certifications {
		held[strings.ToLower(strings.TrimSpace(c))] = true
	}
	for _, c := range requested {
		if !held[strings.ToLower(strings.TrimSpace(c))] {
			return false
		}
	}
	return true
}

// servesRegions reports whether the company serves any requested region.
// An empty request matches everything; so does an empty served list, on
// the assumption an unscraped coverage list is unknown rather than empty.
func servesRegions(company *model.Company, requested []string) bool {
	if len(requested) == 0 || len(company.RegionsServed) == 0 {
		return true
	}
	served := make(map[string]bool, len(company.RegionsServed))
	for _, r := range company.RegionsServed {
		served[strings.ToLower(strings.TrimSpace(r))] = true
	}
	for _, r := range requested {
		if served[strings.ToLower(strings.TrimSpace(r))] {
			return true
		}
	}
	return false
}

// VendorDetail is a company with its catalog links and audit trail.
type VendorDetail struct {
	Company      model.Company       `json:"company"`
	ProductTypes []model.ProductType `json:"product_types"`
	EvidenceURLs []string            `json:"evidence_urls"`
}

// GetVendor assembles the full detail view for one company.
func (s *Service) GetVendor(ctx context.Context, id int64) (*VendorDetail, error) {
	company, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}

	contacts, err := s.store.ListContacts(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "directory: list contacts for company %d", id)
	}
	company.Contacts = contacts

	productTypes, err := s.store.ListProductTypesForCompany(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "directory: list product types for company %d", id)
	}

	urls, err := s.store.ListEvidenceURLs(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "directory: list evidence urls for company %d", id)
	}

	return &VendorDetail{
		Company:      *company,
		ProductTypes: productTypes,
		EvidenceURLs: urls,
	}, nil
}

// VerifyRequest records a reviewer decision on a vendor.
type VerifyRequest struct {
	State      model.VerificationState
	Confidence *float64
	Notes      string
}

// VerifyVendor applies a reviewer decision: sets the verification state,
// optionally overrides confidence, and appends the reviewer notes to the
// verification source. Human verification stamps last_verified_at.
func (s *Service) VerifyVendor(ctx context.Context, id int64, req VerifyRequest) (*model.Company, error) {
	company, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}

	company.VerificationState = req.State
	if req.Confidence != nil {
		company.ConfidenceScore = *req.Confidence
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		if company.VerificationSource != "" {
			company.VerificationSource += " | review: " + notes
		} else {
			company.VerificationSource = "review: " + notes
		}
	}
	if req.State == model.VerificationHumanVerified {
		now := time.Now().UTC()
		company.LastVerifiedAt = &now
	}

	if err := s.store.UpdateCompany(ctx, company); err != nil {
		return nil, eris.Wrapf(err, "directory: update company %d after review", id)
	}

	zap.L().Info("vendor verification updated",
		zap.Int64("company_id", id),
		zap.String("state", string(req.State)),
	)
	return company, nil
}

// ListProductTypes lists catalog entries matching the filter.
func (s *Service) ListProductTypes(ctx context.Context, filter store.ProductTypeFilter) ([]model.ProductType, error) {
	return s.store.ListProductTypes(ctx, filter)
}

// SourceCatalog lists ingested source records, newest first.
func (s *Service) SourceCatalog(ctx context.Context, limit int) ([]model.SourceRecord, error) {
	return s.store.ListSourceRecords(ctx, limit)
}
