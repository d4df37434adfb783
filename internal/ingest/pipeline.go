package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/manuid/internal/enrich"
	"github.com/sells-group/manuid/internal/model"
	"github.com/sells-group/manuid/internal/normalize"
	"github.com/sells-group/manuid/internal/scrape"
	"github.com/sells-group/manuid/internal/store"
)

// Fetcher fetches one page within the scrape policy. *scrape.Fetcher
// satisfies it; tests substitute a stub.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*scrape.Result, error)
}

// Request describes one ingestion run.
type Request struct {
	URL         string
	ProductType string // free-text query resolved via the catalog
	Role        model.LinkRole
	SourceName  string
	DryRun      bool
}

// Report summarizes what an ingestion run did.
type Report struct {
	SourceRecordID int64  `json:"source_record_id,omitempty"`
	ProductTypeID  int64  `json:"product_type_id,omitempty"`
	Parsed         int    `json:"parsed"`
	Inserted       int    `json:"inserted"`
	Updated        int    `json:"updated"`
	Skipped        int    `json:"skipped"`
	Message        string `json:"message"`
}

// Pipeline runs fetch, parse, and persist for one URL.
type Pipeline struct {
	store    store.Store
	fetcher  Fetcher
	enricher *enrich.Enricher // nil when enrichment is disabled
}

// New builds a Pipeline. enricher may be nil.
func New(st store.Store, f Fetcher, enricher *enrich.Enricher) *Pipeline {
	return &Pipeline{store: st, fetcher: f, enricher: enricher}
}

// Run ingests one URL. Dry runs fetch and parse but write nothing.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Role == "" {
		req.Role = model.LinkRoleAuthorizedDistributor
	}

	page, err := p.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: fetch %s", req.URL)
	}

	parsed, err := Parse(page.HTML, page.FinalURL)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", page.FinalURL)
	}

	report := &Report{Parsed: len(parsed.Candidates), Skipped: parsed.SkippedRows}
	if req.DryRun {
		report.Message = fmt.Sprintf("dry run: %d candidate(s) parsed, %d row(s) skipped",
			len(parsed.Candidates), parsed.SkippedRows)
		return report, nil
	}

	sourceName := req.SourceName
	if sourceName == "" {
		sourceName = hostOf(page.FinalURL)
	}
	record := &model.SourceRecord{
		SourceName:    sourceName,
		SourceURL:     page.FinalURL,
		RetrievedAt:   page.RetrievedAt,
		ParserVersion: ParserVersion,
		HTTPStatus:    page.StatusCode,
		ContentHash:   page.ContentHash,
	}
	if err := p.store.CreateSourceRecord(ctx, record); err != nil {
		return nil, eris.Wrap(err, "ingest: create source record")
	}
	report.SourceRecordID = record.ID

	productType, err := p.resolveProductType(ctx, req.ProductType)
	if err != nil {
		return nil, err
	}
	report.ProductTypeID = productType.ID

	sourceHost := hostOf(page.FinalURL)
	for i := range parsed.Candidates {
		inserted, err := p.persistCandidate(ctx, &parsed.Candidates[i], productType, req.Role, record, sourceHost)
		if err != nil {
			zap.L().Warn("candidate persist failed",
				zap.String("name", parsed.Candidates[i].Name),
				zap.Error(err),
			)
			report.Skipped++
			continue
		}
		if inserted {
			report.Inserted++
		} else {
			report.Updated++
		}
	}

	report.Message = fmt.Sprintf("ingested %s: %d inserted, %d updated, %d skipped",
		page.FinalURL, report.Inserted, report.Updated, report.Skipped)
	zap.L().Info("ingestion complete",
		zap.String("url", page.FinalURL),
		zap.Int64("source_record_id", record.ID),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// resolveProductType reuses an existing catalog entry when the query
// fuzzy-matches one, and creates a new entry otherwise.
func (p *Pipeline) resolveProductType(ctx context.Context, query string) (*model.ProductType, error) {
	norm, err := normalize.Query(ctx, p.store, query)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: resolve product type")
	}
	if norm.ProductType != nil {
		return norm.ProductType, nil
	}

	pt := &model.ProductType{
		Slug:     normalize.Slugify(norm.NormalizedQuery),
		Name:     normalize.TitleName(norm.NormalizedQuery),
		Keywords: []string{strings.ToLower(norm.NormalizedQuery)},
	}
	if existing, err := p.store.GetProductTypeBySlug(ctx, pt.Slug); err == nil {
		return existing, nil
	} else if !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "ingest: look up product type %s", pt.Slug)
	}
	if err := p.store.CreateProductType(ctx, pt); err != nil {
		return nil, eris.Wrapf(err, "ingest: create product type %s", pt.Slug)
	}
	zap.L().Info("created product type", zap.String("slug", pt.Slug), zap.String("name", pt.Name))
	return pt, nil
}

// persistCandidate upserts one parsed candidate. Reports whether the
// company was newly created.
func (p *Pipeline) persistCandidate(ctx context.Context, c *Candidate, pt *model.ProductType, role model.LinkRole, record *model.SourceRecord, sourceHost string) (bool, error) {
	company, created, err := p.findOrCreateCompany(ctx, c)
	if err != nil {
		return false, err
	}

	if company.Website == "" && c.Website != "" {
		company.Website = c.Website
	}
	if company.HQCountry == "" && c.Country != "" {
		company.HQCountry = c.Country
	}

	if err := p.ensurePrimaryContact(ctx, company.ID, c); err != nil {
		return false, err
	}

	link := &model.ProductLink{
		ProductTypeID: pt.ID,
		CompanyID:     company.ID,
		Role:          role,
		Notes:         "source: " + record.SourceURL,
	}
	if err := p.store.UpsertProductLink(ctx, link); err != nil {
		return false, eris.Wrapf(err, "ingest: upsert product link for company %d", company.ID)
	}

	confidence := autoConfidence(c, company, sourceHost)
	if confidence > company.ConfidenceScore {
		company.ConfidenceScore = confidence
	}
	now := record.RetrievedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	company.LastVerifiedAt = &now
	company.VerificationSource = record.SourceURL
	if company.VerificationState != model.VerificationHumanVerified {
		company.VerificationState = model.VerificationAutoVerified
	}

	if p.enricher != nil {
		if ext, err := p.enricher.Extract(ctx, c.RawText); err != nil {
			zap.L().Warn("enrichment failed", zap.String("company", company.Name), zap.Error(err))
		} else {
			enrich.Apply(company, ext)
		}
	}

	if err := p.store.UpdateCompany(ctx, company); err != nil {
		return false, eris.Wrapf(err, "ingest: update company %d", company.ID)
	}

	if err := p.store.AddEvidence(ctx, candidateEvidence(c, company.ID, record.ID, confidence)); err != nil {
		return false, eris.Wrapf(err, "ingest: add evidence for company %d", company.ID)
	}

	return created, nil
}

// findOrCreateCompany matches by website first, then by exact name.
func (p *Pipeline) findOrCreateCompany(ctx context.Context, c *Candidate) (*model.Company, bool, error) {
	if c.Website != "" {
		company, err := p.store.FindCompanyByWebsite(ctx, c.Website)
		if err == nil {
			return company, false, nil
		}
		if !eris.Is(err, store.ErrNotFound) {
			return nil, false, eris.Wrap(err, "ingest: find company by website")
		}
	}
	company, err := p.store.FindCompanyByName(ctx, c.Name)
	if err == nil {
		return company, false, nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return nil, false, eris.Wrap(err, "ingest: find company by name")
	}

	// Scraped listings rarely say whether a vendor makes or resells, so
	// new companies start as BOTH with a floor confidence.
	company = &model.Company{
		Name:              c.Name,
		CompanyType:       model.CompanyTypeBoth,
		Website:           c.Website,
		HQCountry:         c.Country,
		Status:            model.CompanyStatusActive,
		ConfidenceScore:   0.4,
		VerificationState: model.VerificationUnverified,
	}
	if err := p.store.CreateCompany(ctx, company); err != nil {
		return nil, false, eris.Wrapf(err, "ingest: create company %s", c.Name)
	}
	return company, true, nil
}

// ensurePrimaryContact keeps one GENERAL contact per company, filling
// in email and phone as they become known.
func (p *Pipeline) ensurePrimaryContact(ctx context.Context, companyID int64, c *Candidate) error {
	if c.Email == "" && c.Phone == "" {
		return nil
	}

	contacts, err := p.store.ListContacts(ctx, companyID)
	if err != nil {
		return eris.Wrapf(err, "ingest: list contacts for company %d", companyID)
	}
	for i := range contacts {
		if contacts[i].Type != model.ContactTypeGeneral {
			continue
		}
		changed := false
		if contacts[i].Email == "" && c.Email != "" {
			contacts[i].Email = c.Email
			changed = true
		}
		if contacts[i].Phone == "" && c.Phone != "" {
			contacts[i].Phone = c.Phone
			changed = true
		}
		if changed {
			if err := p.store.UpdateContact(ctx, &contacts[i]); err != nil {
				return eris.Wrapf(err, "ingest: update contact %d", contacts[i].ID)
			}
		}
		return nil
	}

	contact := &model.Contact{
		CompanyID: companyID,
		Type:      model.ContactTypeGeneral,
		Email:     c.Email,
		Phone:     c.Phone,
	}
	if err := p.store.CreateContact(ctx, contact); err != nil {
		return eris.Wrapf(err, "ingest: create contact for company %d", companyID)
	}
	return nil
}

// autoConfidence scores a candidate by how complete and self-consistent
// its scraped fields are.
func autoConfidence(c *Candidate, company *model.Company, sourceHost string) float64 {
	confidence := 0.35
	if c.Website != "" {
		confidence += 0.2
	}
	if c.Email != "" {
		confidence += 0.2
	}
	if c.Phone != "" {
		confidence += 0.1
	}
	if c.Country != "" {
		confidence += 0.1
	}
	if sourceHost != "" && sameDomain(company.Website, sourceHost) {
		confidence += 0.05
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

// sameDomain reports whether the company's website lives on the scraped
// host, a weak corroboration signal.
func sameDomain(website, sourceHost string) bool {
	host := hostOf(website)
	if host == "" || sourceHost == "" {
		return false
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	sourceHost = strings.TrimPrefix(strings.ToLower(sourceHost), "www.")
	return host == sourceHost
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// candidateEvidence builds one evidence row per populated field.
func candidateEvidence(c *Candidate, companyID, sourceRecordID int64, confidence float64) []model.Evidence {
	fields := []struct {
		name  string
		value string
	}{
		{"name", c.Name},
		{"website", c.Website},
		{"email", c.Email},
		{"phone", c.Phone},
		{"hq_country", c.Country},
	}

	var rows []model.Evidence
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		rows = append(rows, model.Evidence{
			CompanyID:      companyID,
			SourceRecordID: sourceRecordID,
			FieldName:      f.name,
			FieldValue:     f.value,
			Confidence:     confidence,
		})
	}
	return rows
}

// RunBatch ingests several URLs with bounded concurrency. Per-URL
// failures are reported, not fatal.
func (p *Pipeline) RunBatch(ctx context.Context, urls []string, base Request, concurrency int) ([]*Report, []error) {
	if concurrency <= 0 {
		concurrency = 3
	}

	reports := make([]*Report, len(urls))
	errs := make([]error, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, rawURL := range urls {
		i, rawURL := i, rawURL
		g.Go(func() error {
			req := base
			req.URL = rawURL
			report, err := p.Run(ctx, req)
			reports[i] = report
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	return reports, errs
}
