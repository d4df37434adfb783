package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/manuid/internal/model"
	"github.com/sells-group/manuid/internal/scrape"
	"github.com/sells-group/manuid/internal/store"
)

// stubFetcher serves canned pages keyed by URL.
type stubFetcher struct {
	pages map[string]*scrape.Result
	errs  map[string]error
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) (*scrape.Result, error) {
	if err := s.errs[rawURL]; err != nil {
		return nil, err
	}
	page, ok := s.pages[rawURL]
	if !ok {
		return nil, eris.New("stub: no page for " + rawURL)
	}
	return page, nil
}

func newPipelineFixture(t *testing.T) (*Pipeline, *store.SQLiteStore, *stubFetcher) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	fetcher := &stubFetcher{pages: map[string]*scrape.Result{}, errs: map[string]error{}}
	return New(st, fetcher, nil), st, fetcher
}

func stubPage(url, html string) *scrape.Result {
	return &scrape.Result{
		RequestedURL: url,
		FinalURL:     url,
		StatusCode:   200,
		HTML:         html,
		ContentHash:  "deadbeef",
		RetrievedAt:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestPipeline_Run_InsertsCompanies(t *testing.T) {
	pipeline, st, fetcher := newPipelineFixture(t)
	ctx := context.Background()

	const pageURL = "https://directory.example.com/gloves"
	fetcher.pages[pageURL] = stubPage(pageURL, directoryTableHTML)

	report, err := pipeline.Run(ctx, Request{
		URL:         pageURL,
		ProductType: "nitrile gloves",
		SourceName:  "Example Directory",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Parsed)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 0, report.Updated)
	assert.NotZero(t, report.SourceRecordID)
	assert.NotZero(t, report.ProductTypeID)

	exists, err := st.SourceRecordExists(ctx, pageURL)
	require.NoError(t, err)
	assert.True(t, exists)

	acme, err := st.FindCompanyByWebsite(ctx, "https://acme.example.com")
	require.NoError(t, err)
	assert.Equal(t, "Acme Chemical GmbH", acme.Name)
	assert.Equal(t, "Germany", acme.HQCountry)
	assert.Equal(t, model.CompanyTypeBoth, acme.CompanyType)
	assert.Equal(t, model.VerificationAutoVerified, acme.VerificationState)
	assert.Equal(t, pageURL, acme.VerificationSource)
	// website + email + country on top of the base confidence
	assert.InDelta(t, 0.85, acme.ConfidenceScore, 1e-9)
	require.NotNil(t, acme.LastVerifiedAt)
	assert.Equal(t, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), acme.LastVerifiedAt.UTC())

	contacts, err := st.ListContacts(ctx, acme.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, model.ContactTypeGeneral, contacts[0].Type)
	assert.Equal(t, "sales@acme.example.com", contacts[0].Email)

	linked, err := st.ListProductTypesForCompany(ctx, acme.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, report.ProductTypeID, linked[0].ID)

	rows, err := st.SearchVendors(ctx, store.VendorFilter{ProductTypeID: report.ProductTypeID})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, row := range rows {
		assert.Equal(t, model.LinkRoleAuthorizedDistributor, row.Role)
	}

	urls, err := st.ListEvidenceURLs(ctx, acme.ID)
	require.NoError(t, err)
	assert.Contains(t, urls, pageURL)
}

func TestPipeline_Run_DryRunWritesNothing(t *testing.T) {
	pipeline, st, fetcher := newPipelineFixture(t)
	ctx := context.Background()

	const pageURL = "https://directory.example.com/gloves"
	fetcher.pages[pageURL] = stubPage(pageURL, directoryTableHTML)

	report, err := pipeline.Run(ctx, Request{URL: pageURL, ProductType: "nitrile gloves", DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Parsed)
	assert.Zero(t, report.SourceRecordID)
	assert.Contains(t, report.Message, "dry run")

	count, err := st.CountCompanies(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	exists, err := st.SourceRecordExists(ctx, pageURL)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPipeline_Run_ConfidenceFloor(t *testing.T) {
	pipeline, st, fetcher := newPipelineFixture(t)
	ctx := context.Background()

	const pageURL = "https://directory.example.com/sparse"
	fetcher.pages[pageURL] = stubPage(pageURL, `<html><body><ul>
		<li>Delta Industrial Supplies GmbH</li>
		</ul></body></html>`)

	_, err := pipeline.Run(ctx, Request{URL: pageURL, ProductType: "industrial supplies"})
	require.NoError(t, err)

	// A name-only candidate scores 0.35 on its own; the creation floor
	// keeps the stored confidence at 0.4.
	got, err := st.FindCompanyByName(ctx, "Delta Industrial Supplies GmbH")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got.ConfidenceScore, 1e-9)
	assert.Equal(t, model.CompanyTypeBoth, got.CompanyType)
}

func TestPipeline_Run_UpdatesExistingCompany(t *testing.T) {
	pipeline, st, fetcher := newPipelineFixture(t)
	ctx := context.Background()

	existing := &model.Company{
		Name:              "Acme Chemical GmbH",
		CompanyType:       model.CompanyTypeManufacturer,
		Website:           "https://acme.example.com",
		HQCountry:         "Austria",
		Status:            model.CompanyStatusActive,
		ConfidenceScore:   0.9,
		VerificationState: model.VerificationHumanVerified,
	}
	require.NoError(t, st.CreateCompany(ctx, existing))

	const pageURL = "https://directory.example.com/gloves"
	fetcher.pages[pageURL] = stubPage(pageURL, directoryTableHTML)

	report, err := pipeline.Run(ctx, Request{URL: pageURL, ProductType: "nitrile gloves"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Inserted) // Beta Excipients is new
	assert.Equal(t, 1, report.Updated)

	got, err := st.GetCompany(ctx, existing.ID)
	require.NoError(t, err)
	// Existing fields are never overwritten by scraped data.
	assert.Equal(t, "Austria", got.HQCountry)
	// A human verdict survives re-ingestion, and a lower auto
	// confidence never lowers the stored score.
	assert.Equal(t, model.VerificationHumanVerified, got.VerificationState)
	assert.InDelta(t, 0.9, got.ConfidenceScore, 1e-9)
	require.NotNil(t, got.LastVerifiedAt)
}

func TestPipeline_Run_ReusesCatalogEntry(t *testing.T) {
	pipeline, st, fetcher := newPipelineFixture(t)
	ctx := context.Background()

	pt := &model.ProductType{
		Slug:     "nitrile_exam_gloves",
		Name:     "Nitrile Exam Gloves",
		Keywords: []string{"nitrile gloves"},
	}
	require.NoError(t, st.CreateProductType(ctx, pt))

	const pageURL = "https://directory.example.com/gloves"
	fetcher.pages[pageURL] = stubPage(pageURL, directoryTableHTML)

	report, err := pipeline.Run(ctx, Request{URL: pageURL, ProductType: "nitrile gloves"})
	require.NoError(t, err)
	assert.Equal(t, pt.ID, report.ProductTypeID)

	count, err := st.CountProductTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPipeline_Run_FetchError(t *testing.T) {
	pipeline, _, fetcher := newPipelineFixture(t)

	const pageURL = "https://blocked.example.com"
	fetcher.errs[pageURL] = eris.New("scrape: domain not allowlisted")

	_, err := pipeline.Run(context.Background(), Request{URL: pageURL, ProductType: "gloves"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: fetch")
}

func TestPipeline_RunBatch_IsolatesFailures(t *testing.T) {
	pipeline, _, fetcher := newPipelineFixture(t)

	const good = "https://directory.example.com/gloves"
	const bad = "https://directory.example.com/down"
	fetcher.pages[good] = stubPage(good, directoryTableHTML)
	fetcher.errs[bad] = eris.New("scrape: status 503")

	reports, errs := pipeline.RunBatch(context.Background(), []string{good, bad},
		Request{ProductType: "nitrile gloves"}, 2)

	require.Len(t, reports, 2)
	require.Len(t, errs, 2)
	require.NotNil(t, reports[0])
	assert.Equal(t, 2, reports[0].Parsed)
	assert.NoError(t, errs[0])
	assert.Nil(t, reports[1])
	assert.Error(t, errs[1])
}

func TestAutoConfidence(t *testing.T) {
	full := &Candidate{Name: "Acme", Website: "https://acme.example.com", Email: "a@acme.example.com", Phone: "+491234567", Country: "Germany"}
	company := &model.Company{Website: "https://acme.example.com"}

	// Hits the cap even before the same-domain bonus.
	assert.Equal(t, 0.95, autoConfidence(full, company, "directory.example.com"))
	assert.Equal(t, 0.95, autoConfidence(full, company, "acme.example.com"))

	bare := &Candidate{Name: "Acme"}
	assert.InDelta(t, 0.35, autoConfidence(bare, &model.Company{}, "directory.example.com"), 1e-9)
}

func TestSameDomain(t *testing.T) {
	assert.True(t, sameDomain("https://www.acme.example.com/about", "acme.example.com"))
	assert.False(t, sameDomain("https://acme.example.com", "directory.example.com"))
	assert.False(t, sameDomain("", "directory.example.com"))
}
