package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/manuid/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedProductType(t *testing.T, st *SQLiteStore, slug, name string) *model.ProductType {
	t.Helper()
	pt := &model.ProductType{
		Slug:         slug,
		Name:         name,
		Keywords:     []string{name},
		Pharmacopeia: []string{"USP"},
	}
	require.NoError(t, st.CreateProductType(context.Background(), pt))
	require.NotZero(t, pt.ID)
	return pt
}

func seedCompany(t *testing.T, st *SQLiteStore, name, website string) *model.Company {
	t.Helper()
	c := &model.Company{
		Name:            name,
		CompanyType:     model.CompanyTypeManufacturer,
		Website:         website,
		HQCountry:       "Germany",
		Certifications:  []string{"ISO 9001"},
		Status:          model.CompanyStatusActive,
		ConfidenceScore: 0.5,
	}
	require.NoError(t, st.CreateCompany(context.Background(), c))
	require.NotZero(t, c.ID)
	return c
}

// --- Product types ---

func TestSQLite_ProductType_CreateAndGetBySlug(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedProductType(t, st, "nitrile_gloves", "Nitrile Gloves")

	pt, err := st.GetProductTypeBySlug(ctx, "nitrile_gloves")
	require.NoError(t, err)
	assert.Equal(t, "Nitrile Gloves", pt.Name)
	assert.Equal(t, []string{"USP"}, pt.Pharmacopeia)
	assert.False(t, pt.UpdatedAt.IsZero())
}

func TestSQLite_ProductType_GetBySlug_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetProductTypeBySlug(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ProductType_ListWithFilters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedProductType(t, st, "nitrile_gloves", "Nitrile Gloves")
	seedProductType(t, st, "gelatin_capsules", "Gelatin Capsules")

	types, err := st.ListProductTypes(ctx, ProductTypeFilter{Query: "glove"})
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "nitrile_gloves", types[0].Slug)

	types, err = st.ListProductTypes(ctx, ProductTypeFilter{Pharmacopeia: "USP"})
	require.NoError(t, err)
	assert.Len(t, types, 2)

	types, err = st.ListProductTypes(ctx, ProductTypeFilter{Pharmacopeia: "JP"})
	require.NoError(t, err)
	assert.Empty(t, types)
}

func TestSQLite_ProductType_Count(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	count, err := st.CountProductTypes(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	seedProductType(t, st, "nitrile_gloves", "Nitrile Gloves")

	count, err = st.CountProductTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// --- Companies ---

func TestSQLite_Company_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	c := &model.Company{
		Name:              "Acme Excipients",
		CompanyType:       model.CompanyTypeBoth,
		Website:           "https://acme.example.com",
		HQCountry:         "India",
		Certifications:    []string{"ISO 9001", "WHO GMP"},
		Compliance:        model.Compliance{PharmacopeiaSupported: []string{"USP", "EP"}},
		RegionsServed:     []string{"Asia"},
		LeadTimeDaysRange: &model.IntRange{Min: 14, Max: 30},
		MOQRange:          &model.QuantityRange{Min: 100, Max: 1000, Unit: "kg"},
		LastVerifiedAt:    &now,
		Status:            model.CompanyStatusActive,
		ConfidenceScore:   0.75,
		VerificationState: model.VerificationAutoVerified,
	}
	require.NoError(t, st.CreateCompany(ctx, c))

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Excipients", got.Name)
	assert.Equal(t, model.CompanyTypeBoth, got.CompanyType)
	assert.Equal(t, []string{"USP", "EP"}, got.Compliance.PharmacopeiaSupported)
	require.NotNil(t, got.LeadTimeDaysRange)
	assert.Equal(t, 14, got.LeadTimeDaysRange.Min)
	require.NotNil(t, got.MOQRange)
	assert.Equal(t, "kg", got.MOQRange.Unit)
	require.NotNil(t, got.LastVerifiedAt)
	assert.Equal(t, model.VerificationAutoVerified, got.VerificationState)
}

func TestSQLite_Company_DefaultsOnCreate(t *testing.T) {
	st := newTestSQLiteStore(t)

	c := seedCompany(t, st, "Plain Co", "")

	got, err := st.GetCompany(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationUnverified, got.VerificationState)
	assert.Nil(t, got.LeadTimeDaysRange)
	assert.Nil(t, got.MOQRange)
	assert.Nil(t, got.LastVerifiedAt)
	assert.NotNil(t, got.Certifications)
	assert.NotNil(t, got.RegionsServed)
}

func TestSQLite_Company_ZeroEnumsNormalized(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Company{Name: "Bare Co"}
	require.NoError(t, st.CreateCompany(ctx, c))

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CompanyTypeBoth, got.CompanyType)
	assert.Equal(t, model.CompanyStatusActive, got.Status)
	assert.Equal(t, model.VerificationUnverified, got.VerificationState)
}

func TestSQLite_Company_FindByWebsiteAndName(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedCompany(t, st, "Acme GmbH", "https://acme.example.com")

	byWebsite, err := st.FindCompanyByWebsite(ctx, "https://acme.example.com")
	require.NoError(t, err)
	assert.Equal(t, "Acme GmbH", byWebsite.Name)

	byName, err := st.FindCompanyByName(ctx, "acme gmbh")
	require.NoError(t, err)
	assert.Equal(t, byWebsite.ID, byName.ID)

	_, err = st.FindCompanyByWebsite(ctx, "https://other.example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Company_Update(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedCompany(t, st, "Acme GmbH", "https://acme.example.com")

	c.ConfidenceScore = 0.9
	c.VerificationState = model.VerificationHumanVerified
	c.VerificationSource = "https://acme.example.com/about | review: confirmed"
	require.NoError(t, st.UpdateCompany(ctx, c))

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.ConfidenceScore, 1e-9)
	assert.Equal(t, model.VerificationHumanVerified, got.VerificationState)
	assert.Contains(t, got.VerificationSource, "review: confirmed")
}

func TestSQLite_Company_Update_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	c := &model.Company{
		ID:          999,
		Name:        "Ghost",
		CompanyType: model.CompanyTypeManufacturer,
		Status:      model.CompanyStatusActive,
	}
	err := st.UpdateCompany(context.Background(), c)
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Vendor search ---

func TestSQLite_SearchVendors(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	pt := seedProductType(t, st, "nitrile_gloves", "Nitrile Gloves")
	acme := seedCompany(t, st, "Acme Gloves", "https://acme.example.com")
	other := seedCompany(t, st, "Other Supplies", "https://other.example.com")

	require.NoError(t, st.UpsertProductLink(ctx, &model.ProductLink{
		ProductTypeID: pt.ID, CompanyID: acme.ID, Role: model.LinkRolePrimaryManufacturer,
	}))
	require.NoError(t, st.UpsertProductLink(ctx, &model.ProductLink{
		ProductTypeID: pt.ID, CompanyID: other.ID, Role: model.LinkRoleReseller,
	}))

	rows, err := st.SearchVendors(ctx, VendorFilter{ProductTypeID: pt.ID})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = st.SearchVendors(ctx, VendorFilter{ProductTypeID: pt.ID, MinConfidence: 0.6})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = st.SearchVendors(ctx, VendorFilter{Query: "glove"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = st.SearchVendors(ctx, VendorFilter{ProductTypeID: pt.ID, Country: "Germany"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = st.SearchVendors(ctx, VendorFilter{ProductTypeID: pt.ID, Country: "France"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLite_UpsertProductLink_UpdatesRole(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	pt := seedProductType(t, st, "nitrile_gloves", "Nitrile Gloves")
	c := seedCompany(t, st, "Acme Gloves", "https://acme.example.com")

	require.NoError(t, st.UpsertProductLink(ctx, &model.ProductLink{
		ProductTypeID: pt.ID, CompanyID: c.ID, Role: model.LinkRoleReseller,
	}))
	require.NoError(t, st.UpsertProductLink(ctx, &model.ProductLink{
		ProductTypeID: pt.ID, CompanyID: c.ID, Role: model.LinkRolePrimaryManufacturer, Notes: "promoted",
	}))

	rows, err := st.SearchVendors(ctx, VendorFilter{ProductTypeID: pt.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.LinkRolePrimaryManufacturer, rows[0].Role)

	types, err := st.ListProductTypesForCompany(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "nitrile_gloves", types[0].Slug)
}

// --- Contacts ---

func TestSQLite_Contacts_CreateListUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedCompany(t, st, "Acme Gloves", "https://acme.example.com")

	contact := &model.Contact{
		CompanyID: c.ID,
		Type:      model.ContactTypeGeneral,
		Email:     "info@acme.example.com",
	}
	require.NoError(t, st.CreateContact(ctx, contact))
	require.NotZero(t, contact.ID)

	contact.Phone = "+4989123456"
	require.NoError(t, st.UpdateContact(ctx, contact))

	contacts, err := st.ListContacts(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "info@acme.example.com", contacts[0].Email)
	assert.Equal(t, "+4989123456", contacts[0].Phone)
}

// --- Source records and evidence ---

func TestSQLite_SourceRecordsAndEvidence(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedCompany(t, st, "Acme Gloves", "https://acme.example.com")

	record := &model.SourceRecord{
		SourceName:    "Thomasnet",
		SourceURL:     "https://www.thomasnet.com/suppliers/gloves",
		RetrievedAt:   time.Now().UTC(),
		ParserVersion: "1.0",
		HTTPStatus:    200,
		ContentHash:   "abc123",
	}
	require.NoError(t, st.CreateSourceRecord(ctx, record))
	require.NotZero(t, record.ID)

	exists, err := st.SourceRecordExists(ctx, record.SourceURL)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = st.SourceRecordExists(ctx, "https://example.com/unknown")
	require.NoError(t, err)
	assert.False(t, exists)

	evidence := []model.Evidence{
		{CompanyID: c.ID, SourceRecordID: record.ID, FieldName: "name", FieldValue: "Acme Gloves", Confidence: 0.75},
		{CompanyID: c.ID, SourceRecordID: record.ID, FieldName: "website", FieldValue: "https://acme.example.com", Confidence: 0.75},
	}
	require.NoError(t, st.AddEvidence(ctx, evidence))

	urls, err := st.ListEvidenceURLs(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{record.SourceURL}, urls)

	records, err := st.ListSourceRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Thomasnet", records[0].SourceName)
}
