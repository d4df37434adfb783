package normalize

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/manuid/internal/model"
	"github.com/sells-group/manuid/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedCatalog(t *testing.T, st *store.SQLiteStore) {
	t.Helper()
	for _, pt := range []model.ProductType{
		{Slug: "nitrile_exam_gloves", Name: "Nitrile Exam Gloves", Keywords: []string{"nitrile gloves", "exam gloves", "disposable gloves"}},
		{Slug: "isopropyl_alcohol_99", Name: "Isopropyl Alcohol 99%", Keywords: []string{"ipa", "isopropanol"}},
		{Slug: "magnesium_stearate", Name: "Magnesium Stearate", Keywords: []string{"mg stearate", "lubricant excipient"}},
	} {
		pt := pt
		require.NoError(t, st.CreateProductType(context.Background(), &pt))
	}
}

func TestQuery_ExactName(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st)

	res, err := Query(context.Background(), st, "Nitrile Exam Gloves")
	require.NoError(t, err)
	require.NotNil(t, res.ProductType)
	assert.Equal(t, "nitrile_exam_gloves", res.ProductType.Slug)
	assert.Equal(t, "Nitrile Exam Gloves", res.NormalizedQuery)
}

func TestQuery_FuzzyVariants(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st)
	ctx := context.Background()

	for query, wantSlug := range map[string]string{
		"nitrile gloves":        "nitrile_exam_gloves",
		"Disposable gloves":     "nitrile_exam_gloves",
		"isopropanol":           "isopropyl_alcohol_99",
		"magnesium stearate NF": "magnesium_stearate",
	} {
		res, err := Query(ctx, st, query)
		require.NoError(t, err)
		require.NotNil(t, res.ProductType, "query %q", query)
		assert.Equal(t, wantSlug, res.ProductType.Slug, "query %q", query)
	}
}

func TestQuery_NoMatchBelowThreshold(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st)

	res, err := Query(context.Background(), st, "hydraulic excavator parts")
	require.NoError(t, err)
	assert.Nil(t, res.ProductType)
	assert.Equal(t, "hydraulic excavator parts", res.NormalizedQuery)
}

func TestQuery_EmptyQuery(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st)

	res, err := Query(context.Background(), st, "   ")
	require.NoError(t, err)
	assert.Nil(t, res.ProductType)
}

func TestQuery_EmptyCatalog(t *testing.T) {
	st := newTestStore(t)

	res, err := Query(context.Background(), st, "nitrile gloves")
	require.NoError(t, err)
	assert.Nil(t, res.ProductType)
	assert.Equal(t, "nitrile gloves", res.NormalizedQuery)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "nitrile_exam_gloves", Slugify("Nitrile Exam Gloves"))
	assert.Equal(t, "isopropyl_alcohol_99", Slugify("  Isopropyl Alcohol 99%"))
	assert.Equal(t, "custom_product_type", Slugify("!!!"))
}

func TestTitleName(t *testing.T) {
	assert.Equal(t, "Gelatin Capsules Size 0", TitleName("  gelatin capsules size 0 "))
}

func TestBigramSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, bigramSimilarity("gloves", "gloves"))
	assert.Equal(t, 0.0, bigramSimilarity("ab", "xy"))
	assert.Greater(t, bigramSimilarity("nitrile gloves", "nitrile exam gloves"), 0.6)
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, tokenOverlap(tokenSet("nitrile gloves"), tokenSet("nitrile exam gloves")))
	assert.Equal(t, 0.5, tokenOverlap(tokenSet("nitrile gloves"), tokenSet("gloves")))
	assert.Equal(t, 0.0, tokenOverlap(tokenSet(""), tokenSet("gloves")))
}
