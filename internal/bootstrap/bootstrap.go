// Package bootstrap seeds the directory with a starter catalog so a
// fresh deployment is queryable before any ingestion has run.
package bootstrap

import (
	"context"
	"embed"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/manuid/internal/model"
	"github.com/sells-group/manuid/internal/store"
)

//go:embed seed/*.json
var seedFS embed.FS

type seedContact struct {
	Type  model.ContactType `json:"type"`
	Name  string            `json:"name"`
	Email string            `json:"email"`
	Phone string            `json:"phone"`
}

type seedLink struct {
	ProductTypeSlug string         `json:"product_type_slug"`
	Role            model.LinkRole `json:"role"`
}

type seedCompany struct {
	Name              string                  `json:"name"`
	CompanyType       model.CompanyType       `json:"company_type"`
	Website           string                  `json:"website"`
	HQCountry         string                  `json:"hq_country"`
	Certifications    []string                `json:"certifications"`
	Compliance        model.Compliance        `json:"compliance"`
	RegionsServed     []string                `json:"regions_served"`
	Status            model.CompanyStatus     `json:"status"`
	ConfidenceScore   float64                 `json:"confidence_score"`
	VerificationState model.VerificationState `json:"verification_state"`
	Contacts          []seedContact           `json:"contacts"`
	Links             []seedLink              `json:"links"`
}

type seedSource struct {
	SourceName    string `json:"source_name"`
	SourceURL     string `json:"source_url"`
	ParserVersion string `json:"parser_version"`
}

// Seed loads the embedded starter data. Product types and companies are
// only seeded into empty tables; catalog entries are deduped by URL, so
// repeated runs are safe.
func Seed(ctx context.Context, st store.Store) error {
	if err := seedProductTypes(ctx, st); err != nil {
		return err
	}
	if err := seedCompanies(ctx, st); err != nil {
		return err
	}
	return seedSourceCatalog(ctx, st)
}

func seedProductTypes(ctx context.Context, st store.Store) error {
	count, err := st.CountProductTypes(ctx)
	if err != nil {
		return eris.Wrap(err, "bootstrap: count product types")
	}
	if count > 0 {
		zap.L().Debug("product types already seeded", zap.Int("count", count))
		return nil
	}

	var types []model.ProductType
	if err := loadSeed("seed/product_types.json", &types); err != nil {
		return err
	}
	for i := range types {
		if err := st.CreateProductType(ctx, &types[i]); err != nil {
			return eris.Wrapf(err, "bootstrap: create product type %s", types[i].Slug)
		}
	}
	zap.L().Info("seeded product types", zap.Int("count", len(types)))
	return nil
}

func seedCompanies(ctx context.Context, st store.Store) error {
	count, err := st.CountCompanies(ctx)
	if err != nil {
		return eris.Wrap(err, "bootstrap: count companies")
	}
	if count > 0 {
		zap.L().Debug("companies already seeded", zap.Int("count", count))
		return nil
	}

	var seeds []seedCompany
	if err := loadSeed("seed/companies.json", &seeds); err != nil {
		return err
	}

	for _, seed := range seeds {
		company := &model.Company{
			Name:               seed.Name,
			CompanyType:        seed.CompanyType,
			Website:            seed.Website,
			HQCountry:          seed.HQCountry,
			Certifications:     seed.Certifications,
			Compliance:         seed.Compliance,
			RegionsServed:      seed.RegionsServed,
			VerificationSource: "bootstrap seed",
			Status:             seed.Status,
			ConfidenceScore:    seed.ConfidenceScore,
			VerificationState:  seed.VerificationState,
		}
		if err := st.CreateCompany(ctx, company); err != nil {
			return eris.Wrapf(err, "bootstrap: create company %s", seed.Name)
		}

		for _, sc := range seed.Contacts {
			contact := &model.Contact{
				CompanyID: company.ID,
				Type:      sc.Type,
				Name:      sc.Name,
				Email:     sc.Email,
				Phone:     sc.Phone,
			}
			if err := st.CreateContact(ctx, contact); err != nil {
				return eris.Wrapf(err, "bootstrap: create contact for %s", seed.Name)
			}
		}

		for _, sl := range seed.Links {
			pt, err := st.GetProductTypeBySlug(ctx, sl.ProductTypeSlug)
			if err != nil {
				return eris.Wrapf(err, "bootstrap: look up product type %s", sl.ProductTypeSlug)
			}
			link := &model.ProductLink{
				ProductTypeID: pt.ID,
				CompanyID:     company.ID,
				Role:          sl.Role,
			}
			if err := st.UpsertProductLink(ctx, link); err != nil {
				return eris.Wrapf(err, "bootstrap: link %s to %s", seed.Name, sl.ProductTypeSlug)
			}
		}
	}
	zap.L().Info("seeded companies", zap.Int("count", len(seeds)))
	return nil
}

func seedSourceCatalog(ctx context.Context, st store.Store) error {
	var sources []seedSource
	if err := loadSeed("seed/source_catalog.json", &sources); err != nil {
		return err
	}

	seeded := 0
	for _, src := range sources {
		exists, err := st.SourceRecordExists(ctx, src.SourceURL)
		if err != nil {
			return eris.Wrapf(err, "bootstrap: check source %s", src.SourceURL)
		}
		if exists {
			continue
		}
		record := &model.SourceRecord{
			SourceName:    src.SourceName,
			SourceURL:     src.SourceURL,
			RetrievedAt:   time.Now().UTC(),
			ParserVersion: src.ParserVersion,
		}
		if err := st.CreateSourceRecord(ctx, record); err != nil {
			return eris.Wrapf(err, "bootstrap: create source record %s", src.SourceURL)
		}
		seeded++
	}
	if seeded > 0 {
		zap.L().Info("seeded source catalog", zap.Int("count", seeded))
	}
	return nil
}

func loadSeed(path string, out any) error {
	data, err := seedFS.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "bootstrap: read %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "bootstrap: parse %s", path)
	}
	return nil
}
