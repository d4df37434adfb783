package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/manuid/internal/model"
)

// rowScanner abstracts *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// companyColumns is the column order shared by both backends.
const companyColumns = `id, name, company_type, website, hq_country, certifications, compliance, regions_served,
	lead_time_days_range, moq_range, last_verified_at, verification_source, status, confidence_score,
	verification_state, created_at, updated_at`

func scanCompany(row rowScanner) (*model.Company, error) {
	var (
		c                           model.Company
		website, country, verSource sql.NullString
		certifications, compliance  string
		regions                     string
		leadTime, moq               sql.NullString
		lastVerified                sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.CompanyType, &website, &country, &certifications, &compliance, &regions,
		&leadTime, &moq, &lastVerified, &verSource, &c.Status, &c.ConfidenceScore,
		&c.VerificationState, &c.CreatedAt, &c.UpdatedAt,
	)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan company")
	}
	if err := fillCompanyJSON(&c, website, country, verSource, certifications, compliance, regions, leadTime, moq, lastVerified); err != nil {
		return nil, err
	}
	return &c, nil
}

// scanVendorRow scans the company columns plus the link role.
func scanVendorRow(row rowScanner) (*VendorRow, error) {
	var (
		vr                          VendorRow
		c                           = &vr.Company
		website, country, verSource sql.NullString
		certifications, compliance  string
		regions                     string
		leadTime, moq               sql.NullString
		lastVerified                sql.NullTime
		role                        string
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.CompanyType, &website, &country, &certifications, &compliance, &regions,
		&leadTime, &moq, &lastVerified, &verSource, &c.Status, &c.ConfidenceScore,
		&c.VerificationState, &c.CreatedAt, &c.UpdatedAt, &role,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan vendor row")
	}
	vr.Role = model.LinkRole(role)
	if err := fillCompanyJSON(c, website, country, verSource, certifications, compliance, regions, leadTime, moq, lastVerified); err != nil {
		return nil, err
	}
	return &vr, nil
}

// fillCompanyJSON decodes nullable and JSON columns into the company.
func fillCompanyJSON(
	c *model.Company,
	website, country, verSource sql.NullString,
	certifications, compliance, regions string,
	leadTime, moq sql.NullString,
	lastVerified sql.NullTime,
) error {
	c.Website = website.String
	c.HQCountry = country.String
	c.VerificationSource = verSource.String
	if lastVerified.Valid {
		t := lastVerified.Time.UTC()
		c.LastVerifiedAt = &t
	}

	var err error
	if c.Certifications, err = decodeList(certifications); err != nil {
		return err
	}
	if c.RegionsServed, err = decodeList(regions); err != nil {
		return err
	}
	if compliance != "" {
		comp, err := decodeOptJSON[model.Compliance](&compliance)
		if err != nil {
			return err
		}
		c.Compliance = *comp
	}
	if c.Compliance.PharmacopeiaSupported == nil {
		c.Compliance.PharmacopeiaSupported = []string{}
	}

	var lt *string
	if leadTime.Valid {
		lt = &leadTime.String
	}
	if c.LeadTimeDaysRange, err = decodeOptJSON[model.IntRange](lt); err != nil {
		return err
	}
	var mq *string
	if moq.Valid {
		mq = &moq.String
	}
	if c.MOQRange, err = decodeOptJSON[model.QuantityRange](mq); err != nil {
		return err
	}
	return nil
}

// companyArgs flattens a company into the column order used by inserts
// and updates (everything between id and the timestamps). Zero-value
// enums are normalized to the column defaults so callers never persist
// an out-of-range state.
func companyArgs(c *model.Company) ([]any, error) {
	certifications, err := encodeList(c.Certifications)
	if err != nil {
		return nil, err
	}
	regions, err := encodeList(c.RegionsServed)
	if err != nil {
		return nil, err
	}
	if c.Compliance.PharmacopeiaSupported == nil {
		c.Compliance.PharmacopeiaSupported = []string{}
	}
	compliance, err := encodeJSON(c.Compliance)
	if err != nil {
		return nil, err
	}
	leadTime, err := encodeOptJSON(c.LeadTimeDaysRange)
	if err != nil {
		return nil, err
	}
	moq, err := encodeOptJSON(c.MOQRange)
	if err != nil {
		return nil, err
	}

	if c.CompanyType == "" {
		c.CompanyType = model.CompanyTypeBoth
	}
	if c.Status == "" {
		c.Status = model.CompanyStatusActive
	}
	if c.VerificationState == "" {
		c.VerificationState = model.VerificationUnverified
	}

	return []any{
		c.Name, string(c.CompanyType), nullIfEmpty(c.Website), nullIfEmpty(c.HQCountry),
		certifications, compliance, regions, leadTime, moq,
		nullTime(c.LastVerifiedAt), nullIfEmpty(c.VerificationSource),
		string(c.Status), c.ConfidenceScore, string(c.VerificationState),
	}, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// scanProductType scans the product type column set.
func scanProductType(row rowScanner) (*model.ProductType, error) {
	var (
		pt                  model.ProductType
		keywords, pharmacos string
	)
	err := row.Scan(&pt.ID, &pt.Slug, &pt.Name, &pt.Description, &keywords, &pharmacos, &pt.UpdatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan product type")
	}
	if pt.Keywords, err = decodeList(keywords); err != nil {
		return nil, err
	}
	if pt.Pharmacopeia, err = decodeList(pharmacos); err != nil {
		return nil, err
	}
	return &pt, nil
}

// filterPharmacopeia keeps product types carrying the given marker,
// capped at limit.
func filterPharmacopeia(items []model.ProductType, marker string, limit int) []model.ProductType {
	if marker == "" {
		return items
	}
	marker = strings.ToUpper(strings.TrimSpace(marker))
	var out []model.ProductType
	for _, pt := range items {
		for _, p := range pt.Pharmacopeia {
			if strings.ToUpper(p) == marker {
				out = append(out, pt)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}
