package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/manuid/internal/db"
	"github.com/sells-group/manuid/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_company":          `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`,
	"find_company_website": `SELECT ` + companyColumns + ` FROM companies WHERE website = $1 LIMIT 1`,
	"find_company_name":    `SELECT ` + companyColumns + ` FROM companies WHERE lower(name) = lower($1) LIMIT 1`,
	"list_contacts":        `SELECT id, company_id, type, name, email, phone, whatsapp, telegram FROM contacts WHERE company_id = $1 ORDER BY id ASC`,
	"insert_evidence":      `INSERT INTO company_evidences (company_id, source_record_id, field_name, field_value, confidence) VALUES ($1, $2, $3, $4, $5)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS product_types (
	id           BIGSERIAL PRIMARY KEY,
	slug         TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL UNIQUE,
	description  TEXT NOT NULL DEFAULT '',
	keywords     JSONB NOT NULL DEFAULT '[]',
	pharmacopeia JSONB NOT NULL DEFAULT '[]',
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS companies (
	id                   BIGSERIAL PRIMARY KEY,
	name                 TEXT NOT NULL,
	company_type         TEXT NOT NULL DEFAULT 'BOTH',
	website              TEXT,
	hq_country           TEXT,
	certifications       JSONB NOT NULL DEFAULT '[]',
	compliance           JSONB NOT NULL DEFAULT '{}',
	regions_served       JSONB NOT NULL DEFAULT '[]',
	lead_time_days_range JSONB,
	moq_range            JSONB,
	last_verified_at     TIMESTAMPTZ,
	verification_source  TEXT,
	status               TEXT NOT NULL DEFAULT 'ACTIVE',
	confidence_score     DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	verification_state   TEXT NOT NULL DEFAULT 'UNVERIFIED',
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id         BIGSERIAL PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	type       TEXT NOT NULL DEFAULT 'GENERAL',
	name       TEXT,
	email      TEXT,
	phone      TEXT,
	whatsapp   TEXT,
	telegram   TEXT
);

CREATE TABLE IF NOT EXISTS product_links (
	id              BIGSERIAL PRIMARY KEY,
	product_type_id BIGINT NOT NULL REFERENCES product_types(id) ON DELETE CASCADE,
	company_id      BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	role            TEXT NOT NULL DEFAULT 'PRIMARY_MANUFACTURER',
	notes           TEXT,
	UNIQUE (product_type_id, company_id)
);

CREATE TABLE IF NOT EXISTS source_records (
	id             BIGSERIAL PRIMARY KEY,
	source_name    TEXT NOT NULL,
	source_url     TEXT NOT NULL,
	retrieved_at   TIMESTAMPTZ NOT NULL,
	parser_version TEXT NOT NULL DEFAULT '1.0',
	http_status    INTEGER,
	content_hash   TEXT
);

CREATE TABLE IF NOT EXISTS company_evidences (
	id               BIGSERIAL PRIMARY KEY,
	company_id       BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	source_record_id BIGINT NOT NULL REFERENCES source_records(id) ON DELETE CASCADE,
	field_name       TEXT NOT NULL,
	field_value      TEXT,
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0.5
);

CREATE INDEX IF NOT EXISTS idx_companies_name ON companies(name);
CREATE INDEX IF NOT EXISTS idx_companies_website ON companies(website);
CREATE INDEX IF NOT EXISTS idx_companies_hq_country ON companies(hq_country);
CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts(company_id);
CREATE INDEX IF NOT EXISTS idx_product_links_company_id ON product_links(company_id);
CREATE INDEX IF NOT EXISTS idx_product_links_product_type_id ON product_links(product_type_id);
CREATE INDEX IF NOT EXISTS idx_source_records_source_url ON source_records(source_url);
CREATE INDEX IF NOT EXISTS idx_source_records_retrieved_at ON source_records(retrieved_at);
CREATE INDEX IF NOT EXISTS idx_evidences_company_id ON company_evidences(company_id);
CREATE INDEX IF NOT EXISTS idx_evidences_source_record_id ON company_evidences(source_record_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Product types ---

func (s *PostgresStore) ListProductTypes(ctx context.Context, filter ProductTypeFilter) ([]model.ProductType, error) {
	query := `SELECT id, slug, name, description, keywords, pharmacopeia, updated_at FROM product_types WHERE 1=1`
	var args []any

	if filter.Query != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Query)) + "%"
		args = append(args, pattern)
		query += ` AND (lower(name) LIKE $1 OR lower(slug) LIKE $1)`
	}
	query += ` ORDER BY name ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	fetchLimit := limit
	if filter.Pharmacopeia != "" {
		fetchLimit = limit * 3
	}
	args = append(args, fetchLimit)
	query += ` LIMIT $` + itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list product types")
	}
	defer rows.Close()

	var out []model.ProductType
	for rows.Next() {
		pt, err := scanProductType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pt)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate product types")
	}

	return filterPharmacopeia(out, filter.Pharmacopeia, limit), nil
}

func (s *PostgresStore) GetProductTypeBySlug(ctx context.Context, slug string) (*model.ProductType, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, slug, name, description, keywords, pharmacopeia, updated_at FROM product_types WHERE slug = $1`,
		slug,
	)
	return scanProductType(row)
}

func (s *PostgresStore) CreateProductType(ctx context.Context, pt *model.ProductType) error {
	keywords, err := encodeList(pt.Keywords)
	if err != nil {
		return err
	}
	pharmacos, err := encodeList(pt.Pharmacopeia)
	if err != nil {
		return err
	}
	pt.UpdatedAt = time.Now().UTC()

	err = s.pool.QueryRow(ctx,
		`INSERT INTO product_types (slug, name, description, keywords, pharmacopeia, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		pt.Slug, pt.Name, pt.Description, keywords, pharmacos, pt.UpdatedAt,
	).Scan(&pt.ID)
	return eris.Wrapf(err, "postgres: insert product type %s", pt.Slug)
}

func (s *PostgresStore) CountProductTypes(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM product_types`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count product types")
}

// --- Companies ---

func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	c, err := scanCompany(row)
	if err != nil {
		return nil, err
	}
	c.Contacts, err = s.ListContacts(ctx, c.ID)
	return c, err
}

func (s *PostgresStore) FindCompanyByWebsite(ctx context.Context, website string) (*model.Company, error) {
	if website == "" {
		return nil, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE website = $1 LIMIT 1`, website)
	c, err := scanCompany(row)
	if err != nil {
		return nil, err
	}
	c.Contacts, err = s.ListContacts(ctx, c.ID)
	return c, err
}

func (s *PostgresStore) FindCompanyByName(ctx context.Context, name string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE lower(name) = lower($1) LIMIT 1`, name)
	c, err := scanCompany(row)
	if err != nil {
		return nil, err
	}
	c.Contacts, err = s.ListContacts(ctx, c.ID)
	return c, err
}

func (s *PostgresStore) CreateCompany(ctx context.Context, c *model.Company) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	args, err := companyArgs(c)
	if err != nil {
		return err
	}
	args = append(args, now, now)

	err = s.pool.QueryRow(ctx,
		`INSERT INTO companies (name, company_type, website, hq_country, certifications, compliance, regions_served,
			lead_time_days_range, moq_range, last_verified_at, verification_source, status, confidence_score,
			verification_state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) RETURNING id`,
		args...,
	).Scan(&c.ID)
	return eris.Wrapf(err, "postgres: insert company %s", c.Name)
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, c *model.Company) error {
	c.UpdatedAt = time.Now().UTC()

	args, err := companyArgs(c)
	if err != nil {
		return err
	}
	args = append(args, c.UpdatedAt, c.ID)

	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET name = $1, company_type = $2, website = $3, hq_country = $4, certifications = $5,
			compliance = $6, regions_served = $7, lead_time_days_range = $8, moq_range = $9, last_verified_at = $10,
			verification_source = $11, status = $12, confidence_score = $13, verification_state = $14, updated_at = $15
		 WHERE id = $16`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company %d", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountCompanies(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count companies")
}

func (s *PostgresStore) SearchVendors(ctx context.Context, filter VendorFilter) ([]VendorRow, error) {
	query := `SELECT c.id, c.name, c.company_type, c.website, c.hq_country, c.certifications, c.compliance,
		c.regions_served, c.lead_time_days_range, c.moq_range, c.last_verified_at, c.verification_source,
		c.status, c.confidence_score, c.verification_state, c.created_at, c.updated_at, pl.role
	FROM companies c
	JOIN product_links pl ON pl.company_id = c.id
	JOIN product_types pt ON pt.id = pl.product_type_id
	WHERE 1=1`
	var args []any

	if filter.ProductTypeID > 0 {
		args = append(args, filter.ProductTypeID)
		query += ` AND pl.product_type_id = $` + itoa(len(args))
	} else if filter.Query != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Query)) + "%"
		args = append(args, pattern)
		n := itoa(len(args))
		query += ` AND (lower(pt.name) LIKE $` + n + ` OR lower(pt.slug) LIKE $` + n + `)`
	}
	if filter.Country != "" {
		args = append(args, filter.Country)
		query += ` AND lower(c.hq_country) = lower($` + itoa(len(args)) + `)`
	}
	if filter.CompanyType != "" {
		args = append(args, string(filter.CompanyType))
		query += ` AND c.company_type = $` + itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND c.status = $` + itoa(len(args))
	}
	if filter.MinConfidence > 0 {
		args = append(args, filter.MinConfidence)
		query += ` AND c.confidence_score >= $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search vendors")
	}
	defer rows.Close()

	var out []VendorRow
	for rows.Next() {
		vr, err := scanVendorRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *vr)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate vendors")
	}

	for i := range out {
		contacts, err := s.ListContacts(ctx, out[i].Company.ID)
		if err != nil {
			return nil, err
		}
		out[i].Company.Contacts = contacts
	}
	return out, nil
}

// --- Contacts ---

func (s *PostgresStore) ListContacts(ctx context.Context, companyID int64) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, type, name, email, phone, whatsapp, telegram FROM contacts WHERE company_id = $1 ORDER BY id ASC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list contacts for company %d", companyID)
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var (
			c                                      model.Contact
			name, email, phone, whatsapp, telegram sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Type, &name, &email, &phone, &whatsapp, &telegram); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		c.Name, c.Email, c.Phone = name.String, email.String, phone.String
		c.WhatsApp, c.Telegram = whatsapp.String, telegram.String
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate contacts")
}

func (s *PostgresStore) CreateContact(ctx context.Context, c *model.Contact) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO contacts (company_id, type, name, email, phone, whatsapp, telegram)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		c.CompanyID, string(c.Type), nullIfEmpty(c.Name), nullIfEmpty(c.Email), nullIfEmpty(c.Phone),
		nullIfEmpty(c.WhatsApp), nullIfEmpty(c.Telegram),
	).Scan(&c.ID)
	return eris.Wrapf(err, "postgres: insert contact for company %d", c.CompanyID)
}

func (s *PostgresStore) UpdateContact(ctx context.Context, c *model.Contact) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET type = $1, name = $2, email = $3, phone = $4, whatsapp = $5, telegram = $6 WHERE id = $7`,
		string(c.Type), nullIfEmpty(c.Name), nullIfEmpty(c.Email), nullIfEmpty(c.Phone),
		nullIfEmpty(c.WhatsApp), nullIfEmpty(c.Telegram), c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update contact %d", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Product links ---

func (s *PostgresStore) UpsertProductLink(ctx context.Context, link *model.ProductLink) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO product_links (product_type_id, company_id, role, notes) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (product_type_id, company_id) DO UPDATE SET role = EXCLUDED.role, notes = EXCLUDED.notes`,
		link.ProductTypeID, link.CompanyID, string(link.Role), nullIfEmpty(link.Notes),
	)
	return eris.Wrapf(err, "postgres: upsert product link %d/%d", link.ProductTypeID, link.CompanyID)
}

func (s *PostgresStore) ListProductTypesForCompany(ctx context.Context, companyID int64) ([]model.ProductType, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pt.id, pt.slug, pt.name, pt.description, pt.keywords, pt.pharmacopeia, pt.updated_at
		 FROM product_types pt
		 JOIN product_links pl ON pl.product_type_id = pt.id
		 WHERE pl.company_id = $1
		 ORDER BY pt.name ASC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: product types for company %d", companyID)
	}
	defer rows.Close()

	var out []model.ProductType
	for rows.Next() {
		pt, err := scanProductType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pt)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate product types")
}

// --- Source records and evidence ---

func (s *PostgresStore) CreateSourceRecord(ctx context.Context, sr *model.SourceRecord) error {
	if sr.RetrievedAt.IsZero() {
		sr.RetrievedAt = time.Now().UTC()
	}
	if sr.ParserVersion == "" {
		sr.ParserVersion = "1.0"
	}

	var httpStatus any
	if sr.HTTPStatus != 0 {
		httpStatus = sr.HTTPStatus
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO source_records (source_name, source_url, retrieved_at, parser_version, http_status, content_hash)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		sr.SourceName, sr.SourceURL, sr.RetrievedAt, sr.ParserVersion, httpStatus, nullIfEmpty(sr.ContentHash),
	).Scan(&sr.ID)
	return eris.Wrapf(err, "postgres: insert source record %s", sr.SourceURL)
}

func (s *PostgresStore) ListSourceRecords(ctx context.Context, limit int) ([]model.SourceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_name, source_url, retrieved_at, parser_version, http_status, content_hash
		 FROM source_records ORDER BY retrieved_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list source records")
	}
	defer rows.Close()

	var out []model.SourceRecord
	for rows.Next() {
		var (
			sr         model.SourceRecord
			httpStatus sql.NullInt64
			hash       sql.NullString
		)
		if err := rows.Scan(&sr.ID, &sr.SourceName, &sr.SourceURL, &sr.RetrievedAt, &sr.ParserVersion, &httpStatus, &hash); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source record")
		}
		sr.HTTPStatus = int(httpStatus.Int64)
		sr.ContentHash = hash.String
		out = append(out, sr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate source records")
}

func (s *PostgresStore) SourceRecordExists(ctx context.Context, sourceURL string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM source_records WHERE source_url = $1`, sourceURL,
	).Scan(&n)
	return n > 0, eris.Wrap(err, "postgres: source record exists")
}

func (s *PostgresStore) AddEvidence(ctx context.Context, evidence []model.Evidence) error {
	if len(evidence) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin evidence tx")
	}
	defer tx.Rollback(ctx)

	for _, ev := range evidence {
		_, err := tx.Exec(ctx,
			`INSERT INTO company_evidences (company_id, source_record_id, field_name, field_value, confidence) VALUES ($1, $2, $3, $4, $5)`,
			ev.CompanyID, ev.SourceRecordID, ev.FieldName, nullIfEmpty(ev.FieldValue), ev.Confidence,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert evidence %s for company %d", ev.FieldName, ev.CompanyID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit evidence")
}

func (s *PostgresStore) ListEvidenceURLs(ctx context.Context, companyID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT sr.source_url
		 FROM source_records sr
		 JOIN company_evidences ev ON ev.source_record_id = sr.id
		 WHERE ev.company_id = $1
		 ORDER BY sr.source_url ASC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: evidence urls for company %d", companyID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "postgres: scan evidence url")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate evidence urls")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
