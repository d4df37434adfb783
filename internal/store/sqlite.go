package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/manuid/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS product_types (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	slug         TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL UNIQUE,
	description  TEXT NOT NULL DEFAULT '',
	keywords     TEXT NOT NULL DEFAULT '[]',
	pharmacopeia TEXT NOT NULL DEFAULT '[]',
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS companies (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	name                 TEXT NOT NULL,
	company_type         TEXT NOT NULL DEFAULT 'BOTH',
	website              TEXT,
	hq_country           TEXT,
	certifications       TEXT NOT NULL DEFAULT '[]',
	compliance           TEXT NOT NULL DEFAULT '{}',
	regions_served       TEXT NOT NULL DEFAULT '[]',
	lead_time_days_range TEXT,
	moq_range            TEXT,
	last_verified_at     DATETIME,
	verification_source  TEXT,
	status               TEXT NOT NULL DEFAULT 'ACTIVE',
	confidence_score     REAL NOT NULL DEFAULT 0.5,
	verification_state   TEXT NOT NULL DEFAULT 'UNVERIFIED',
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	type       TEXT NOT NULL DEFAULT 'GENERAL',
	name       TEXT,
	email      TEXT,
	phone      TEXT,
	whatsapp   TEXT,
	telegram   TEXT
);

CREATE TABLE IF NOT EXISTS product_links (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	product_type_id INTEGER NOT NULL REFERENCES product_types(id) ON DELETE CASCADE,
	company_id      INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	role            TEXT NOT NULL DEFAULT 'PRIMARY_MANUFACTURER',
	notes           TEXT,
	UNIQUE (product_type_id, company_id)
);

CREATE TABLE IF NOT EXISTS source_records (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	source_name    TEXT NOT NULL,
	source_url     TEXT NOT NULL,
	retrieved_at   DATETIME NOT NULL,
	parser_version TEXT NOT NULL DEFAULT '1.0',
	http_status    INTEGER,
	content_hash   TEXT
);

CREATE TABLE IF NOT EXISTS company_evidences (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id       INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	source_record_id INTEGER NOT NULL REFERENCES source_records(id) ON DELETE CASCADE,
	field_name       TEXT NOT NULL,
	field_value      TEXT,
	confidence       REAL NOT NULL DEFAULT 0.5
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Product types ---

func (s *SQLiteStore) ListProductTypes(ctx context.Context, filter ProductTypeFilter) ([]model.ProductType, error) {
	query := `SELECT id, slug, name, description, keywords, pharmacopeia, updated_at FROM product_types WHERE 1=1`
	var args []any

	if filter.Query != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Query)) + "%"
		query += ` AND (lower(name) LIKE ? OR lower(slug) LIKE ?)`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY name ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	// Pharmacopeia filtering inspects a JSON column; over-fetch and
	// filter in memory for portable behavior across backends.
	fetchLimit := limit
	if filter.Pharmacopeia != "" {
		fetchLimit = limit * 3
	}
	query += ` LIMIT ?`
	args = append(args, fetchLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list product types")
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
		return nil, eris.Wrap(err, "sqlite: iterate product types")
	}

	return filterPharmacopeia(out, filter.Pharmacopeia, limit), nil
}

func (s *SQLiteStore) GetProductTypeBySlug(ctx context.Context, slug string) (*model.ProductType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, description, keywords, pharmacopeia, updated_at FROM product_types WHERE slug = ?`,
		slug,
	)
	return scanProductType(row)
}

func (s *SQLiteStore) CreateProductType(ctx context.Context, pt *model.ProductType) error {
	keywords, err := encodeList(pt.Keywords)
	if err != nil {
		return err
	}
	pharmacos, err := encodeList(pt.Pharmacopeia)
	if err != nil {
		return err
	}
	pt.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO product_types (slug, name, description, keywords, pharmacopeia, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		pt.Slug, pt.Name, pt.Description, keywords, pharmacos, pt.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert product type %s", pt.Slug)
	}
	pt.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: product type insert id")
}

func (s *SQLiteStore) CountProductTypes(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM product_types`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count product types")
}

// --- Companies ---

func (s *SQLiteStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
	c, err := scanCompany(row)
	if err != nil {
		return nil, err
	}
	c.Contacts, err = s.ListContacts(ctx, c.ID)
	return c, err
}

func (s *SQLiteStore) FindCompanyByWebsite(ctx context.Context, website string) (*model.Company, error) {
	if website == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE website = ? LIMIT 1`, website)
	c, err := scanCompany(row)
	if err != nil {
		return nil, err
	}
	c.Contacts, err = s.ListContacts(ctx, c.ID)
	return c, err
}

func (s *SQLiteStore) FindCompanyByName(ctx context.Context, name string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE lower(name) = lower(?) LIMIT 1`, name)
	c, err := scanCompany(row)
	if err != nil {
		return nil, err
	}
	c.Contacts, err = s.ListContacts(ctx, c.ID)
	return c, err
}

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *model.Company) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	args, err := companyArgs(c)
	if err != nil {
		return err
	}
	args = append(args, now, now)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (name, company_type, website, hq_country, certifications, compliance, regions_served,
			lead_time_days_range, moq_range, last_verified_at, verification_source, status, confidence_score,
			verification_state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert company %s", c.Name)
	}
	c.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: company insert id")
}

func (s *SQLiteStore) UpdateCompany(ctx context.Context, c *model.Company) error {
	c.UpdatedAt = time.Now().UTC()

	args, err := companyArgs(c)
	if err != nil {
		return err
	}
	args = append(args, c.UpdatedAt, c.ID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET name = ?, company_type = ?, website = ?, hq_country = ?, certifications = ?,
			compliance = ?, regions_served = ?, lead_time_days_range = ?, moq_range = ?, last_verified_at = ?,
			verification_source = ?, status = ?, confidence_score = ?, verification_state = ?, updated_at = ?
		 WHERE id = ?`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company %d", c.ID)
	}
	return checkRowsAffected(res, "company")
}

func (s *SQLiteStore) CountCompanies(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count companies")
}

func (s *SQLiteStore) SearchVendors(ctx context.Context, filter VendorFilter) ([]VendorRow, error) {
	query := `SELECT c.id, c.name, c.company_type, c.website, c.hq_country, c.certifications, c.compliance,
		c.regions_served, c.lead_time_days_range, c.moq_range, c.last_verified_at, c.verification_source,
		c.status, c.confidence_score, c.verification_state, c.created_at, c.updated_at, pl.role
	FROM companies c
	JOIN product_links pl ON pl.company_id = c.id
	JOIN product_types pt ON pt.id = pl.product_type_id
	WHERE 1=1`
	var args []any

	if filter.ProductTypeID > 0 {
		query += ` AND pl.product_type_id = ?`
		args = append(args, filter.ProductTypeID)
	} else if filter.Query != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Query)) + "%"
		query += ` AND (lower(pt.name) LIKE ? OR lower(pt.slug) LIKE ?)`
		args = append(args, pattern, pattern)
	}
	if filter.Country != "" {
		query += ` AND lower(c.hq_country) = lower(?)`
		args = append(args, filter.Country)
	}
	if filter.CompanyType != "" {
		query += ` AND c.company_type = ?`
		args = append(args, string(filter.CompanyType))
	}
	if filter.Status != "" {
		query += ` AND c.status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.MinConfidence > 0 {
		query += ` AND c.confidence_score >= ?`
		args = append(args, filter.MinConfidence)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search vendors")
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
		return nil, eris.Wrap(err, "sqlite: iterate vendors")
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

func (s *SQLiteStore) ListContacts(ctx context.Context, companyID int64) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, type, name, email, phone, whatsapp, telegram FROM contacts WHERE company_id = ? ORDER BY id ASC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list contacts for company %d", companyID)
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var (
			c                                      model.Contact
			name, email, phone, whatsapp, telegram sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Type, &name, &email, &phone, &whatsapp, &telegram); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		c.Name, c.Email, c.Phone = name.String, email.String, phone.String
		c.WhatsApp, c.Telegram = whatsapp.String, telegram.String
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate contacts")
}

func (s *SQLiteStore) CreateContact(ctx context.Context, c *model.Contact) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (company_id, type, name, email, phone, whatsapp, telegram) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.CompanyID, string(c.Type), nullIfEmpty(c.Name), nullIfEmpty(c.Email), nullIfEmpty(c.Phone),
		nullIfEmpty(c.WhatsApp), nullIfEmpty(c.Telegram),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert contact for company %d", c.CompanyID)
	}
	c.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: contact insert id")
}

func (s *SQLiteStore) UpdateContact(ctx context.Context, c *model.Contact) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET type = ?, name = ?, email = ?, phone = ?, whatsapp = ?, telegram = ? WHERE id = ?`,
		string(c.Type), nullIfEmpty(c.Name), nullIfEmpty(c.Email), nullIfEmpty(c.Phone),
		nullIfEmpty(c.WhatsApp), nullIfEmpty(c.Telegram), c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update contact %d", c.ID)
	}
	return checkRowsAffected(res, "contact")
}

// --- Product links ---

func (s *SQLiteStore) UpsertProductLink(ctx context.Context, link *model.ProductLink) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO product_links (product_type_id, company_id, role, notes) VALUES (?, ?, ?, ?)
		 ON CONFLICT (product_type_id, company_id) DO UPDATE SET role = excluded.role, notes = excluded.notes`,
		link.ProductTypeID, link.CompanyID, string(link.Role), nullIfEmpty(link.Notes),
	)
	return eris.Wrapf(err, "sqlite: upsert product link %d/%d", link.ProductTypeID, link.CompanyID)
}

func (s *SQLiteStore) ListProductTypesForCompany(ctx context.Context, companyID int64) ([]model.ProductType, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pt.id, pt.slug, pt.name, pt.description, pt.keywords, pt.pharmacopeia, pt.updated_at
		 FROM product_types pt
		 JOIN product_links pl ON pl.product_type_id = pt.id
		 WHERE pl.company_id = ?
		 ORDER BY pt.name ASC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: product types for company %d", companyID)
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
	return out, eris.Wrap(rows.Err(), "sqlite: iterate product types")
}

// --- Source records and evidence ---

func (s *SQLiteStore) CreateSourceRecord(ctx context.Context, sr *model.SourceRecord) error {
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
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO source_records (source_name, source_url, retrieved_at, parser_version, http_status, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sr.SourceName, sr.SourceURL, sr.RetrievedAt, sr.ParserVersion, httpStatus, nullIfEmpty(sr.ContentHash),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert source record %s", sr.SourceURL)
	}
	sr.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: source record insert id")
}

func (s *SQLiteStore) ListSourceRecords(ctx context.Context, limit int) ([]model.SourceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_name, source_url, retrieved_at, parser_version, http_status, content_hash
		 FROM source_records ORDER BY retrieved_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list source records")
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
			return nil, eris.Wrap(err, "sqlite: scan source record")
		}
		sr.HTTPStatus = int(httpStatus.Int64)
		sr.ContentHash = hash.String
		out = append(out, sr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate source records")
}

func (s *SQLiteStore) SourceRecordExists(ctx context.Context, sourceURL string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM source_records WHERE source_url = ?`, sourceURL,
	).Scan(&n)
	return n > 0, eris.Wrap(err, "sqlite: source record exists")
}

func (s *SQLiteStore) AddEvidence(ctx context.Context, evidence []model.Evidence) error {
	if len(evidence) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin evidence tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO company_evidences (company_id, source_record_id, field_name, field_value, confidence)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare evidence insert")
	}
	defer stmt.Close()

	for _, ev := range evidence {
		if _, err := stmt.ExecContext(ctx, ev.CompanyID, ev.SourceRecordID, ev.FieldName, nullIfEmpty(ev.FieldValue), ev.Confidence); err != nil {
			return eris.Wrapf(err, "sqlite: insert evidence %s for company %d", ev.FieldName, ev.CompanyID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit evidence")
}

func (s *SQLiteStore) ListEvidenceURLs(ctx context.Context, companyID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT sr.source_url
		 FROM source_records sr
		 JOIN company_evidences ev ON ev.source_record_id = sr.id
		 WHERE ev.company_id = ?
		 ORDER BY sr.source_url ASC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: evidence urls for company %d", companyID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evidence url")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate evidence urls")
}

// checkRowsAffected maps zero-row updates to ErrNotFound.
func checkRowsAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s", entity)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
