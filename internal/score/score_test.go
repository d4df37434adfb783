package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/manuid/internal/model"
)

func verifiedAt(daysAgo int) *time.Time {
	ts := time.Now().UTC().AddDate(0, 0, -daysAgo)
	return &ts
}

func TestScore_HealthyVendor(t *testing.T) {
	company := &model.Company{
		Name:            "Acme Chemical GmbH",
		ConfidenceScore: 0.9,
		Status:          model.CompanyStatusActive,
		LastVerifiedAt:  verifiedAt(5),
		Compliance: model.Compliance{
			PharmacopeiaSupported: []string{"USP", "EP"},
		},
	}

	got, reasons := Score(company, Request{}, model.LinkRolePrimaryManufacturer)
	// 0.32*0.9 + 0.24*1.0 + 0.20*0.55 + 0.14*0.7 + 0.04*1.0
	assert.InDelta(t, 0.776, got, 1e-9)
	assert.Contains(t, reasons, "Verified in last 30 days")
	assert.Contains(t, reasons, "Supports 2 pharmacopeia standard(s)")
	assert.Contains(t, reasons, "No certification filter requested")
	assert.Contains(t, reasons, "Confidence score 0.90")
}

func TestScore_ColdVendor(t *testing.T) {
	company := &model.Company{
		Name:   "Stale Supplies Ltd",
		Status: model.CompanyStatusInactive,
	}

	got, reasons := Score(company, Request{Certifications: []string{"ISO 13485"}}, "")
	// 0.24*0.2 + 0.20*0.3 + 0.04*0.1
	assert.InDelta(t, 0.112, got, 1e-9)
	assert.Contains(t, reasons, "No recent verification timestamp")
	assert.Contains(t, reasons, "No pharmacopeia support listed")
	assert.Contains(t, reasons, "Certification filter not matched")
}

func TestScore_RoleBonus(t *testing.T) {
	company := &model.Company{Status: model.CompanyStatusActive}

	req := Request{Role: model.LinkRolePrimaryManufacturer}
	withBonus, reasons := Score(company, req, model.LinkRolePrimaryManufacturer)
	withoutBonus, missReasons := Score(company, req, model.LinkRoleAuthorizedDistributor)

	assert.InDelta(t, weightRoleBonus, withBonus-withoutBonus, 1e-9)
	assert.Contains(t, reasons, "Role matched requested: PRIMARY_MANUFACTURER")
	assert.Contains(t, missReasons, "Role differs from requested")
}

func TestScore_StatusPenalty(t *testing.T) {
	active := &model.Company{Status: model.CompanyStatusActive}
	limited := &model.Company{Status: model.CompanyStatusLimited}
	inactive := &model.Company{Status: model.CompanyStatusInactive}

	a, _ := Score(active, Request{}, "")
	l, _ := Score(limited, Request{}, "")
	i, _ := Score(inactive, Request{}, "")

	assert.Greater(t, a, l)
	assert.Greater(t, l, i)
}

func TestScore_ConfidenceClamped(t *testing.T) {
	over := &model.Company{Status: model.CompanyStatusActive, ConfidenceScore: 1.7}
	max := &model.Company{Status: model.CompanyStatusActive, ConfidenceScore: 1.0}

	a, _ := Score(over, Request{}, "")
	b, _ := Score(max, Request{}, "")
	assert.Equal(t, b, a)
}

func TestFreshnessScore(t *testing.T) {
	now := time.Now().UTC()
	for daysAgo, want := range map[int]float64{
		10:  1.0,
		60:  0.8,
		150: 0.6,
		300: 0.4,
		400: 0.2,
	} {
		got, _ := freshnessScore(verifiedAt(daysAgo), now)
		assert.Equal(t, want, got, "days ago %d", daysAgo)
	}

	got, reason := freshnessScore(nil, now)
	assert.Equal(t, 0.2, got)
	assert.Equal(t, "No recent verification timestamp", reason)
}

func TestComplianceCoverage_Caps(t *testing.T) {
	company := &model.Company{Compliance: model.Compliance{
		PharmacopeiaSupported: []string{"USP", "EP", "JP", "BP", "IP", "ChP", "KP"},
	}}

	got, _ := complianceCoverage(company)
	assert.Equal(t, 1.0, got)
}

func TestCertificationMatch(t *testing.T) {
	company := &model.Company{Certifications: []string{"ISO 9001", "ISO 13485"}}

	ratio, reason := certificationMatch(company, []string{"iso 13485", "GMP"})
	assert.InDelta(t, 0.5, ratio, 1e-9)
	assert.Equal(t, "Matched certifications: iso 13485", reason)

	full, _ := certificationMatch(company, []string{"ISO 9001"})
	assert.Equal(t, 1.0, full)

	neutral, _ := certificationMatch(company, nil)
	assert.Equal(t, 0.7, neutral)
}
