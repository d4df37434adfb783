// Package score ranks vendor search results by trust and fit signals.
package score

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/manuid/internal/model"
)

// Blend weights. Confidence and verification freshness dominate;
// certification fit and role are refinements.
const (
	weightConfidence = 0.32
	weightFreshness  = 0.24
	weightCompliance = 0.20
	weightCertMatch  = 0.14
	weightRoleBonus  = 0.06
	weightStatus     = 0.04
)

// Request carries the search criteria that influence ranking.
type Request struct {
	Certifications []string
	Role           model.LinkRole
}

// Score computes a vendor's rank for the request, with a reason string
// per component.
func Score(company *model.Company, req Request, matchedRole model.LinkRole) (float64, []string) {
	var reasons []string

	freshness, freshnessReason := freshnessScore(company.LastVerifiedAt, time.Now().UTC())
	reasons = append(reasons, freshnessReason)

	compliance, complianceReason := complianceCoverage(company)
	reasons = append(reasons, complianceReason)

	certScore, certReason := certificationMatch(company, req.Certifications)
	reasons = append(reasons, certReason)

	confidence := math.Max(0, math.Min(company.ConfidenceScore, 1))
	reasons = append(reasons, fmt.Sprintf("Confidence score %.2f", confidence))

	roleBonus := 0.0
	if req.Role != "" {
		if matchedRole == req.Role {
			roleBonus = 1.0
			reasons = append(reasons, fmt.Sprintf("Role matched requested: %s", req.Role))
		} else {
			reasons = append(reasons, "Role differs from requested")
		}
	}

	statusScore := 1.0
	switch company.Status {
	case model.CompanyStatusLimited:
		statusScore = 0.5
	case model.CompanyStatusInactive:
		statusScore = 0.1
	}

	total := weightConfidence*confidence +
		weightFreshness*freshness +
		weightCompliance*compliance +
		weightCertMatch*certScore +
		weightRoleBonus*roleBonus +
		weightStatus*statusScore

	return math.Round(total*10000) / 10000, reasons
}

// freshnessScore decays with the age of the last verification.
func freshnessScore(lastVerifiedAt *time.Time, now time.Time) (float64, string) {
	if lastVerifiedAt == nil || lastVerifiedAt.IsZero() {
		return 0.2, "No recent verification timestamp"
	}

	ageDays := int(now.Sub(lastVerifiedAt.UTC()).Hours() / 24)
	switch {
	case ageDays <= 30:
		return 1.0, "Verified in last 30 days"
	case ageDays <= 90:
		return 0.8, "Verified in last 90 days"
	case ageDays <= 180:
		return 0.6, "Verified in last 180 days"
	case ageDays <= 365:
		return 0.4, "Verified in last 1 year"
	default:
		return 0.2, "Verification is older than 1 year"
	}
}

// complianceCoverage rewards listed pharmacopeia support.
func complianceCoverage(company *model.Company) (float64, string) {
	supported := company.Compliance.PharmacopeiaSupported
	if len(supported) == 0 {
		return 0.3, "No pharmacopeia support listed"
	}
	score := math.Min(1.0, 0.35+0.1*float64(len(supported)))
	return score, fmt.Sprintf("Supports %d pharmacopeia standard(s)", len(supported))
}

// certificationMatch is the fraction of requested certifications the
// company holds; neutral when nothing was requested.
func certificationMatch(company *model.Company, requested []string) (float64, string) {
	if len(requested) == 0 {
		return 0.7, "No certification filter requested"
	}

	held := make(map[string]bool, len(company.Certifications))
	for _, c := range company.Certifications {
		held[strings.ToLower(c)] = true
	}

	var matched []string
	want := make(map[string]bool, len(requested))
	for _, c := range requested {
		want[strings.ToLower(c)] = true
	}
	for c := range want {
		if held[c] {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		return 0, "Certification filter not matched"
	}

	sort.Strings(matched)
	ratio := float64(len(matched)) / float64(len(want))
	return ratio, fmt.Sprintf("Matched certifications: %s", strings.Join(matched, ", "))
}
