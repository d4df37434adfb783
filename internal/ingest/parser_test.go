package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const directoryTableHTML = `<!DOCTYPE html>
<html><body>
<table>
  <tr><th>Vendor</th><th>Country</th><th>Email</th></tr>
  <tr>
    <td><a href="https://acme.example.com">Acme Chemical GmbH</a></td>
    <td>Germany</td>
    <td>sales@acme.example.com</td>
  </tr>
  <tr>
    <td>Beta Excipients Ltd</td>
    <td>India</td>
    <td>+91 22 1234 5678</td>
  </tr>
</table>
</body></html>`

func TestParse_TableRows(t *testing.T) {
	res, err := Parse(directoryTableHTML, "https://directory.example.com/list")
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)

	acme := res.Candidates[0]
	assert.Equal(t, "Acme Chemical GmbH", acme.Name)
	assert.Equal(t, "https://acme.example.com", acme.Website)
	assert.Equal(t, "sales@acme.example.com", acme.Email)
	assert.Equal(t, "Germany", acme.Country)

	beta := res.Candidates[1]
	assert.Equal(t, "Beta Excipients Ltd", beta.Name)
	assert.Empty(t, beta.Website)
	assert.Equal(t, "+912212345678", beta.Phone)
	assert.Equal(t, "India", beta.Country)

	// The header row is rejected.
	assert.GreaterOrEqual(t, res.SkippedRows, 1)
}

func TestParse_ListItems(t *testing.T) {
	page := `<html><body><ul>
	<li>Gamma Packaging Co | USA | info@gamma.example.com</li>
	<li>ok</li>
	</ul></body></html>`

	res, err := Parse(page, "https://directory.example.com")
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Equal(t, "Gamma Packaging Co", c.Name)
	assert.Equal(t, "info@gamma.example.com", c.Email)
	assert.Equal(t, "United States", c.Country)

	// "ok" is below the minimum fragment length.
	assert.GreaterOrEqual(t, res.SkippedRows, 1)
}

func TestParse_VendorDivs(t *testing.T) {
	page := `<html><body>
	<div class="vendor card">
	  Delta Valves SpA, Italy
	  <a href="/profile/delta">profile</a>
	</div>
	<div class="sidebar">not a listing but long enough</div>
	</body></html>`

	res, err := Parse(page, "https://directory.example.com/valves")
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Equal(t, "Delta Valves SpA", c.Name)
	assert.Equal(t, "https://directory.example.com/profile/delta", c.Website)
	assert.Equal(t, "Italy", c.Country)
}

func TestParse_JSONLD(t *testing.T) {
	page := `<html><head>
	<script type="application/ld+json">
	[
	  {"@type": "Organization", "name": "Epsilon Polymers",
	   "url": "https://epsilon.example.com",
	   "email": "contact@epsilon.example.com",
	   "telephone": "+33 1 42 68 53 00",
	   "address": {"addressCountry": "France"}},
	  {"@type": "WebSite", "name": "The Directory"}
	]
	</script>
	</head><body></body></html>`

	res, err := Parse(page, "https://directory.example.com")
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Equal(t, "Epsilon Polymers", c.Name)
	assert.Equal(t, "https://epsilon.example.com", c.Website)
	assert.Equal(t, "contact@epsilon.example.com", c.Email)
	assert.Equal(t, "France", c.Country)
}

func TestParse_SkipsLongProse(t *testing.T) {
	prose := strings.Repeat("procurement teams evaluate suppliers carefully ", 20)
	page := `<html><body><ul><li>` + prose + `</li></ul></body></html>`

	res, err := Parse(page, "https://directory.example.com")
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.GreaterOrEqual(t, res.SkippedRows, 1)
}

func TestParse_DedupeByWebsite(t *testing.T) {
	page := `<html><body>
	<script type="application/ld+json">
	{"@type": "Organization", "name": "Acme Chemical GmbH", "url": "https://acme.example.com"}
	</script>
	<ul>
	  <li>Acme Chemical GmbH | Germany | sales@acme.example.com <a href="https://acme.example.com">site</a></li>
	</ul>
	</body></html>`

	res, err := Parse(page, "https://directory.example.com")
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	// The richer duplicate (email + country) wins, and collapsing it
	// does not count as a skipped row.
	c := res.Candidates[0]
	assert.Equal(t, "sales@acme.example.com", c.Email)
	assert.Equal(t, "Germany", c.Country)
	assert.Zero(t, res.SkippedRows)
}

func TestCandidateName(t *testing.T) {
	assert.Equal(t, "Acme Chemical GmbH", candidateName("Acme Chemical GmbH | Germany | sales@acme.example.com"))
	assert.Equal(t, "", candidateName("Vendor Name Email"))
	assert.Equal(t, "", candidateName("12345 67890"))

	long := strings.Repeat("Word ", 20)
	name := candidateName(long)
	assert.Len(t, strings.Fields(name), 12)
}

func TestFirstPhone(t *testing.T) {
	assert.Equal(t, "+49891234567", firstPhone("call +49 (89) 123-4567 today"))
	assert.Equal(t, "", firstPhone("only 12345 here"))
	assert.Equal(t, "", firstPhone("order id 12345678901234567890"))
	// A zero after the plus sign is not a country code.
	assert.Equal(t, "", firstPhone("fax +0 123 456 789"))
}

func TestDetectCountry(t *testing.T) {
	assert.Equal(t, "United States", detectCountry("somewhere in the USA"))
	assert.Equal(t, "United Kingdom", detectCountry("London, UK"))
	assert.Equal(t, "", detectCountry("a ukulele factory"))
	assert.Equal(t, "South Korea", detectCountry("Seoul, Korea"))
}
