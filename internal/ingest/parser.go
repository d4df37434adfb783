package ingest

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// ParserVersion tags source records with the extraction logic revision.
const ParserVersion = "1.0"

// Candidate is a company extracted from a vendor directory page.
type Candidate struct {
	Name    string
	Website string
	Email   string
	Phone   string
	Country string
	RawText string
}

// ParseResult holds the deduplicated candidates and the count of rows
// that were inspected but rejected.
type ParseResult struct {
	Candidates  []Candidate
	SkippedRows int
}

var (
	emailRE      = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	phoneRE      = regexp.MustCompile(`\+?[0-9][0-9\s().-]{6,}[0-9]`)
	whitespaceRE = regexp.MustCompile(`\s+`)
	nameSplitRE  = regexp.MustCompile(`\||-|,|;|\x{2022}`)
	letterRE     = regexp.MustCompile(`[A-Za-z]`)
)

// commonCountries maps lowercase aliases found in directory rows to
// canonical country names.
var commonCountries = map[string]string{
	"usa":            "United States",
	"united states":  "United States",
	"uk":             "United Kingdom",
	"united kingdom": "United Kingdom",
	"germany":        "Germany",
	"france":         "France",
	"italy":          "Italy",
	"spain":          "Spain",
	"india":          "India",
	"china":          "China",
	"japan":          "Japan",
	"switzerland":    "Switzerland",
	"netherlands":    "Netherlands",
	"belgium":        "Belgium",
	"singapore":      "Singapore",
	"south korea":    "South Korea",
	"korea":          "South Korea",
}

// genericHeaderTokens are words that make up directory header rows
// rather than company names.
var genericHeaderTokens = map[string]bool{
	"vendor": true, "vendors": true, "supplier": true, "suppliers": true,
	"name": true, "email": true, "country": true, "phone": true,
}

// Parse extracts company candidates from a vendor directory page. It
// reads JSON-LD Organization blocks first, then falls back to heuristics
// over table rows, list items, and vendor/supplier divs.
func Parse(pageHTML, baseURL string) (*ParseResult, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: parse html")
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: parse base url %s", baseURL)
	}

	var (
		candidates []Candidate
		skipped    int
	)

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch {
		case n.Data == "script" && attrVal(n, "type") == "application/ld+json":
			candidates = append(candidates, fromJSONLD(textContent(n), base)...)
		case n.Data == "tr", n.Data == "li",
			n.Data == "div" && hasAnyClass(n, "vendor", "supplier"):
			c := fromNode(n, base)
			if c == nil {
				skipped++
				return
			}
			candidates = append(candidates, *c)
		}
	})

	deduped, dropped := dedupe(candidates)
	return &ParseResult{Candidates: deduped, SkippedRows: skipped + dropped}, nil
}

// walk visits every node in depth-first order.
func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAnyClass(n *html.Node, classes ...string) bool {
	have := strings.Fields(attrVal(n, "class"))
	for _, c := range classes {
		for _, h := range have {
			if h == c {
				return true
			}
		}
	}
	return false
}

// textContent renders the visible text of a subtree with collapsed
// whitespace.
func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return cleanText(b.String())
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// firstElement returns the first descendant with the given tag.
func firstElement(n *html.Node, tag string) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) {
		if found == nil && c.Type == html.ElementNode && c.Data == tag {
			found = c
		}
	})
	return found
}

// hasChildElement reports whether the subtree contains the given tag.
func hasChildElement(n *html.Node, tag string) bool {
	found := false
	walk(n, func(c *html.Node) {
		if c.Type == html.ElementNode && c.Data == tag {
			found = true
		}
	})
	return found
}

// firstLink returns the first absolute http(s) href in the subtree,
// resolved against base.
func firstLink(n *html.Node, base *url.URL) string {
	var link string
	walk(n, func(c *html.Node) {
		if link != "" || c.Type != html.ElementNode || c.Data != "a" {
			return
		}
		href := strings.TrimSpace(attrVal(c, "href"))
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if (abs.Scheme == "http" || abs.Scheme == "https") && abs.Hostname() != "" {
			link = abs.String()
		}
	})
	return link
}

func firstEmail(text string) string {
	if m := emailRE.FindString(text); m != "" {
		return strings.ToLower(m)
	}
	return ""
}

// firstPhone returns the first candidate that parses as a possible
// phone number, formatted E.164. Without a region hint only numbers
// carrying a country code can be validated; the rest are dropped.
func firstPhone(text string) string {
	for _, m := range phoneRE.FindAllString(text, -1) {
		num, err := phonenumbers.Parse(strings.TrimSpace(m), "")
		if err != nil || !phonenumbers.IsPossibleNumber(num) {
			continue
		}
		return phonenumbers.Format(num, phonenumbers.E164)
	}
	return ""
}

func detectCountry(text string) string {
	lower := strings.ToLower(text)
	for alias, country := range commonCountries {
		if containsWord(lower, alias) {
			return country
		}
	}
	return ""
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(haystack[start-1])
		afterOK := end == len(haystack) || !isWordByte(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// fromNode extracts a candidate from a table row, list item, or vendor
// div, or returns nil when the node does not look like a company entry.
func fromNode(n *html.Node, base *url.URL) *Candidate {
	// Table header rows carry th cells without td cells.
	if n.Data == "tr" && hasChildElement(n, "th") && !hasChildElement(n, "td") {
		return nil
	}

	text := textContent(n)
	if len(text) < 5 {
		return nil
	}

	website := firstLink(n, base)
	email := firstEmail(text)
	phone := firstPhone(text)
	country := detectCountry(text)

	// Long prose without any contact signal is page copy, not a listing.
	if len(strings.Fields(text)) > 60 && website == "" && email == "" && phone == "" {
		return nil
	}

	// Table rows concatenate all cells; the first cell carries the name.
	nameText := text
	if n.Data == "tr" {
		if td := firstElement(n, "td"); td != nil {
			if t := textContent(td); t != "" {
				nameText = t
			}
		}
	}

	name := candidateName(nameText)
	if name == "" {
		return nil
	}

	raw := text
	if len(raw) > 5000 {
		raw = raw[:5000]
	}
	return &Candidate{
		Name:    name,
		Website: website,
		Email:   email,
		Phone:   phone,
		Country: country,
		RawText: raw,
	}
}

// candidateName derives a display name from row text: the first segment
// before a separator, capped at 12 words. Header-token-only and
// letterless names are rejected.
func candidateName(text string) string {
	first := strings.TrimSpace(nameSplitRE.Split(text, 2)[0])
	name := first
	if len(first) < 3 {
		name = text
		if len(name) > 120 {
			name = name[:120]
		}
	}

	words := strings.Fields(name)
	if len(words) > 0 {
		allGeneric := true
		for _, w := range words {
			if !genericHeaderTokens[strings.ToLower(w)] {
				allGeneric = false
				break
			}
		}
		if allGeneric {
			return ""
		}
	}

	if !letterRE.MatchString(name) {
		return ""
	}
	if len(words) > 12 {
		name = strings.Join(words[:12], " ")
	}
	if len(name) < 3 {
		return ""
	}
	return name
}

// fromJSONLD extracts Organization entries from a JSON-LD block.
func fromJSONLD(content string, base *url.URL) []Candidate {
	if content == "" {
		return nil
	}
	var payload any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil
	}

	var objs []map[string]any
	switch v := payload.(type) {
	case map[string]any:
		objs = []map[string]any{v}
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				objs = append(objs, obj)
			}
		}
	default:
		return nil
	}

	var out []Candidate
	for _, obj := range objs {
		itemType := strings.ToLower(stringField(obj, "@type"))
		if !strings.Contains(itemType, "organization") && !strings.Contains(itemType, "corporation") {
			continue
		}
		name := cleanText(stringField(obj, "name"))
		if name == "" {
			continue
		}

		website := stringField(obj, "url")
		if website == "" {
			if sameAs, ok := obj["sameAs"].([]any); ok && len(sameAs) > 0 {
				website, _ = sameAs[0].(string)
			} else {
				website = stringField(obj, "sameAs")
			}
		}
		if website != "" {
			if ref, err := url.Parse(website); err == nil {
				website = base.ResolveReference(ref).String()
			} else {
				website = ""
			}
		}

		var country string
		if addr, ok := obj["address"].(map[string]any); ok {
			country = cleanText(stringField(addr, "addressCountry"))
		}

		raw, _ := json.Marshal(obj)
		out = append(out, Candidate{
			Name:    name,
			Website: website,
			Email:   cleanText(stringField(obj, "email")),
			Phone:   cleanText(stringField(obj, "telephone")),
			Country: country,
			RawText: cleanText(string(raw)),
		})
	}
	return out
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

// dedupe collapses candidates by website (or name when no website),
// keeping the one with more populated fields. Returns the survivors and
// the number of keyless or short-name drops; deduped duplicates are not
// counted.
func dedupe(candidates []Candidate) ([]Candidate, int) {
	type entry struct {
		c     Candidate
		order int
	}
	seen := make(map[string]entry)
	order := make([]string, 0, len(candidates))
	dropped := 0

	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c.Website))
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(c.Name))
		}
		if key == "" || len(c.Name) < 3 {
			dropped++
			continue
		}

		existing, ok := seen[key]
		if !ok {
			seen[key] = entry{c: c, order: len(order)}
			order = append(order, key)
			continue
		}
		// Duplicates are collapsed, not skipped; keep the richer record.
		if fieldCount(c) > fieldCount(existing.c) {
			existing.c = c
			seen[key] = existing
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, seen[key].c)
	}
	return out, dropped
}

func fieldCount(c Candidate) int {
	n := 0
	for _, f := range []string{c.Website, c.Email, c.Phone, c.Country} {
		if f != "" {
			n++
		}
	}
	return n
}
