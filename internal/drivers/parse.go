package drivers

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// ExtractionError reports a selector miss or malformed page structure.
// The offending record is dropped; the run continues.
type ExtractionError struct {
	URL    string
	Entity harvester.EntityType
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s at %s: %s", e.Entity, e.URL, e.Reason)
}

// idParam tolerates the portal's assorted link shapes: the identifier is the
// value of an id-like query parameter up to the next separator.
var idParam = regexp.MustCompile(`(?i)[?&;](?:id|idE[a-z]*|idCert[a-z]*|idCentro|codigo)=([^&#;]+)`)

// ExtractIdentifier pulls the entity identifier out of a listing link.
func ExtractIdentifier(href string) (string, bool) {
	m := idParam.FindStringSubmatch(href)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

func parseDocument(page harvester.Page) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &ExtractionError{URL: page.URL, Reason: fmt.Sprintf("parse html: %v", err)}
	}
	return doc, nil
}

// selectRows applies the primary strategy chain, then the fallback chain.
// The second return value reports whether the primary strategy matched.
func selectRows(doc *goquery.Document, sel ListingSelectors) (*goquery.Selection, bool) {
	for _, s := range sel.PrimaryRows {
		if rows := doc.Find(s); rows.Length() > 0 {
			return rows, true
		}
	}
	for _, s := range sel.FallbackRows {
		if rows := doc.Find(s); rows.Length() > 0 {
			return rows, false
		}
	}
	return nil, false
}

// nextPageURL resolves the pagination link, trying the selector chain in
// priority order and falling back to a link-text scan.
func nextPageURL(doc *goquery.Document, sel ListingSelectors, base *url.URL) string {
	for _, s := range sel.NextPage {
		if a := doc.Find(s).First(); a.Length() > 0 {
			if href, ok := a.Attr("href"); ok && usableHref(href) {
				return resolveURL(base, href)
			}
		}
	}
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := CollapseWhitespace(a.Text())
		for _, want := range sel.NextPageText {
			if strings.EqualFold(text, want) {
				if href, ok := a.Attr("href"); ok && usableHref(href) {
					found = resolveURL(base, href)
					return false
				}
			}
		}
		return true
	})
	return found
}

func usableHref(href string) bool {
	href = strings.TrimSpace(href)
	return href != "" && href != "#" && !strings.HasPrefix(strings.ToLower(href), "javascript:")
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// fieldLabels maps the portal's Spanish labels (folded) to canonical field
// names. Unknown labels are kept under a sanitized form of the label itself.
var fieldLabels = map[string]string{
	"CODIGO":                "code",
	"CLAVE":                 "code",
	"TITULO":                "title",
	"NOMBRE":                "name",
	"PROPOSITO":             "purpose",
	"DESCRIPCION":           "description",
	"NIVEL":                 "level",
	"COMITE":                "committee",
	"SECTOR":                "sector",
	"VIGENCIA":              "validity",
	"FECHA DE PUBLICACION":  "published_at",
	"TELEFONO":              "phone",
	"CORREO":                "email",
	"CORREO ELECTRONICO":    "email",
	"DIRECCION":             "address",
	"ESTADO":                "state",
	"ENTIDAD FEDERATIVA":    "state",
	"MUNICIPIO":             "municipality",
	"RESPONSABLE":           "contact_name",
	"REPRESENTANTE":         "contact_name",
	"TIPO":                  "kind",
	"ESTATUS":               "status",
	"ORGANISMO CERTIFICADOR": "certifier_name",
}

func canonicalFieldName(label string) string {
	folded := strings.TrimSuffix(foldText(label), ":")
	folded = strings.TrimSpace(folded)
	if name, ok := fieldLabels[folded]; ok {
		return name
	}
	slug := strings.ToLower(folded)
	slug = strings.ReplaceAll(slug, " ", "_")
	return slug
}

// labelValueFields walks the detail selector chain and collects label/value
// pairs from table rows (th/td or td/td) and definition lists (dt/dd).
func labelValueFields(doc *goquery.Document, chain SelectorChain) map[string]string {
	fields := make(map[string]string)
	for _, s := range chain {
		matched := doc.Find(s)
		if matched.Length() == 0 {
			continue
		}
		matched.Each(func(_ int, el *goquery.Selection) {
			if goquery.NodeName(el) == "dl" {
				collectDefinitionList(el, fields)
				return
			}
			collectTableRow(el, fields)
		})
		if len(fields) > 0 {
			return fields
		}
	}
	return fields
}

func collectTableRow(row *goquery.Selection, fields map[string]string) {
	cells := row.Find("th, td")
	if cells.Length() < 2 {
		return
	}
	label := CollapseWhitespace(cells.Eq(0).Text())
	value := CollapseWhitespace(cells.Eq(1).Text())
	if label == "" || value == "" {
		return
	}
	key := canonicalFieldName(label)
	if _, exists := fields[key]; !exists {
		fields[key] = value
	}
}

func collectDefinitionList(dl *goquery.Selection, fields map[string]string) {
	terms := dl.Find("dt")
	values := dl.Find("dd")
	n := terms.Length()
	if values.Length() < n {
		n = values.Length()
	}
	for i := 0; i < n; i++ {
		label := CollapseWhitespace(terms.Eq(i).Text())
		value := CollapseWhitespace(values.Eq(i).Text())
		if label == "" || value == "" {
			continue
		}
		key := canonicalFieldName(label)
		if _, exists := fields[key]; !exists {
			fields[key] = value
		}
	}
}

// linkedStandardCodes finds EC-standard codes referenced on a page section,
// used to extract accredits/evaluates relationships.
var ecCodeRef = regexp.MustCompile(`\bEC\d{4}\b`)

func linkedStandardCodes(doc *goquery.Document, selectors SelectorChain) []string {
	seen := make(map[string]struct{})
	var codes []string
	add := func(text string) {
		for _, code := range ecCodeRef.FindAllString(text, -1) {
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	for _, s := range selectors {
		sel := doc.Find(s)
		if sel.Length() == 0 {
			continue
		}
		sel.Each(func(_ int, el *goquery.Selection) {
			add(el.Text())
		})
		if len(codes) > 0 {
			return codes
		}
	}
	return codes
}

func pageTitle(doc *goquery.Document) string {
	return CollapseWhitespace(doc.Find("title").First().Text())
}

// ExtractLinks returns all resolvable anchor targets on a page, used by
// sitemap traversal.
func ExtractLinks(page harvester.Page) ([]string, error) {
	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(firstNonEmpty(page.FinalURL, page.URL))
	if err != nil {
		base = nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !usableHref(href) {
			return
		}
		if resolved := resolveURL(base, href); resolved != "" {
			links = append(links, resolved)
		}
	})
	return links, nil
}

// PageTitle extracts the document title for sitemap entries.
func PageTitle(page harvester.Page) string {
	doc, err := parseDocument(page)
	if err != nil {
		return ""
	}
	return pageTitle(doc)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
