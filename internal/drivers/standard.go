package drivers

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// StandardDriver extracts EC competency standards. Listings carry the code,
// title and a detail link per row; the detail page adds purpose, level,
// committee and publication metadata.
type StandardDriver struct {
	base
}

// NewStandardDriver builds the standards driver against a site profile.
func NewStandardDriver(site SiteProfile, fp harvester.Fingerprinter, clock harvester.Clock, logger *zap.Logger) (*StandardDriver, error) {
	b, err := newBase(harvester.EntityStandard, site, site.Standards, fp, clock, logger)
	if err != nil {
		return nil, err
	}
	return &StandardDriver{base: b}, nil
}

// ParseListing walks listing rows, filing a detail request per row that
// exposes an identifier link. Rows without one are forwarded as incomplete
// records so downstream stores still see them.
func (d *StandardDriver) ParseListing(page harvester.Page) (harvester.ListingResult, error) {
	doc, err := parseDocument(page)
	if err != nil {
		d.errs.Add(1)
		return harvester.ListingResult{}, err
	}
	d.pages.Add(1)

	rows, primary := selectRows(doc, d.profile.Listing)
	if rows == nil {
		d.errs.Add(1)
		return harvester.ListingResult{}, &ExtractionError{
			URL: page.URL, Entity: d.entity, Reason: "no listing rows matched any selector",
		}
	}
	if !primary {
		d.logger.Debug("listing fell back to card layout", zap.String("url", page.URL))
	}

	pageBase := listingBase(page, d.baseURL)
	var result harvester.ListingResult

	rows.Each(func(_ int, row *goquery.Selection) {
		fields := d.rowFields(row, primary)
		if fields["code"] == "" && fields["title"] == "" {
			return
		}

		href, _ := row.Find("a[href]").First().Attr("href")
		if usableHref(href) {
			if id, ok := ExtractIdentifier(href); ok {
				cont := harvester.Continuation{"id": id}
				for k, v := range fields {
					cont[k] = v
				}
				result.Details = append(result.Details, harvester.DetailRequest{
					URL:          resolveURL(pageBase, href),
					Continuation: cont,
				})
				return
			}
		}

		// No resolvable identifier. Keep what the listing gave us.
		rec, ferr := d.finishRecord(fields["code"], page.URL, fields, true)
		if ferr != nil {
			d.logger.Warn("dropping malformed listing row", zap.String("url", page.URL), zap.Error(ferr))
			return
		}
		result.Records = append(result.Records, rec)
	})

	result.NextPageURL = nextPageURL(doc, d.profile.Listing, pageBase)
	return result, nil
}

func (d *StandardDriver) rowFields(row *goquery.Selection, primary bool) map[string]string {
	fields := make(map[string]string)
	if primary {
		cells := row.Find("td")
		if cells.Length() >= 2 {
			fields["code"] = CollapseWhitespace(cells.Eq(0).Text())
			fields["title"] = CollapseWhitespace(cells.Eq(1).Text())
		}
		// The last cell holds the detail link; a sector column only exists
		// when the row has four or more cells.
		if cells.Length() >= 4 {
			fields["sector"] = CollapseWhitespace(cells.Eq(2).Text())
		}
		return fields
	}
	fields["code"] = CollapseWhitespace(row.Find(".codigo, .code").First().Text())
	fields["title"] = CollapseWhitespace(row.Find(".titulo, .title, h3, h4").First().Text())
	return fields
}

// ParseDetail merges the detail page's label/value pairs over the listing
// continuation and emits the completed standard plus its committee link.
func (d *StandardDriver) ParseDetail(page harvester.Page, cont harvester.Continuation) (harvester.DetailResult, error) {
	doc, err := parseDocument(page)
	if err != nil {
		d.errs.Add(1)
		return harvester.DetailResult{}, err
	}
	d.pages.Add(1)

	fields := cont.Merge(labelValueFields(doc, d.profile.DetailFields))
	delete(fields, "id")

	rec, err := d.finishRecord(fields["code"], page.URL, fields, false)
	if err != nil {
		return harvester.DetailResult{}, err
	}

	var rels []harvester.RelationshipRecord
	if committee := fields["committee"]; committee != "" {
		rels = append(rels, harvester.RelationshipRecord{
			SubjectType: harvester.EntityStandard,
			SubjectID:   rec.NaturalKey,
			Predicate:   "developed_by",
			ObjectType:  harvester.EntityCommittee,
			ObjectID:    foldText(committee),
			Attributes:  map[string]string{"name": committee},
			ExtractedAt: rec.ExtractedAt,
		})
	}
	return harvester.DetailResult{Record: rec, Relationships: rels}, nil
}

// listingBase picks the URL detail links should resolve against, preferring
// the post-redirect address.
func listingBase(page harvester.Page, fallback *url.URL) *url.URL {
	raw := firstNonEmpty(page.FinalURL, page.URL)
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u
	}
	return fallback
}
