package drivers

import (
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// Certifiers and evaluation centers share listing and detail layouts on the
// portal; the shared walks below differ only in entity type and the
// relationship predicate their linked EC codes produce.

// orgRowFields reads the organization listing layouts: name and state in the
// first table columns, or name inside the card fallback.
func orgRowFields(row *goquery.Selection, primary bool) map[string]string {
	fields := make(map[string]string)
	if primary {
		cells := row.Find("td")
		if cells.Length() >= 1 {
			fields["name"] = CollapseWhitespace(cells.Eq(0).Text())
		}
		// A state column only exists when the row also has a link cell
		// after it.
		if cells.Length() >= 3 {
			fields["state"] = CollapseWhitespace(cells.Eq(1).Text())
		}
		return fields
	}
	fields["name"] = CollapseWhitespace(row.Find(".nombre, .name, h3, h4").First().Text())
	return fields
}

// parseOrgListing walks organization listing rows. The natural key is the
// portal's link identifier, so rows without one cannot be completed later
// and travel as incomplete records keyed by name.
func parseOrgListing(b *base, page harvester.Page) (harvester.ListingResult, error) {
	doc, err := parseDocument(page)
	if err != nil {
		b.errs.Add(1)
		return harvester.ListingResult{}, err
	}
	b.pages.Add(1)

	rows, primary := selectRows(doc, b.profile.Listing)
	if rows == nil {
		b.errs.Add(1)
		return harvester.ListingResult{}, &ExtractionError{
			URL: page.URL, Entity: b.entity, Reason: "no listing rows matched any selector",
		}
	}

	pageBase := listingBase(page, b.baseURL)
	var result harvester.ListingResult

	rows.Each(func(_ int, row *goquery.Selection) {
		fields := orgRowFields(row, primary)
		if fields["name"] == "" {
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

		rec, ferr := b.finishRecord(fields["name"], page.URL, fields, true)
		if ferr != nil {
			b.logger.Warn("dropping malformed listing row", zap.String("url", page.URL), zap.Error(ferr))
			return
		}
		result.Records = append(result.Records, rec)
	})

	result.NextPageURL = nextPageURL(doc, b.profile.Listing, pageBase)
	return result, nil
}

// parseOrgDetail merges the detail page over the continuation. The predicate
// names the relationship each linked EC code produces.
func parseOrgDetail(b *base, page harvester.Page, cont harvester.Continuation, predicate string) (harvester.DetailResult, error) {
	doc, err := parseDocument(page)
	if err != nil {
		b.errs.Add(1)
		return harvester.DetailResult{}, err
	}
	b.pages.Add(1)

	fields := cont.Merge(labelValueFields(doc, b.profile.DetailFields))
	id := fields["id"]
	delete(fields, "id")

	rec, err := b.finishRecord(id, page.URL, fields, false)
	if err != nil {
		return harvester.DetailResult{}, err
	}

	var rels []harvester.RelationshipRecord
	for _, code := range linkedStandardCodes(doc, b.profile.DetailFields) {
		rels = append(rels, harvester.RelationshipRecord{
			SubjectType: b.entity,
			SubjectID:   rec.NaturalKey,
			Predicate:   predicate,
			ObjectType:  harvester.EntityStandard,
			ObjectID:    code,
			ExtractedAt: rec.ExtractedAt,
		})
	}
	return harvester.DetailResult{Record: rec, Relationships: rels}, nil
}
