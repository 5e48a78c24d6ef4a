package drivers

import (
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// SectorDriver extracts the productive-sector taxonomy. The portal renders
// the whole tree on the listing itself, each sector nesting its committees,
// so this driver has no detail phase: every record is complete on page one.
type SectorDriver struct {
	base
}

// NewSectorDriver builds the sector/committee taxonomy driver.
func NewSectorDriver(site SiteProfile, fp harvester.Fingerprinter, clock harvester.Clock, logger *zap.Logger) (*SectorDriver, error) {
	b, err := newBase(harvester.EntitySector, site, site.Sectors, fp, clock, logger)
	if err != nil {
		return nil, err
	}
	return &SectorDriver{base: b}, nil
}

// ParseListing emits one sector record per row plus a committee record and a
// belongs_to relationship for every nested committee entry.
func (d *SectorDriver) ParseListing(page harvester.Page) (harvester.ListingResult, error) {
	doc, err := parseDocument(page)
	if err != nil {
		d.errs.Add(1)
		return harvester.ListingResult{}, err
	}
	d.pages.Add(1)

	rows, _ := selectRows(doc, d.profile.Listing)
	if rows == nil {
		d.errs.Add(1)
		return harvester.ListingResult{}, &ExtractionError{
			URL: page.URL, Entity: d.entity, Reason: "no sector rows matched any selector",
		}
	}

	var result harvester.ListingResult
	rows.Each(func(_ int, row *goquery.Selection) {
		d.collectSector(row, page.URL, &result)
	})

	pageBase := listingBase(page, d.baseURL)
	result.NextPageURL = nextPageURL(doc, d.profile.Listing, pageBase)
	return result, nil
}

func (d *SectorDriver) collectSector(row *goquery.Selection, sourceURL string, result *harvester.ListingResult) {
	anchor := row.Find("a[href]").First()
	name := CollapseWhitespace(anchor.Text())
	if name == "" {
		name = CollapseWhitespace(row.Children().First().Text())
	}
	if name == "" {
		return
	}

	href, _ := anchor.Attr("href")
	id, ok := ExtractIdentifier(href)
	if !ok {
		d.logger.Warn("sector row without identifier link",
			zap.String("url", sourceURL), zap.String("name", name))
		rec, err := d.finishRecord(name, sourceURL, map[string]string{"name": name}, true)
		if err == nil {
			result.Records = append(result.Records, rec)
		}
		return
	}

	rec, err := d.finishRecord(id, sourceURL, map[string]string{"name": name}, false)
	if err != nil {
		d.logger.Warn("dropping malformed sector row", zap.String("url", sourceURL), zap.Error(err))
		return
	}
	result.Records = append(result.Records, rec)

	// Committees nest under the sector entry as a sub-list.
	row.Find("ul li a[href], ol li a[href]").Each(func(_ int, a *goquery.Selection) {
		d.collectCommittee(a, id, sourceURL, result)
	})
}

func (d *SectorDriver) collectCommittee(a *goquery.Selection, sectorID, sourceURL string, result *harvester.ListingResult) {
	name := CollapseWhitespace(a.Text())
	href, _ := a.Attr("href")
	id, ok := ExtractIdentifier(href)
	if name == "" || !ok {
		return
	}

	fields := map[string]string{"name": name, "sector_id": sectorID}
	rec := harvester.ExtractedRecord{
		EntityType:  harvester.EntityCommittee,
		NaturalKey:  id,
		Fields:      fields,
		ContentHash: d.fp.Fingerprint(fields),
		SourceURL:   sourceURL,
		ExtractedAt: d.clock.Now().UTC(),
	}
	if err := ValidateRecord(rec); err != nil {
		d.errs.Add(1)
		d.logger.Warn("dropping malformed committee entry", zap.String("url", sourceURL), zap.Error(err))
		return
	}
	d.items.Add(1)

	result.Records = append(result.Records, rec)
	result.Relationships = append(result.Relationships, harvester.RelationshipRecord{
		SubjectType: harvester.EntityCommittee,
		SubjectID:   id,
		Predicate:   "belongs_to",
		ObjectType:  harvester.EntitySector,
		ObjectID:    sectorID,
		ExtractedAt: rec.ExtractedAt,
	})
}

// ParseDetail is never reached: the listing emits no detail requests.
func (d *SectorDriver) ParseDetail(page harvester.Page, _ harvester.Continuation) (harvester.DetailResult, error) {
	return harvester.DetailResult{}, &ExtractionError{
		URL: page.URL, Entity: d.entity, Reason: "sector taxonomy has no detail phase",
	}
}
