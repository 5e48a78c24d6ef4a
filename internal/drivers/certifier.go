package drivers

import (
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// CertifierDriver extracts accredited certifying bodies. Detail pages list
// contact data and the EC standards the body is accredited for.
type CertifierDriver struct {
	base
}

// NewCertifierDriver builds the certifier driver against a site profile.
func NewCertifierDriver(site SiteProfile, fp harvester.Fingerprinter, clock harvester.Clock, logger *zap.Logger) (*CertifierDriver, error) {
	b, err := newBase(harvester.EntityCertifier, site, site.Certifiers, fp, clock, logger)
	if err != nil {
		return nil, err
	}
	return &CertifierDriver{base: b}, nil
}

// ParseListing files one detail request per row carrying an identifier link.
func (d *CertifierDriver) ParseListing(page harvester.Page) (harvester.ListingResult, error) {
	return parseOrgListing(&d.base, page)
}

// ParseDetail emits the certifier record plus one accredits relationship per
// EC code referenced on the page.
func (d *CertifierDriver) ParseDetail(page harvester.Page, cont harvester.Continuation) (harvester.DetailResult, error) {
	return parseOrgDetail(&d.base, page, cont, "accredits")
}
