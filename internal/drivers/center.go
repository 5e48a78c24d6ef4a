package drivers

import (
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// CenterDriver extracts evaluation centers. The shape mirrors certifiers:
// contact data plus the EC standards the center evaluates.
type CenterDriver struct {
	base
}

// NewCenterDriver builds the evaluation-center driver against a site profile.
func NewCenterDriver(site SiteProfile, fp harvester.Fingerprinter, clock harvester.Clock, logger *zap.Logger) (*CenterDriver, error) {
	b, err := newBase(harvester.EntityCenter, site, site.Centers, fp, clock, logger)
	if err != nil {
		return nil, err
	}
	return &CenterDriver{base: b}, nil
}

func (d *CenterDriver) ParseListing(page harvester.Page) (harvester.ListingResult, error) {
	return parseOrgListing(&d.base, page)
}

func (d *CenterDriver) ParseDetail(page harvester.Page, cont harvester.Continuation) (harvester.DetailResult, error) {
	return parseOrgDetail(&d.base, page, cont, "evaluates")
}
