// Package drivers implements the per-entity extraction drivers for the RENEC
// registry. Each driver hides the listing→detail two-phase structure behind
// the harvester.Driver contract; listing/detail correlation happens purely
// through the Continuation attached to each detail request, so one driver
// value can parse many pages concurrently.
package drivers

// SelectorChain is a list of CSS selectors tried in fixed priority order.
// The chains are tuned to one real portal's observed markup and are carried
// as configuration precisely because they are heuristics, not guarantees.
type SelectorChain []string

// ListingSelectors configures row and pagination discovery on listing pages.
type ListingSelectors struct {
	// PrimaryRows is the table-based strategy tried first.
	PrimaryRows SelectorChain
	// FallbackRows is the card-based strategy used when the primary yields
	// zero rows.
	FallbackRows SelectorChain
	// NextPage selectors are tried in order; NextPageText is the final
	// link-text scan fallback.
	NextPage     SelectorChain
	NextPageText []string
}

// EntityProfile configures one entity type's extraction.
type EntityProfile struct {
	StartPaths   []string
	Listing      ListingSelectors
	DetailFields SelectorChain
}

// SiteProfile bundles every entity profile for one portal deployment.
type SiteProfile struct {
	BaseURL    string
	Standards  EntityProfile
	Certifiers EntityProfile
	Centers    EntityProfile
	Sectors    EntityProfile
}

// DefaultProfile returns the selector configuration observed on the public
// RENEC portal.
func DefaultProfile(baseURL string) SiteProfile {
	pagination := ListingSelectors{
		NextPage: SelectorChain{
			"a[rel='next']",
			"ul.pagination li.next a",
			"ul.pagination li.active + li a",
			"a.siguiente",
		},
		NextPageText: []string{"Siguiente", "Siguiente »", ">", "»"},
	}

	standards := pagination
	standards.PrimaryRows = SelectorChain{
		"table#tablaEstandares tbody tr",
		"table.table-estandares tbody tr",
		"table.table tbody tr",
	}
	standards.FallbackRows = SelectorChain{
		"div.card-estandar",
		"div.renec-card",
	}

	certifiers := pagination
	certifiers.PrimaryRows = SelectorChain{
		"table#tablaCertificadores tbody tr",
		"table.table tbody tr",
	}
	certifiers.FallbackRows = SelectorChain{
		"div.card-certificador",
		"div.renec-card",
	}

	centers := pagination
	centers.PrimaryRows = SelectorChain{
		"table#tablaCentros tbody tr",
		"table.table tbody tr",
	}
	centers.FallbackRows = SelectorChain{
		"div.card-centro",
		"div.renec-card",
	}

	sectors := pagination
	sectors.PrimaryRows = SelectorChain{
		"table#tablaSectores tbody tr",
		"ul.sectores > li",
	}
	sectors.FallbackRows = SelectorChain{
		"div.card-sector",
	}

	return SiteProfile{
		BaseURL: baseURL,
		Standards: EntityProfile{
			StartPaths: []string{"/RENEC/controlador.do?comp=ESLNORMTEC"},
			Listing:    standards,
			DetailFields: SelectorChain{
				"table.datos-estandar tr",
				"div.detalle-estandar dl",
				"table.table tr",
			},
		},
		Certifiers: EntityProfile{
			StartPaths: []string{"/RENEC/controlador.do?comp=ESLORGCERT"},
			Listing:    certifiers,
			DetailFields: SelectorChain{
				"table.datos-certificador tr",
				"div.detalle-certificador dl",
				"table.table tr",
			},
		},
		Centers: EntityProfile{
			StartPaths: []string{"/RENEC/controlador.do?comp=ESLCE"},
			Listing:    centers,
			DetailFields: SelectorChain{
				"table.datos-centro tr",
				"div.detalle-centro dl",
				"table.table tr",
			},
		},
		Sectors: EntityProfile{
			StartPaths: []string{"/RENEC/controlador.do?comp=ESLSECTOR"},
			Listing:    sectors,
		},
	}
}
