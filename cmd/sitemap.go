package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// newSiteMapCmd creates the 'sitemap' subcommand, which maps the portal's
// page graph without extracting records.
func newSiteMapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sitemap",
		Short: "Maps the portal structure without extracting records",
		Long: `Walks the site breadth-first from the portal root, recording every
reachable page and any API endpoints observed during rendering, then writes
the resulting site map artifact to the configured blob store.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMode(cmd, harvester.ModeSiteMap)
		},
	}
}
