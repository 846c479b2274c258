package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a release configuration file",
		Long: `Validate a release configuration file without contacting GitHub. The target version
and filter expression are checked the same way the release command checks them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := newSettings(cmd)
			if err != nil {
				return err
			}
			p, err := loadPlan(settings)
			if err != nil {
				return err
			}

			selected := 0
			for _, ref := range p.config.RepositoryRefs() {
				ok := true
				if p.filter != nil {
					if ok, err = p.filter.Match(ref); err != nil {
						return err
					}
				}
				if ok {
					selected++
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Validation successful! Version %s, %d of %d repositories selected.\n",
				p.version, selected, len(p.config.Repositories))
			return nil
		},
	}
	cmd.Flags().String("tag", "", "Target version, overrides the version in the configuration file")
	cmd.Flags().String("filter", "", "CEL expression selecting repositories")
	return cmd
}
