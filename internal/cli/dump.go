package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbaker/persist"
)

func (c *CLI) dumpCommand() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print the element tree of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := encodingOf(args[0], from)
			if err != nil {
				return err
			}
			doc, err := readTree(args[0], enc)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), persist.Dump(doc))
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "encoding (default: from extension)")
	return cmd
}
