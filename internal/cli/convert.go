package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbaker/persist"
)

// encodingOf returns the encoding named by flag, or the one the file's
// extension implies.
func encodingOf(path, flag string) (persist.Encoding, error) {
	if flag != "" {
		return persist.ParseEncoding(flag)
	}
	if enc, ok := persist.EncodingForPath(path); ok {
		return enc, nil
	}
	return 0, fmt.Errorf("%s: cannot tell the encoding from the extension, use --from/--to", path)
}

func readTree(path string, enc persist.Encoding) (*persist.Element, error) {
	if !enc.IsTree() {
		return nil, fmt.Errorf("%s: binary archives cannot be read without their types", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &persist.ReadingFileFailedError{Path: path, Err: err}
	}
	return persist.ParseTree(enc, path, data)
}

func (c *CLI) convertCommand() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Convert an archive between XML, JSON, Lua and MsgPack",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			in, out := args[0], args[1]
			inEnc, err := encodingOf(in, from)
			if err != nil {
				return err
			}
			outEnc, err := encodingOf(out, to)
			if err != nil {
				return err
			}
			if !outEnc.IsTree() {
				return fmt.Errorf("%s: cannot write binary archives without their types", out)
			}

			p := newProgress(logger)
			doc, err := readTree(in, inEnc)
			if err != nil {
				return err
			}
			data, err := persist.PrintTree(outEnc, doc)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return &persist.WritingFileFailedError{Path: out, Err: err}
			}
			p.done("converted", "from", inEnc, "to", outEnc, "bytes", len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "input encoding (default: from extension)")
	cmd.Flags().StringVar(&to, "to", "", "output encoding (default: from extension)")
	return cmd
}
