package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbaker/persist"
	"github.com/cwbaker/persist/boltstore"
	"github.com/cwbaker/persist/graph"
)

type storeFlags struct {
	path string
	key  string
}

func (sf *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sf.path, "store", "", "bolt store file (default: store.path from the config)")
	cmd.Flags().StringVar(&sf.key, "key", "", "key of the graph in the store")
}

func (c *CLI) graphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build, cache and inspect build dependency graphs",
	}
	cmd.AddCommand(c.graphBuildCommand())
	cmd.AddCommand(c.graphShowCommand())
	cmd.AddCommand(c.graphListCommand())
	return cmd
}

func (c *CLI) options() persist.Options {
	opt := graph.Options(c.slogger())
	opt.Keywords = c.Config.Keywords
	return opt
}

func (c *CLI) openStore(path string) (*boltstore.Store, error) {
	if path == "" {
		path = c.Config.Store.Path
	}
	if path == "" {
		return nil, errors.New("no store given, use --store or set store.path in the config")
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return boltstore.Open(path, boltstore.Options{
		Bucket:   c.Config.Store.Bucket,
		Compress: c.Config.Store.Compress,
		Dir:      dir,
		Logger:   c.slogger(),
	})
}

func (c *CLI) graphBuildCommand() *cobra.Command {
	var out, encoding string
	var sf storeFlags
	cmd := &cobra.Command{
		Use:   "build MANIFEST",
		Short: "Build a graph from a TOML manifest and save it to a file or a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			if out == "" && sf.path == "" && c.Config.Store.Path == "" {
				return errors.New("nowhere to save the graph, use --out or --store")
			}

			p := newProgress(logger)
			g, err := graph.LoadManifest(args[0])
			if err != nil {
				return err
			}
			logger.Debug("loaded manifest", "path", args[0], "targets", len(g.Targets))

			enc := c.Config.Encoding
			if encoding != "" {
				if enc, err = persist.ParseEncoding(encoding); err != nil {
					return err
				}
			}

			if out != "" {
				if encoding == "" {
					if e, ok := persist.EncodingForPath(out); ok {
						enc = e
					}
				}
				w := persist.NewWriter(enc, graph.Types(), c.options())
				if err := w.Write(out, graph.RootName, g); err != nil {
					return err
				}
				p.done("wrote graph", "path", out, "encoding", enc, "targets", len(g.Targets))
				return nil
			}

			s, err := c.openStore(sf.path)
			if err != nil {
				return err
			}
			defer s.Close()
			key := sf.key
			if key == "" {
				key = g.Name
			}
			w := persist.NewWriter(enc, graph.Types(), c.options())
			if err := s.Save(key, w, graph.RootName, g); err != nil {
				return err
			}
			p.done("stored graph", "key", key, "encoding", enc, "targets", len(g.Targets))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.Flags().StringVar(&encoding, "encoding", "", "archive encoding (default: from --out, then the config)")
	sf.register(cmd)
	return cmd
}

func (c *CLI) loadGraph(file string, sf storeFlags) (*graph.Graph, error) {
	g := &graph.Graph{}
	if file != "" {
		enc, err := encodingOf(file, "")
		if err != nil {
			enc = persist.Binary
		}
		r := persist.NewReader(enc, graph.Types(), c.options())
		if err := r.Read(file, graph.RootName, g); err != nil {
			return nil, err
		}
		return g, nil
	}

	if sf.key == "" {
		return nil, errors.New("give a FILE, or --key to load from a store")
	}
	s, err := c.openStore(sf.path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	info, err := s.Info(sf.key)
	if err != nil {
		return nil, err
	}
	r := persist.NewReader(info.Encoding, graph.Types(), c.options())
	if err := s.Load(sf.key, r, graph.RootName, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (c *CLI) graphShowCommand() *cobra.Command {
	var plan bool
	var sf storeFlags
	cmd := &cobra.Command{
		Use:   "show [FILE]",
		Short: "Print a saved graph in build order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var file string
			if len(args) > 0 {
				file = args[0]
			}
			g, err := c.loadGraph(file, sf)
			if err != nil {
				return err
			}
			if plan {
				cmds, err := g.Plan()
				if err != nil {
					return err
				}
				for _, line := range cmds {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			}
			return printGraph(cmd.OutOrStdout(), g)
		},
	}
	cmd.Flags().BoolVar(&plan, "plan", false, "print the commands that would bring the graph up to date")
	sf.register(cmd)
	return cmd
}

func printGraph(w io.Writer, g *graph.Graph) error {
	order, err := g.Order()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "graph %s (%s)\n", g.Name, g.ID)
	if g.Root != nil {
		fmt.Fprintf(w, "root %s\n", g.Root.Path)
	}
	for _, t := range order {
		fmt.Fprintf(w, "%s [%s]", t.Path, t.Kind)
		if t.Flags != 0 {
			fmt.Fprintf(w, " %s", t.Flags)
		}
		fmt.Fprintln(w)
		if len(t.Dependencies) > 0 {
			fmt.Fprintf(w, "\tdepends: %s\n", joinPaths(t.Dependencies))
		}
		if len(t.Implicit) > 0 {
			fmt.Fprintf(w, "\timplicit: %s\n", joinPaths(t.Implicit))
		}
		if d := t.DescriptionString(); d != "" {
			fmt.Fprintf(w, "\t%s\n", d)
		}
	}
	return nil
}

func joinPaths(targets []*graph.Target) string {
	paths := make([]string, len(targets))
	for i, t := range targets {
		paths[i] = t.Path
	}
	return strings.Join(paths, " ")
}

func (c *CLI) graphListCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the graphs in a store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openStore(path)
			if err != nil {
				return err
			}
			defer s.Close()
			infos, err := s.List()
			if err != nil {
				return err
			}
			for _, info := range infos {
				zip := ""
				if info.Compressed {
					zip = " gzip"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s %s v%d\t%d bytes%s\tmod %d\n", info.Key, info.Encoding, info.Format, info.Version, info.Size, zip, info.ModCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "store", "", "bolt store file (default: store.path from the config)")
	return cmd
}
