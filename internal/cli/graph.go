package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nixmirror/pkg/errors"
	"github.com/matzehuels/nixmirror/pkg/graph"
	"github.com/matzehuels/nixmirror/pkg/mirror"
)

// Graph output formats, chosen by the output file extension.
const (
	formatDOT  = "dot"
	formatSVG  = "svg"
	formatJSON = "json"
)

// graphOptions holds flags for the graph command.
type graphOptions struct {
	roots    []string
	output   string
	detailed bool
}

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	opts := &graphOptions{}

	cmd := &cobra.Command{
		Use:   "graph MIRROR_DIR [STORE_PATHS_FILE]",
		Short: "Export the reference graph of a mirror",
		Long: `Export the reference graph of a mirror from its local narinfo files.

The output format follows the extension of --output: .dot, .svg or .json.
Packages referenced but not present in the mirror are marked as missing.`,
		Example: `  nixmirror graph /srv/nix-mirror -r /nix/store/0d71ygfwbmy1xjlbj1v027dfmy9cqavy-hello-2.12 -o hello.svg`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGraph(cmd, args, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.roots, "root", "r", nil, "store path or identifier to start from (repeatable)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "graph.dot", "output file (.dot, .svg or .json)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "include identifiers and sizes in node labels")

	return cmd
}

func (c *CLI) runGraph(cmd *cobra.Command, args []string, opts *graphOptions) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	format, err := outputFormat(opts.output)
	if err != nil {
		return err
	}

	var rootsFile string
	if len(args) == 2 {
		rootsFile = args[1]
	}
	ids, err := readRoots(logger, rootsFile, opts.roots)
	if err != nil {
		return err
	}

	prog := newProgress(logger)
	g, err := graph.Build(mirror.NewLayout(args[0]), ids)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Built graph with %d nodes and %d edges", len(g.Nodes), len(g.Edges)))

	var data []byte
	switch format {
	case formatJSON:
		var buf bytes.Buffer
		if err := g.WriteJSON(&buf); err != nil {
			return err
		}
		data = buf.Bytes()
	case formatDOT:
		data = []byte(g.ToDOT(graph.DOTOptions{Detailed: opts.detailed}))
	case formatSVG:
		var spinner *Spinner
		if isTerminal(c.Err) {
			spinner = newSpinner(ctx, c.Err, "Rendering SVG...")
			spinner.Start()
		}
		data, err = graph.RenderSVG(ctx, g.ToDOT(graph.DOTOptions{Detailed: opts.detailed}))
		if spinner != nil {
			spinner.Stop()
		}
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeFilesystem, err, "write %s", opts.output)
	}

	printSuccess(c.Out, "Wrote %s graph (%d nodes, %d edges)", format, len(g.Nodes), len(g.Edges))
	printFile(c.Out, opts.output)
	if missing := g.Missing(); len(missing) > 0 {
		printWarning(c.Out, "%d packages are not in the mirror", len(missing))
	}
	return nil
}

// outputFormat derives the graph format from the output file extension.
func outputFormat(path string) (string, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case formatDOT, formatSVG, formatJSON:
		return ext, nil
	case "gv":
		return formatDOT, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidInput, "unsupported output format %q: use .dot, .svg or .json", ext)
	}
}
