// Command mk-dwarf-db reads the DWARF debug information embedded in
// a binary, canonicalizes its type graph, and persists the result as
// a SQLite call/type database.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ThinkerYzu/trace-dwarf/internal/diesrc"
	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
	"github.com/ThinkerYzu/trace-dwarf/internal/ingest"
	"github.com/ThinkerYzu/trace-dwarf/internal/logging"
	"github.com/ThinkerYzu/trace-dwarf/internal/pipeline"
	"github.com/ThinkerYzu/trace-dwarf/internal/sink"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var output string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "mk-dwarf-db <binary>",
		Short: "Canonicalize a binary's DWARF type graph into a SQLite call/type database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], output, verbose)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "callgraph.sqlite3", "output database file name")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	return cmd
}

func run(binary, output string, verbose bool) error {
	log, err := logging.New(verbose)
	if err != nil {
		return errors.Wrap(err, "mk-dwarf-db: set up logging")
	}
	defer log.Sync() //nolint:errcheck

	log.Infow("parsing DIEs", "binary", binary)
	d, err := diesrc.Open(binary)
	if err != nil {
		return errors.Wrap(err, "mk-dwarf-db: open DWARF data")
	}

	ctx := dwtypes.NewContext(log)
	ing := ingest.New(ctx)
	if err := diesrc.Walk(d, ing.Ingest); err != nil {
		return errors.Wrap(err, "mk-dwarf-db: ingest DIE stream")
	}
	if err := ing.Finish(); err != nil {
		return errors.Wrap(err, "mk-dwarf-db: finish ingestion")
	}
	log.Infow("parsed DIEs", "types", ctx.Types.Len(), "subprograms", ctx.Subprograms.Len())

	if err := pipeline.Run(ctx); err != nil {
		return errors.Wrap(err, "mk-dwarf-db: canonicalize type graph")
	}

	if _, err := os.Stat(output); err == nil {
		log.Infow("output file already exists, removing it", "output", output)
		if err := os.Remove(output); err != nil {
			return errors.Wrapf(err, "mk-dwarf-db: remove existing output %s", output)
		}
	}

	log.Infow("persisting", "output", output)
	store, err := sink.Open(output)
	if err != nil {
		return errors.Wrap(err, "mk-dwarf-db: open output database")
	}
	defer store.Close()

	if err := store.Persist(ctx); err != nil {
		return errors.Wrap(err, "mk-dwarf-db: persist canonicalized graph")
	}
	log.Infow("done")
	return nil
}
