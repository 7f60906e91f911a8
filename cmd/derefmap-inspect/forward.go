package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	lilyproject "github.com/guoquans/lilyproject"
)

// forwardCommand dumps the decoded forward row for one (dependant, vtag)
// pair, exercising the "forward row absent vs. empty" equivalence documented
// in DESIGN.md: both print the same "no dependencies" line.
type forwardCommand struct {
	Db        string
	Index     string
	Dependant string
	Vtag      string
	Variant   []string

	Stdout io.Writer
}

func newForwardCommand(stdout io.Writer) *cobra.Command {
	fc := &forwardCommand{Stdout: stdout}
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Dump the decoded forward row for one dependant.",
		Long: `forward opens the named DerefMap read-only and prints the depending
records --dependant/--vtag's forward row currently lists, or a
"no dependencies" line if the row is absent or empty -- the two are
equivalent under this module's read semantics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc.Db, _ = cmd.Flags().GetString("db")
			fc.Index, _ = cmd.Flags().GetString("index")
			return fc.Run()
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&fc.Dependant, "dependant", "", "hex-encoded master id of the dependant record")
	flags.StringVar(&fc.Vtag, "vtag", "", "schema id (UUID) of the dependant's version tag")
	flags.StringArrayVar(&fc.Variant, "variant", nil, "name=value variant property of the dependant; may be repeated")
	return cmd
}

func (fc *forwardCommand) Run() error {
	master, err := hex.DecodeString(fc.Dependant)
	if err != nil {
		return fmt.Errorf("decoding --dependant: %w", err)
	}
	vtag, err := lilyproject.ParseSchemaId(fc.Vtag)
	if err != nil {
		return fmt.Errorf("parsing --vtag: %w", err)
	}
	variants, err := parseVariants(fc.Variant)
	if err != nil {
		return err
	}

	dm, err := lilyproject.OpenReadOnly(fc.Index, lilyproject.Config{Path: fc.Db}, lilyproject.DefaultIdGenerator{MasterIdLen: len(master)})
	if err != nil {
		return fmt.Errorf("opening index %q in %s: %w", fc.Index, fc.Db, err)
	}
	defer dm.Close()

	dependant := lilyproject.NewRecordId(master, variants)
	deps, err := dm.FindDependencies(dependant, vtag)
	if err != nil {
		return fmt.Errorf("reading forward row: %w", err)
	}
	if len(deps) == 0 {
		fmt.Fprintln(fc.Stdout, "# no dependencies")
		return nil
	}
	for _, d := range deps {
		fmt.Fprintf(fc.Stdout, "%s @ %s\n", d.RecordId.String(), d.Vtag.String())
	}
	return nil
}
