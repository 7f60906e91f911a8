package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	lilyproject "github.com/guoquans/lilyproject"
	"github.com/guoquans/lilyproject/logger"
)

// dependantsCommand streams DerefMap.FindDependantsOf results to stdout, one
// decoded RecordId per line, grounded on the export command's shape of a
// flag-populated struct plus a Run method that does the real work.
type dependantsCommand struct {
	Db      string
	Index   string
	Master  string
	Vtag    string
	Field   string
	Variant []string

	Stdout io.Writer
	Stderr io.Writer
}

func newDependantsCommand(stdout, stderr io.Writer) *cobra.Command {
	dc := &dependantsCommand{Stdout: stdout, Stderr: stderr}
	cmd := &cobra.Command{
		Use:   "dependants",
		Short: "List every dependant that depends on a record via a field.",
		Long: `dependants opens the named DerefMap read-only and streams every dependant
record id that depends on --master/--vtag through --field, one per line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dc.Db, _ = cmd.Flags().GetString("db")
			dc.Index, _ = cmd.Flags().GetString("index")
			return dc.Run()
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&dc.Master, "master", "", "hex-encoded master id of the depending record")
	flags.StringVar(&dc.Vtag, "vtag", "", "schema id (UUID) of the depending record's version tag")
	flags.StringVar(&dc.Field, "field", "", "schema id (UUID) of the field to filter dependants by")
	flags.StringArrayVar(&dc.Variant, "variant", nil, "name=value variant property of the depending record; may be repeated")
	return cmd
}

func (dc *dependantsCommand) Run() error {
	master, err := hex.DecodeString(dc.Master)
	if err != nil {
		return fmt.Errorf("decoding --master: %w", err)
	}
	vtag, err := lilyproject.ParseSchemaId(dc.Vtag)
	if err != nil {
		return fmt.Errorf("parsing --vtag: %w", err)
	}
	field, err := lilyproject.ParseSchemaId(dc.Field)
	if err != nil {
		return fmt.Errorf("parsing --field: %w", err)
	}
	variants, err := parseVariants(dc.Variant)
	if err != nil {
		return err
	}

	dm, err := lilyproject.OpenReadOnly(dc.Index, lilyproject.Config{Path: dc.Db}, lilyproject.DefaultIdGenerator{MasterIdLen: len(master)})
	if err != nil {
		return fmt.Errorf("opening index %q in %s: %w", dc.Index, dc.Db, err)
	}
	defer dm.Close()

	stderr := dc.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	skipped := logger.NewSkippedRowCounter(logger.NewStandardLogger(stderr))
	dm.SetLogger(skipped)

	recordId := lilyproject.NewRecordId(master, variants)
	depending := lilyproject.DependingRecord{RecordId: recordId, Vtag: vtag}

	cur, err := dm.FindDependantsOf(depending, field)
	if err != nil {
		return fmt.Errorf("finding dependants: %w", err)
	}
	defer cur.Close()

	n := 0
	for {
		hasNext, err := cur.HasNext()
		if err != nil {
			return fmt.Errorf("iterating dependants: %w", err)
		}
		if !hasNext {
			break
		}
		rid, err := cur.Next()
		if err != nil {
			return fmt.Errorf("iterating dependants: %w", err)
		}
		fmt.Fprintln(dc.Stdout, rid.String())
		n++
	}
	if n == 0 {
		fmt.Fprintln(dc.Stdout, "# no dependants found")
	}
	if count := skipped.Count(); count > 0 {
		fmt.Fprintf(stderr, "skipped %d corrupt backward row(s)\n", count)
	}
	return nil
}

// parseVariants parses "name=value" entries into a map, the same shape
// lilyproject.NewRecordId takes for variant properties.
func parseVariants(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		name, value, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --variant %q, expected name=value", e)
		}
		out[name] = value
	}
	return out, nil
}
