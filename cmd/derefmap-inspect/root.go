package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// NewRootCommand builds the derefmap-inspect cobra command tree: a "dependants"
// subcommand streaming findDependantsOf results and a "forward" subcommand
// dumping a decoded forward row. Both subcommands share the --db/--index
// flags bound at the persistent level.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "derefmap-inspect",
		Short: "Inspect a DerefMap's on-disk dependency index, read-only.",
		Long: `derefmap-inspect opens a DerefMap's forward and backward bbolt tables
read-only and answers the two queries the indexer would otherwise have
to run in-process: which records depend on a given one, and what a
given dependant's current forward row looks like.

It never calls UpdateDependencies; mutation is the indexer's job.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindConfig(viper.GetViper(), cmd.Flags())
		},
	}
	rc.PersistentFlags().StringP("db", "d", "", "path to the DerefMap's bbolt file")
	rc.PersistentFlags().StringP("index", "i", "", "index name passed to lilyproject.Create when the index was built")
	rc.PersistentFlags().String("config", "", "optional TOML config file (lowest priority after flags and env)")

	rc.AddCommand(newDependantsCommand(stdout, stderr))
	rc.AddCommand(newForwardCommand(stdout))

	rc.SetOut(stderr)
	return rc
}

// bindConfig resolves flags in priority order flags > env DEREFMAP_* > TOML
// file > defaults, mirroring the teacher's setAllConfig: flags already set on
// the command line win outright; otherwise viper's merged env/file view
// fills the flag's value.
func bindConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix("DEREFMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile, _ := flags.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		if val := v.GetString(f.Name); val != "" {
			flagErr = f.Value.Set(val)
		}
	})
	return flagErr
}
