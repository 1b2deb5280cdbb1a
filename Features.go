package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/feature"
	"github.com/spf13/cobra"
)

var (
	featuresIn string
	featuresDB string
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Manage precomputed feature stores",
}

var featuresImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import JSON feature records into a SQLite feature store",
	Long: `Import a JSON array of per-view feature records into a SQLite
feature store, replacing views that are already stored. The feature
schema is taken from the simulator of --config, or the default ResNet
schema if no configuration is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if featuresIn == "" || featuresDB == "" {
			return errors.New("import: --in and --db are required")
		}
		schema := feature.DefaultSchema()
		if configFile != "" {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			schema = c.EnvConf.Schema
		}

		f, err := os.Open(featuresIn)
		if err != nil {
			return errors.Wrap(err, "import")
		}
		defer f.Close()
		mem, err := feature.LoadJSON(f, schema)
		if err != nil {
			return err
		}

		existed := fileExists(featuresDB)
		store, err := feature.OpenSQLite(featuresDB, schema)
		if err != nil {
			return err
		}
		defer store.Close()

		records := mem.Records()
		if err := store.Import(records); err != nil {
			return err
		}
		if existed {
			logger.Printf("updated %v with %v views of %v viewpoints",
				featuresDB, len(records), len(mem.Viewpoints()))
		} else {
			logger.Printf("created %v with %v views of %v viewpoints",
				featuresDB, len(records), len(mem.Viewpoints()))
		}
		return store.Close()
	},
}

func init() {
	f := featuresImportCmd.Flags()
	f.StringVar(&featuresIn, "in", "", "JSON feature records")
	f.StringVar(&featuresDB, "db", "", "SQLite feature store")
	featuresCmd.AddCommand(featuresImportCmd)
}
