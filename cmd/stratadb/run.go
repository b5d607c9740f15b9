package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratadb-labs/strata-core/pkg/run"
	"github.com/stratadb-labs/strata-core/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run lifecycle operations",
}

var runListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known runs and their status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		tx := db.Begin(true)
		defer tx.Rollback()

		ids, err := run.List(tx, 0)
		if err != nil {
			return err
		}
		for _, id := range ids {
			meta, ok, err := run.Get(tx, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			fmt.Printf("%s\t%s\n", id, meta.Status)
		}
		return nil
	},
}

var runCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Args:  cobra.ExactArgs(1),
	Short: "Create a new run",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		id := types.NewRunID(args[0])
		tx := db.Begin(false)
		now := types.Timestamp(time.Now().UnixMicro())
		retention := run.RetentionPolicy{Kind: run.KeepAll}
		if err := run.Create(tx, id, "", nil, retention, now); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Commit(); err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	runCmd.AddCommand(runListCmd, runCreateCmd)
}
