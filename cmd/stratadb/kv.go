package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratadb-labs/strata-core/pkg/kv"
)

var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Key-value operations against the default run",
}

var kvGetCmd = &cobra.Command{
	Use:   "get <key>",
	Args:  cobra.ExactArgs(1),
	Short: "Read a key's current value",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		tx := db.Begin(true)
		defer tx.Rollback()

		v, ok, err := kv.Get(tx, db.DefaultRun(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("key %q not found", args[0])
		}
		fmt.Printf("%s (version %s)\n", v.Value, v.Version)
		return nil
	},
}

var kvPutCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Args:  cobra.ExactArgs(2),
	Short: "Write a key unconditionally",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		tx := db.Begin(false)
		if err := kv.Put(tx, db.DefaultRun(), args[0], []byte(args[1])); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Commit(); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

var kvDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Args:  cobra.ExactArgs(1),
	Short: "Stage a tombstone for a key",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		tx := db.Begin(false)
		if err := kv.Delete(tx, db.DefaultRun(), args[0]); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Commit(); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

func init() {
	kvCmd.AddCommand(kvGetCmd, kvPutCmd, kvDeleteCmd)
}
