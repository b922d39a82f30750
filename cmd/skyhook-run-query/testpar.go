package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uccross/skyhookdb-ceph/internal/querylang"
	"github.com/uccross/skyhookdb-ceph/internal/storage"
)

// newTestParCommand wires the latent test_par debugging hook
// (run-query.cc's worker_test_par): never called from the main query
// path, only reachable through this hidden subcommand.
func newTestParCommand() *cobra.Command {
	var pool, oid string
	var iters int
	var read bool

	cmd := &cobra.Command{
		Use:    "test-par",
		Short:  "loop test_par exec calls against one object (debugging hook)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pool == "" || oid == "" {
				return fmt.Errorf("cmd: test-par requires --pool and --oid")
			}
			client, err := openClient(pool, 1, querylang.Tag(""))
			if err != nil {
				return err
			}
			if err := storage.TestPar(cmd.Context(), client, oid, iters, read); err != nil {
				return err
			}
			fmt.Printf("test_par: %d iterations against %q complete\n", iters, oid)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&pool, "pool", "", "storage pool name, or an http(s):// base URL")
	flags.StringVar(&oid, "oid", "", "target object id")
	flags.IntVar(&iters, "iters", 1, "number of test_par exec calls to issue")
	flags.BoolVar(&read, "read", false, "exercise the read-heavy branch server-side instead of the write-heavy one")

	return cmd
}
