// cmd/client is the CLI for the KV cluster, built with Cobra.
//
// Usage:
//
//	kvcli put mykey '{"hello": "world"}'   --server http://localhost:5001
//	kvcli get mykey --read-quorum 2        --server http://localhost:5001
//	kvcli delete mykey                     --server http://localhost:5001
//	kvcli cluster nodes
//	kvcli metrics
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/RAAHUL-tech/mini-dynamo/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration

	flagN int
	flagR int
	flagW int
)

func main() {
	root := &cobra.Command{
		Use:   "kvcli",
		Short: "CLI client for the distributed KV store",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:5001", "KV node to talk to")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")
	root.PersistentFlags().IntVar(&flagN, "replicas", 0,
		"Replication factor override (N); 0 keeps the server default")
	root.PersistentFlags().IntVar(&flagR, "read-quorum", 0,
		"Read quorum override (R); 0 keeps the server default")
	root.PersistentFlags().IntVar(&flagW, "write-quorum", 0,
		"Write quorum override (W); 0 keeps the server default")

	root.AddCommand(putCmd(), getCmd(), deleteCmd(), clusterCmd(), metricsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// quorumOpts translates the flag values into per-request overrides.
func quorumOpts() client.QuorumOptions {
	opts := client.QuorumOptions{}
	if flagN > 0 {
		opts.N = &flagN
	}
	if flagR > 0 {
		opts.R = &flagR
	}
	if flagW > 0 {
		opts.W = &flagW
	}
	return opts
}

// ─── put ──────────────────────────────────────────────────────────────────────

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a value; bare strings are JSON-quoted automatically",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := json.RawMessage(args[1])
			if !json.Valid(value) {
				quoted, err := json.Marshal(args[1])
				if err != nil {
					return err
				}
				value = quoted
			}

			c := client.New(serverAddr, timeout)
			err := c.Put(context.Background(), args[0], value, quorumOpts())
			if errors.Is(err, client.ErrQuorumNotMet) {
				return fmt.Errorf("write quorum not met for %q — the value may exist on some replicas", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("stored %q\n", args[0])
			return nil
		},
	}
}

// ─── get ──────────────────────────────────────────────────────────────────────

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve all surviving versions of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			versions, err := c.Get(context.Background(), args[0], quorumOpts())
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			if len(versions) > 1 {
				fmt.Printf("%d conflicting siblings:\n", len(versions))
			}
			prettyPrint(versions)
			return nil
		},
	}
}

// ─── delete ───────────────────────────────────────────────────────────────────

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key across the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			err := c.Delete(context.Background(), args[0], quorumOpts())
			if errors.Is(err, client.ErrQuorumNotMet) {
				return fmt.Errorf("delete quorum not met for %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("deleted %q\n", args[0])
			return nil
		},
	}
}

// ─── cluster ──────────────────────────────────────────────────────────────────

func clusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster introspection commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "nodes",
		Short: "List all cluster nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.GetRaw(context.Background(), "/cluster/nodes")
			if err != nil {
				return err
			}
			fmt.Println(resp)
			return nil
		},
	})
	return cmd
}

// ─── metrics ──────────────────────────────────────────────────────────────────

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Dump the node's metrics summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.GetRaw(context.Background(), "/metrics")
			if err != nil {
				return err
			}
			var pretty any
			if json.Unmarshal([]byte(resp), &pretty) == nil {
				prettyPrint(pretty)
				return nil
			}
			fmt.Println(resp)
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
