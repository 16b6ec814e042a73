package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/firekit/internal/server"
	"github.com/aretw0/firekit/pkg/core"
)

var (
	setData    string
	setReplace bool
	listWhere  []string
	listJSON   bool
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var getCmd = &cobra.Command{
	Use:   "get <collection> <id>",
	Short: "Print a document as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, _, err := openStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore(store)

		doc, err := store.GetDocument(ctx, core.Collection(args[0]), args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), doc.Data)
	},
}

var setCmd = &cobra.Command{
	Use:   "set <collection> [id]",
	Short: "Write a document from --data or stdin",
	Long: `Set writes a JSON object into a document. Without an id a new one is
allocated. Fields are merged into the existing document unless --replace is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := setData
		if raw == "" {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			raw = string(b)
		}
		var data map[string]any
		decoder := json.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
		decoder.UseNumber()
		if err := decoder.Decode(&data); err != nil {
			return fmt.Errorf("document must be a JSON object: %w", err)
		}

		ctx := cmd.Context()
		store, _, err := openStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore(store)

		c := core.Collection(args[0])
		id := ""
		if len(args) == 2 {
			id = args[1]
		} else {
			id = store.AllocateID(c)
		}
		if err := store.SetDocument(ctx, c, id, data, !setReplace); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <collection> <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, _, err := openStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore(store)

		if err := store.DeleteDocument(ctx, core.Collection(args[0]), args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Document deleted: %s/%s\n", args[0], args[1])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <collection>",
	Short: "List the documents of a collection",
	Example: `  firekit list expenses --where 'amount>=10' --where category==food
  firekit list expenses --where 'tags:array-contains:travel'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := server.ParseFilters(listWhere)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, _, err := openStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore(store)

		docs, err := store.QueryDocuments(ctx, core.Collection(args[0]), f)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if listJSON {
			rows := make([]map[string]any, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, map[string]any{"id": d.ID, "data": d.Data})
			}
			return printJSON(out, rows)
		}
		for _, d := range docs {
			line, err := json.Marshal(d.Data)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\t%s\n", d.ID, line)
		}
		return nil
	},
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List the collections of the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, cfg, err := openStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore(store)

		lister, ok := store.(core.CollectionLister)
		if !ok {
			return fmt.Errorf("the %s adapter cannot list collections", cfg.Adapter)
		}
		cols, err := lister.Collections(ctx)
		if err != nil {
			return err
		}
		for _, c := range cols {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
		return nil
	},
}

func init() {
	setCmd.Flags().StringVarP(&setData, "data", "d", "", "JSON object to write (default: read stdin)")
	setCmd.Flags().BoolVar(&setReplace, "replace", false, "Replace the document instead of merging")
	listCmd.Flags().StringArrayVarP(&listWhere, "where", "w", nil, "Filter as field<op>value or field:op:value (repeatable, ANDed)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")

	rootCmd.AddCommand(getCmd, setCmd, deleteCmd, listCmd, collectionsCmd)
}

