// cmd/epubctl/glossary_commands.go
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newGlossaryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "Manage the glossary of a book",
	}
	cmd.AddCommand(newGlossaryListCommand(ctx))
	cmd.AddCommand(newGlossaryAddCommand(ctx))
	cmd.AddCommand(newGlossaryRemoveCommand(ctx))
	return cmd
}

func newGlossaryListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <book-id>",
		Short: "List glossary entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseIDArg(args[0], "book")
			if err != nil {
				return err
			}
			entries, err := ctx.glossary.List(cmd.Context(), bookID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Glossary is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{strconv.FormatInt(entry.ID, 10), entry.Word, entry.Translation})
			}
			fmt.Fprint(out, renderTable(
				[]string{"ID", "Word", "Translation"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newGlossaryAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <book-id> <word> <translation>",
		Short: "Add a glossary entry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseIDArg(args[0], "book")
			if err != nil {
				return err
			}
			entry, err := ctx.glossary.Add(cmd.Context(), bookID, args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Glossary entry added successfully! (ID %d)\n", entry.ID)
			return nil
		},
	}
}

func newGlossaryRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <entry-id>",
		Aliases: []string{"remove"},
		Short:   "Delete a glossary entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0], "glossary entry")
			if err != nil {
				return err
			}
			if _, err := ctx.glossary.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Glossary entry deleted successfully!")
			return nil
		},
	}
}
