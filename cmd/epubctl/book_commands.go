// cmd/epubctl/book_commands.go
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.epub>",
		Short: "Import an EPUB file into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := ctx.books.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Book %q loaded successfully!\n", book.Title)
			fmt.Fprintf(out, "ID: %d\n", book.ID)
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List imported books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := ctx.books.ListBooks(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(books) == 0 {
				fmt.Fprintln(out, "No books imported")
				return nil
			}

			rows := make([][]string, 0, len(books))
			for _, book := range books {
				rows = append(rows, []string{
					strconv.FormatInt(book.ID, 10),
					book.Title,
					book.Author,
					book.Language,
					strconv.Itoa(book.ChapterCount),
					fmt.Sprintf("%d/%d", book.TranslatedCount, book.ChunkCount),
					fmt.Sprintf("%d%%", book.Percent()),
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"ID", "Title", "Author", "Language", "Chapters", "Chunks", "Progress"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <book-id>",
		Short: "Show the parts and chapters of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0], "book")
			if err != nil {
				return err
			}
			book, err := ctx.books.GetBookTree(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", book.Title)
			if book.Author != "" {
				fmt.Fprintf(out, "Author: %s\n", book.Author)
			}
			fmt.Fprintf(out, "Language: %s\n", book.Language)

			var rows [][]string
			for _, part := range book.Parts {
				for _, chapter := range part.Chapters {
					status := ""
					if chapter.IsTranslated() {
						status = "done"
					}
					rows = append(rows, []string{
						part.DisplayTitle(),
						strconv.FormatInt(chapter.ID, 10),
						chapter.DisplayTitle(),
						fmt.Sprintf("%d/%d", chapter.TranslatedCount, chapter.ChunkCount),
						status,
					})
				}
			}
			fmt.Fprint(out, renderTable(
				[]string{"Part", "Chapter ID", "Title", "Chunks", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <book-id>",
		Short: "Export a book as EPUB using translated text where available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0], "book")
			if err != nil {
				return err
			}
			result, err := ctx.exporter.ExportEPUB(cmd.Context(), id)
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = result.Filename
			}
			if err := os.WriteFile(path, result.Data, 0644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d chapters to %s (%d bytes)\n", result.Chapters, path, result.FileSize)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to book_<id>.epub)")
	return cmd
}
