// cmd/epubctl/translate_command.go
package main

import (
	"errors"
	"fmt"

	"github.com/Corphon/EpubTranslator/internal/models"
	"github.com/Corphon/EpubTranslator/internal/services"
	"github.com/spf13/cobra"
)

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	var bookID, chapterID int64
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a chapter or a whole book with the configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (bookID > 0) == (chapterID > 0) {
				return errors.New("specify exactly one of --book or --chapter")
			}
			out := cmd.OutOrStdout()

			if chapterID > 0 {
				detail, err := ctx.chapters.GetChapter(cmd.Context(), chapterID)
				if err != nil {
					return err
				}
				result, err := ctx.translator.TranslateChapter(cmd.Context(), chapterID)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, services.ChapterResultMessage(detail.Chapter.DisplayTitle(), result))
				return nil
			}

			book, err := ctx.books.GetBook(cmd.Context(), bookID)
			if err != nil {
				return err
			}
			result, err := ctx.translator.TranslateBook(cmd.Context(), bookID, func(done, total int, chapter *models.Chapter) {
				fmt.Fprintf(out, "[%d/%d] %s\n", done, total, chapter.DisplayTitle())
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, services.BookResultMessage(book.Title, result))
			return nil
		},
	}
	cmd.Flags().Int64Var(&bookID, "book", 0, "Book ID to translate")
	cmd.Flags().Int64Var(&chapterID, "chapter", 0, "Chapter ID to translate")
	return cmd
}
