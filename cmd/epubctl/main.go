// cmd/epubctl/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/Corphon/EpubTranslator/internal/translate/providers/lambda"
	_ "github.com/Corphon/EpubTranslator/internal/translate/providers/yandex"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmdCtx := newCommandContext()
	err := newRootCommand(cmdCtx).ExecuteContext(ctx)
	cmdCtx.close()
	stop()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
