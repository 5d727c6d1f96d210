package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/brandpulse-backend/internal/client/brandapi"
	"github.com/yungbote/brandpulse-backend/internal/platform/envutil"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

type rootOptions struct {
	baseURL     string
	interval    time.Duration
	maxAttempts int
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", brandapi.UserMessage(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "brandctl",
		Short: "Run and inspect brand perception batches",
		Long: `brandctl drives the brandpulse batch API.

It starts batch executions for a project, polls them until they finish,
and prints the visibility, sentiment, comparison and accuracy views.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", envutil.String("BRANDPULSE_API_URL", "http://localhost:8080/api"), "API base URL including the /api prefix")
	root.PersistentFlags().DurationVar(&opts.interval, "interval", brandapi.DefaultPollInterval, "wait between polls")
	root.PersistentFlags().IntVar(&opts.maxAttempts, "max-attempts", brandapi.DefaultMaxAttempts, "maximum number of polls")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every poll")

	root.AddCommand(newBatchCmd(opts), newReportCmd(opts))
	return root
}

func (o *rootOptions) client() (*brandapi.Client, error) {
	log := logger.Nop()
	if o.verbose {
		l, err := logger.New("development")
		if err != nil {
			return nil, err
		}
		log = l
	}
	return brandapi.New(brandapi.Options{
		BaseURL:      o.baseURL,
		PollInterval: o.interval,
		MaxAttempts:  o.maxAttempts,
		Logger:       log,
	})
}
