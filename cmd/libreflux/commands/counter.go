package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/librescoot/libreflux"
	"github.com/spf13/cobra"
)

type counter struct {
	Value int
}

func (c *counter) Clone() *counter {
	cp := *c
	return &cp
}

func newCounterCommand(e *env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Run a counter whose effect keeps incrementing it",
		Long: `Run a counter store. Every increment adds the payload "inc" (default 1);
an effect dispatches the next increment with the current value until the
limit is reached, so the counter doubles: 1, 2, 4, 8, 16.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCounter(cmd.Context(), cmd.OutOrStdout(), limit, e.storeOptions())
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "stop dispatching once the value reaches this limit")

	return cmd
}

func runCounter(ctx context.Context, out io.Writer, limit int, opts []libreflux.Option) error {
	store := libreflux.New(&counter{}, opts...)

	store.Reducer("increment", func(_ context.Context, c *counter, a libreflux.Action) (*counter, error) {
		c.Value += libreflux.Value(a, "inc", 1)
		fmt.Fprintf(out, "%+v\n", *c)
		return c, nil
	})
	store.Effect("increment", func(_ context.Context, c *counter) error {
		if c.Value < limit {
			return store.Dispatch("increment", libreflux.Data{"inc": c.Value})
		}
		return nil
	})

	if err := store.Run(ctx); err != nil {
		return err
	}
	if err := store.Dispatch("increment", nil); err != nil {
		return err
	}
	return store.Done(ctx)
}
