package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/librescoot/libreflux/topic"
	"github.com/spf13/cobra"
)

func newTopicCommand(e *env) *cobra.Command {
	var producers []string

	cmd := &cobra.Command{
		Use:   "topic",
		Short: "Gather numbers from producers and sum them in a consumer",
		Long: `Register one producer per --producer flag, each returning its
comma-separated numbers, and a consumer printing the gathered sequence and
its sum. Values arrive in producer order.`,
		Example: `  libreflux topic --producer 1 --producer 2,3
  libreflux topic --producer ""`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := topic.New(
				topic.WithLogger(e.logger),
				topic.WithRegistry(e.registry),
				topic.WithStoreOptions(e.storeOptions()...),
			)

			for _, arg := range producers {
				numbers, err := parseNumbers(arg)
				if err != nil {
					return err
				}
				o.Produce("numbers", topic.Independent(func(context.Context) ([]int, error) {
					return numbers, nil
				}))
			}

			out := cmd.OutOrStdout()
			o.Consume("numbers", topic.ConsumerOf(func(_ context.Context, values []int) error {
				if len(values) == 0 {
					fmt.Fprintln(out, "no values produced")
					return nil
				}
				sum := 0
				for _, v := range values {
					sum += v
				}
				fmt.Fprintf(out, "values: %v sum: %d\n", values, sum)
				return nil
			}))

			return o.Execute(cmd.Context(), "numbers", nil)
		},
	}

	cmd.Flags().StringArrayVar(&producers, "producer", []string{"1", "2,3"}, "comma-separated numbers returned by one producer")

	return cmd
}

func parseNumbers(arg string) ([]int, error) {
	var numbers []int
	for field := range strings.SplitSeq(arg, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid producer value %q: %w", field, err)
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}
