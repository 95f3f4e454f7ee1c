package commands

import (
	"fmt"

	"github.com/librescoot/libreflux/fsm"
	"github.com/spf13/cobra"
)

func newValidateCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a YAML state machine definition",
		Long: `Parse a YAML machine definition, validate its structure and compile
its transition table. Prints the states and triggers on success.`,
		Example: `  libreflux validate door.yaml
  cat door.yaml | libreflux validate -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			def, err := fsm.LoadDefinition(in)
			if err != nil {
				return err
			}
			if err := def.Compile(); err != nil {
				return err
			}

			states, err := def.States()
			if err != nil {
				return err
			}
			triggers, err := def.Triggers()
			if err != nil {
				return err
			}

			e.logger.Debug("definition compiled", "name", def.Name(), "states", len(states), "triggers", len(triggers))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s is valid\n", def.Name())
			for _, s := range states {
				marker := " "
				if s.Initial {
					marker = "*"
				}
				line := fmt.Sprintf("%s %s (%s)", marker, s.ID, s.Name)
				if s.Timeout > 0 {
					line += fmt.Sprintf(" timeout %s -> %s", s.Timeout, s.TimeoutTrigger)
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "triggers: %v\n", triggers)
			return nil
		},
	}

	return cmd
}
