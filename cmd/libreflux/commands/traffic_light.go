package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/librescoot/libreflux/fsm"
	"github.com/spf13/cobra"
)

const (
	stateRed    fsm.StateID = "red"
	stateYellow fsm.StateID = "yellow"
	stateGreen  fsm.StateID = "green"

	trGo   fsm.Trigger = "go"
	trStop fsm.Trigger = "stop"
)

var lightOrder = []fsm.StateID{stateRed, stateYellow, stateGreen}

// trafficLight is shared by every machine the command builds
var trafficLight = fsm.NewDefinition("TrafficLight").
	State("Red", fsm.AsInitial()).
	State("Yellow").
	State("Green").
	Transition(stateRed, trGo, stateYellow).
	Transition(stateYellow, trGo, stateGreen).
	Transition(stateYellow, trStop, stateRed).
	Transition(stateGreen, trStop, stateYellow).
	After(trGo, func(c *fsm.Context) error {
		l := c.Data.(*lights)
		l.print(c.CurrentState())
		switch c.CurrentState() {
		case stateYellow:
			c.StartTimer("next", l.yellow, trGo, nil)
		case stateGreen:
			c.StartTimer("next", l.green, trStop, nil)
		}
		return nil
	}).
	After(trStop, func(c *fsm.Context) error {
		l := c.Data.(*lights)
		l.print(c.CurrentState())
		if c.CurrentState() == stateYellow {
			c.StartTimer("next", l.yellow, trStop, nil)
		} else {
			close(l.cycled)
		}
		return nil
	})

// lights renders the machine and holds the phase durations
type lights struct {
	out    io.Writer
	yellow time.Duration
	green  time.Duration
	last   time.Time
	cycled chan struct{}
}

func (l *lights) print(current fsm.StateID) {
	var b strings.Builder
	for _, id := range lightOrder {
		if id == current {
			b.WriteString("●")
		} else {
			b.WriteString("○")
		}
	}
	now := time.Now()
	fmt.Fprintf(l.out, "%s runtime: %.4f seconds\n", b.String(), now.Sub(l.last).Seconds())
	l.last = now
}

func newTrafficLightCommand(e *env) *cobra.Command {
	l := &lights{}

	cmd := &cobra.Command{
		Use:   "traffic-light",
		Short: "Cycle a traffic light state machine once",
		Long: `Run the traffic light machine from red through yellow and green back
to red. Phases are driven by state timers started from after-hooks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l.out = cmd.OutOrStdout()
			l.cycled = make(chan struct{})
			m, err := trafficLight.Build(
				fsm.WithLogger(e.logger),
				fsm.WithRegistry(e.registry),
				fsm.WithData(l),
				fsm.WithStoreOptions(e.storeOptions()...),
			)
			if err != nil {
				return err
			}
			return runTrafficLight(cmd.Context(), m, l)
		},
	}

	cmd.Flags().DurationVar(&l.yellow, "yellow", time.Second, "time spent in yellow")
	cmd.Flags().DurationVar(&l.green, "green", 5*time.Second, "time spent in green")

	return cmd
}

func runTrafficLight(ctx context.Context, m *fsm.Machine, l *lights) error {
	fmt.Fprintln(l.out, "RYG")
	l.last = time.Now()
	l.print(m.CurrentState())

	if err := m.Run(ctx); err != nil {
		return err
	}
	if err := m.Trigger(trGo, nil); err != nil {
		return err
	}

	select {
	case <-l.cycled:
	case <-ctx.Done():
	}
	return m.Done(ctx)
}
