package fsm

import (
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MachineConfig is the YAML form of a definition. Hooks and actions are
// code and are attached to the returned Definition afterwards.
//
//	name: TrafficLight
//	states:
//	  - name: Red
//	    initial: true
//	  - name: Yellow
//	  - name: Green
//	transitions:
//	  - from: red
//	    to: yellow
//	    triggers: [go]
type MachineConfig struct {
	Name        string             `yaml:"name" validate:"required"`
	States      []StateConfig      `yaml:"states" validate:"required,min=1,dive"`
	Transitions []TransitionConfig `yaml:"transitions" validate:"dive"`
}

// StateConfig describes one state. OnTimeout is the trigger fired when
// Timeout elapses.
type StateConfig struct {
	Name      string `yaml:"name" validate:"required"`
	ID        string `yaml:"id,omitempty"`
	Initial   bool   `yaml:"initial,omitempty"`
	Timeout   string `yaml:"timeout,omitempty" validate:"required_with=OnTimeout"`
	OnTimeout string `yaml:"on_timeout,omitempty" validate:"required_with=Timeout"`
}

// TransitionConfig describes one transition; From may be "*"
type TransitionConfig struct {
	From     string   `yaml:"from" validate:"required"`
	To       string   `yaml:"to" validate:"required"`
	Triggers []string `yaml:"triggers" validate:"required,min=1,dive,required"`
}

var validate = validator.New()

// LoadDefinition reads a YAML machine config from r
func LoadDefinition(r io.Reader) (*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read machine config: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition parses and validates a YAML machine config
func ParseDefinition(data []byte) (*Definition, error) {
	var cfg MachineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse machine config: %w", err)
	}
	return cfg.Definition()
}

// Definition validates the config and converts it into a builder
func (cfg MachineConfig) Definition() (*Definition, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid machine config: %w", err)
	}

	d := NewDefinition(cfg.Name)
	for _, s := range cfg.States {
		var opts []StateOption
		if s.ID != "" {
			opts = append(opts, WithID(StateID(s.ID)))
		}
		if s.Initial {
			opts = append(opts, AsInitial())
		}
		if s.Timeout != "" {
			timeout, err := time.ParseDuration(s.Timeout)
			if err != nil {
				return nil, fmt.Errorf("state %q: %w", s.Name, err)
			}
			opts = append(opts, WithTimeout(timeout, Trigger(s.OnTimeout)))
		}
		d.State(s.Name, opts...)
	}

	for _, t := range cfg.Transitions {
		triggers := make([]Trigger, len(t.Triggers))
		for i, name := range t.Triggers {
			triggers[i] = Trigger(name)
		}
		d.Transition(StateID(t.From), triggers[0], StateID(t.To), AlsoOn(triggers[1:]...))
	}

	return d, nil
}
