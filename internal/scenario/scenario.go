package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fluxr/internal/debug"
)

// Scenario is a declarative engine script.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name" json:"name"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Mode is the initial history mode. Defaults to STATE.
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	// Session is the fixed session token. Defaults to DefaultSession.
	Session string `yaml:"session,omitempty" json:"session,omitempty"`

	Stores     []StoreDef  `yaml:"stores" json:"stores"`
	Actions    []ActionDef `yaml:"actions" json:"actions"`
	Steps      []Step      `yaml:"steps" json:"steps"`
	Assertions []Assertion `yaml:"assertions" json:"assertions"`
}

// DefaultSession is the session token of scenarios that do not set one.
const DefaultSession = "scenario-default"

// StoreDef declares a store and its reactions.
type StoreDef struct {
	ID      string     `yaml:"id" json:"id"`
	Initial any        `yaml:"initial" json:"initial"`
	On      []Reaction `yaml:"on,omitempty" json:"on,omitempty"`
}

// Reaction is one store subscription.
type Reaction struct {
	// Actions lists the channels that trigger the reaction. Empty means
	// every user action.
	Actions []string `yaml:"actions,omitempty" json:"actions,omitempty"`

	Op    string `yaml:"op" json:"op"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`

	// WaitFor lists store ids that must change before the reaction runs.
	WaitFor []string `yaml:"wait_for,omitempty" json:"wait_for,omitempty"`

	// Source is the store read by count and copy.
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

// ActionDef declares an action channel. Multi-argument payloads become a
// list.
type ActionDef struct {
	Name string `yaml:"name" json:"name"`
}

// Step is either a dispatch or a history command.
type Step struct {
	Dispatch string   `yaml:"dispatch,omitempty" json:"dispatch,omitempty"`
	Args     []any    `yaml:"args,omitempty" json:"args,omitempty"`
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Debug is one of sweep, commit, reset, mode, jump or toggle.
	Debug string `yaml:"debug,omitempty" json:"debug,omitempty"`
	// Index addresses a history snapshot for jump and toggle.
	Index *int `yaml:"index,omitempty" json:"index,omitempty"`
	// Mode is the target of a mode command.
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	// ExpectError marks a step that must fail.
	ExpectError bool `yaml:"expect_error,omitempty" json:"expect_error,omitempty"`
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type is one of state, history_len, inactive, current, keys or mode.
	Type string `yaml:"type" json:"type"`

	// Store and Equals are used by state. Path selects a value inside the
	// state with gjson syntax.
	Store  string `yaml:"store,omitempty" json:"store,omitempty"`
	Path   string `yaml:"path,omitempty" json:"path,omitempty"`
	Equals any    `yaml:"equals,omitempty" json:"equals,omitempty"`

	// Count is used by history_len.
	Count *int `yaml:"count,omitempty" json:"count,omitempty"`
	// Index is used by current.
	Index *int `yaml:"index,omitempty" json:"index,omitempty"`
	// Indices lists the exact set of inactive snapshots.
	Indices []int `yaml:"indices,omitempty" json:"indices,omitempty"`
	// Keys is the expected key sequence.
	Keys []int64 `yaml:"keys,omitempty" json:"keys,omitempty"`
	// Mode is the expected history mode.
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// Reaction ops.
const (
	OpAdd     = "add"
	OpSet     = "set"
	OpPayload = "payload"
	OpAppend  = "append"
	OpMerge   = "merge"
	OpCount   = "count"
	OpCopy    = "copy"
)

// Debug commands.
const (
	DebugSweep  = "sweep"
	DebugCommit = "commit"
	DebugReset  = "reset"
	DebugMode   = "mode"
	DebugJump   = "jump"
	DebugToggle = "toggle"
)

// Assertion types.
const (
	AssertState      = "state"
	AssertHistoryLen = "history_len"
	AssertInactive   = "inactive"
	AssertCurrent    = "current"
	AssertKeys       = "keys"
	AssertMode       = "mode"
)

// Format is a scenario file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported scenario file %q: want .yaml, .yml or .cue", path)
	}
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data, format, path)
}

// Parse decodes and validates a scenario. The filename is used in CUE
// error positions and may be empty.
func Parse(data []byte, format Format, filename string) (*Scenario, error) {
	var (
		sc  Scenario
		err error
	)
	switch format {
	case FormatYAML:
		err = decodeYAML(data, &sc)
	case FormatCUE:
		err = decodeCUE(data, filename, &sc)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, err
	}

	if err := sc.normalize(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := validate(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

func decodeYAML(data []byte, sc *Scenario) error {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(sc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func decodeCUE(data []byte, filename string, sc *Scenario) error {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return fmt.Errorf("failed to compile CUE: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("CUE scenario is not concrete: %w", err)
	}

	js, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to export CUE: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(js))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(sc); err != nil {
		return fmt.Errorf("failed to decode CUE scenario: %w", err)
	}
	return nil
}

func (sc *Scenario) normalize() error {
	var err error
	for i := range sc.Stores {
		st := &sc.Stores[i]
		if st.Initial, err = normalize(st.Initial); err != nil {
			return fmt.Errorf("stores[%d].initial: %w", i, err)
		}
		for j := range st.On {
			if st.On[j].Value, err = normalize(st.On[j].Value); err != nil {
				return fmt.Errorf("stores[%d].on[%d].value: %w", i, j, err)
			}
		}
	}
	for i := range sc.Steps {
		for j := range sc.Steps[i].Args {
			if sc.Steps[i].Args[j], err = normalize(sc.Steps[i].Args[j]); err != nil {
				return fmt.Errorf("steps[%d].args[%d]: %w", i, j, err)
			}
		}
	}
	for i := range sc.Assertions {
		if sc.Assertions[i].Equals, err = normalize(sc.Assertions[i].Equals); err != nil {
			return fmt.Errorf("assertions[%d].equals: %w", i, err)
		}
	}
	return nil
}

// historyMode returns the parsed initial mode.
func (sc *Scenario) historyMode() (debug.Mode, error) {
	if sc.Mode == "" {
		return debug.ModeState, nil
	}
	return debug.ParseMode(sc.Mode)
}

func (sc *Scenario) session() string {
	if sc.Session == "" {
		return DefaultSession
	}
	return sc.Session
}
