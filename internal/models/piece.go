// Package models holds the plain data types shared across the piece
// engine and its collaborators: pieces, movements, rules, runtime piece
// state, agent responses, and task-queue records.
package models

import "fmt"

// AggregateType selects the combinator used to evaluate an aggregate
// rule on a parallel parent movement.
type AggregateType string

const (
	AggregateAny AggregateType = "any"
	AggregateAll AggregateType = "all"
)

// Sentinel movement names a rule's Next may hold instead of a real
// movement name.
const (
	Complete = "COMPLETE"
	Abort    = "ABORT"
)

// Rule is one ordered condition/target pair evaluated by the rule
// evaluator.
type Rule struct {
	Condition     string        `yaml:"condition"`
	Next          string        `yaml:"next,omitempty"`
	Appendix      string        `yaml:"appendix,omitempty"`
	IsAI          bool          `yaml:"-"`
	IsAggregate   bool          `yaml:"-"`
	AggregateType AggregateType `yaml:"-"`
	AggregateText string        `yaml:"-"`
}

// OutputContract describes one Phase-2 report file a movement must
// produce.
type OutputContract struct {
	Name        string `yaml:"name"`
	Label       string `yaml:"label,omitempty"`
	Description string `yaml:"description,omitempty"`
	Order       int    `yaml:"order,omitempty"`
	Format      string `yaml:"format,omitempty"`
}

// ArpeggioConfig configures the batch runner for an arpeggio movement.
type ArpeggioConfig struct {
	Source        string `yaml:"source"`
	SourcePath    string `yaml:"source_path"`
	BatchSize     int    `yaml:"batch_size"`
	Concurrency   int    `yaml:"concurrency"`
	MaxRetries    int    `yaml:"max_retries"`
	RetryDelayMs  int    `yaml:"retry_delay_ms"`
	TemplatePath  string `yaml:"template_path"`
	Merge         string `yaml:"merge"`
	OutputPath    string `yaml:"output_path,omitempty"`
}

// TeamLeaderConfig configures the (currently inert) decomposition hook
// for a movement.
type TeamLeaderConfig struct {
	Persona            string   `yaml:"persona,omitempty"`
	MaxParts           int      `yaml:"max_parts,omitempty"`
	TimeoutMs          int      `yaml:"timeout_ms,omitempty"`
	PartPersona        string   `yaml:"part_persona,omitempty"`
	PartAllowedTools   []string `yaml:"part_allowed_tools,omitempty"`
	PartEdit           bool     `yaml:"part_edit,omitempty"`
	PartPermissionMode string   `yaml:"part_permission_mode,omitempty"`
}

// Movement is one node in a piece's graph.
type Movement struct {
	Name                string           `yaml:"name"`
	Persona             string           `yaml:"persona"`
	PersonaDisplayName  string           `yaml:"persona_display_name,omitempty"`
	InstructionTemplate string           `yaml:"instruction_template"`
	PassPreviousResponse bool            `yaml:"pass_previous_response,omitempty"`
	Rules               []Rule          `yaml:"rules,omitempty"`
	OutputContracts     []OutputContract `yaml:"output_contracts,omitempty"`
	Parallel            []Movement      `yaml:"parallel,omitempty"`
	Arpeggio            *ArpeggioConfig `yaml:"arpeggio,omitempty"`
	TeamLeader          *TeamLeaderConfig `yaml:"team_leader,omitempty"`
	Edit                bool            `yaml:"edit,omitempty"`
	PermissionMode      string          `yaml:"permission_mode,omitempty"`
	Provider            string          `yaml:"provider,omitempty"`
	Model               string          `yaml:"model,omitempty"`
	ProviderOptions     map[string]any  `yaml:"provider_options,omitempty"`
}

// IsParallel reports whether this movement fans out into sub-movements.
func (m Movement) IsParallel() bool { return len(m.Parallel) > 0 }

// IsArpeggio reports whether this movement runs the batch runner.
func (m Movement) IsArpeggio() bool { return m.Arpeggio != nil }

// Piece is a named, immutable configuration describing a graph of
// movements.
type Piece struct {
	Name            string     `yaml:"name"`
	Description     string     `yaml:"description,omitempty"`
	InitialMovement string     `yaml:"initial_movement"`
	MaxMovements    int        `yaml:"max_movements"`
	Movements       []Movement `yaml:"movements"`

	// layer records which config layer this piece was resolved from
	// (project, global, or builtin); not part of the YAML, set by the
	// loader.
	layer string
}

// SetLayer records the resolution layer. Used by the piece loader.
func (p *Piece) SetLayer(layer string) { p.layer = layer }

// Layer returns the resolution layer ("project", "global", or
// "builtin").
func (p *Piece) Layer() string { return p.layer }

// FindMovement looks up a top-level movement by name. Parallel
// sub-movements nested inside a movement are not searched.
func (p *Piece) FindMovement(name string) (*Movement, bool) {
	for i := range p.Movements {
		if p.Movements[i].Name == name {
			return &p.Movements[i], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants of a piece: unique movement
// names, a resolvable initial movement, rule targets that reference
// either a real movement or a sentinel, and no nested parallel.
func (p *Piece) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("piece: name is required")
	}
	if p.InitialMovement == "" {
		return fmt.Errorf("piece %s: initial_movement is required", p.Name)
	}
	if p.MaxMovements <= 0 {
		return fmt.Errorf("piece %s: max_movements must be positive", p.Name)
	}
	if len(p.Movements) == 0 {
		return fmt.Errorf("piece %s: at least one movement is required", p.Name)
	}

	seen := make(map[string]bool, len(p.Movements))
	for _, m := range p.Movements {
		if m.Name == "" {
			return fmt.Errorf("piece %s: movement with empty name", p.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("piece %s: duplicate movement name %q", p.Name, m.Name)
		}
		seen[m.Name] = true

		if m.IsParallel() {
			for _, sub := range m.Parallel {
				if sub.IsParallel() {
					return fmt.Errorf("piece %s: movement %q: nested parallel is not allowed", p.Name, m.Name)
				}
			}
		}
	}

	if _, ok := seen[p.InitialMovement]; !ok {
		return fmt.Errorf("piece %s: initial_movement %q does not name a movement", p.Name, p.InitialMovement)
	}

	for _, m := range p.Movements {
		for _, r := range m.Rules {
			if r.Next == "" || r.Next == Complete || r.Next == Abort {
				continue
			}
			if !seen[r.Next] {
				return fmt.Errorf("piece %s: movement %q: rule targets unknown movement %q", p.Name, m.Name, r.Next)
			}
		}
	}

	return nil
}
