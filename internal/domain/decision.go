package domain

// Decision is what the external planner returns for one iteration. Every field
// is untrusted until the scheduler has validated it.
type Decision struct {
	// Explanation is the planner's natural-language reasoning.
	Explanation string `json:"explanation"`

	// Commands are the shell actions to run, in order.
	Commands []CommandSpec `json:"commands,omitempty"`

	// Modification is an optional request to change the agent's own source.
	Modification *ModificationRequest `json:"modification,omitempty"`

	// NextGoal is an optional suggestion for the following goal.
	NextGoal string `json:"next_goal,omitempty"`

	// Usage reports the tokens the planning call consumed, when known.
	Usage *Usage `json:"usage,omitempty"`
}

// ModificationRequest asks the self-modification engine for a change.
// An empty Target requests a whole-tree analysis.
type ModificationRequest struct {
	Enabled   bool   `json:"enabled"`
	Target    string `json:"target,omitempty"`
	Request   string `json:"request"`
	AutoApply bool   `json:"auto_apply"`
}

// Usage is the metered consumption of one external model call.
type Usage struct {
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}
