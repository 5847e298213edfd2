package models

// Policy rule types.
const (
	RuleDenyKeywords = "deny_keywords"
	RuleDenyRegex    = "deny_regex"
)

// Policy actions.
const (
	ActionAllow  = "allow"
	ActionRefuse = "refuse"
)

// PolicyRule is a tenant-defined deny rule. Keywords is used by deny_keywords,
// Pattern by deny_regex. An empty Message falls back to the tenant refusal message.
type PolicyRule struct {
	Type     string   `json:"type" yaml:"type"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Pattern  string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Message  string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// TenantPolicy is a tenant's ordered rule list.
type TenantPolicy struct {
	RefusalMessage string       `json:"refusal_message,omitempty" yaml:"refusal_message,omitempty"`
	Rules          []PolicyRule `json:"rules" yaml:"rules"`
}

// PolicyDecision is the outcome of a policy stage.
type PolicyDecision struct {
	Action  string `json:"action"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Allowed reports whether the decision lets the request continue.
func (d PolicyDecision) Allowed() bool {
	return d.Action != ActionRefuse
}

// Allow is the decision returned when no rule matches.
func Allow() PolicyDecision {
	return PolicyDecision{Action: ActionAllow}
}

// Refuse builds a refusal decision.
func Refuse(reason, message string) PolicyDecision {
	return PolicyDecision{Action: ActionRefuse, Reason: reason, Message: message}
}
