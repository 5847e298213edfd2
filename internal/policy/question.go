// Package policy evaluates tenant governance rules: deny rules on the raw question before
// retrieval, and document visibility after retrieval.
package policy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// DefaultRefusal is used when neither the rule nor the tenant policy carries a message.
const DefaultRefusal = "I can't help with that request based on your organization's policy."

// Decision reasons of the question stage.
const (
	ReasonDenyKeywords = "policy:" + models.RuleDenyKeywords
	ReasonDenyRegex    = "policy:" + models.RuleDenyRegex
)

// RuleStore loads a tenant's policy. A nil policy means the tenant has none.
type RuleStore interface {
	GetTenantPolicy(ctx context.Context, tenantID string) (*models.TenantPolicy, error)
}

// Engine evaluates the question stage. Policies are loaded fresh on every call so
// edits take effect immediately.
type Engine struct {
	rules  RuleStore
	logger *zap.Logger

	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

// NewEngine creates a question-stage engine.
func NewEngine(rules RuleStore, logger *zap.Logger) *Engine {
	return &Engine{
		rules:    rules,
		logger:   utils.OrNop(logger),
		compiled: make(map[string]*regexp.Regexp),
	}
}

// Evaluate runs the tenant's rules in stored order against the question. The first
// matching rule refuses; no match allows. Errors come only from the rule store.
func (e *Engine) Evaluate(ctx context.Context, tenantID, question string) (models.PolicyDecision, error) {
	policy, err := e.rules.GetTenantPolicy(ctx, tenantID)
	if err != nil {
		return models.PolicyDecision{}, fmt.Errorf("load tenant policy: %w", err)
	}
	if policy == nil || len(policy.Rules) == 0 {
		return models.Allow(), nil
	}
	refusal := policy.RefusalMessage
	if strings.TrimSpace(refusal) == "" {
		refusal = DefaultRefusal
	}
	lowered := strings.ToLower(question)

	for i, rule := range policy.Rules {
		var matched bool
		var reason string
		switch rule.Type {
		case models.RuleDenyKeywords:
			matched, reason = e.matchKeywords(tenantID, i, rule, lowered), ReasonDenyKeywords
		case models.RuleDenyRegex:
			matched, reason = e.matchRegex(tenantID, i, rule, question), ReasonDenyRegex
		default:
			e.logger.Warn("skipping policy rule with unknown type",
				zap.String("tenant_id", tenantID), zap.Int("rule", i), zap.String("type", rule.Type))
			continue
		}
		if matched {
			msg := rule.Message
			if strings.TrimSpace(msg) == "" {
				msg = refusal
			}
			e.logger.Debug("question refused by policy",
				zap.String("tenant_id", tenantID), zap.Int("rule", i), zap.String("reason", reason))
			return models.Refuse(reason, msg), nil
		}
	}
	return models.Allow(), nil
}

func (e *Engine) matchKeywords(tenantID string, idx int, rule models.PolicyRule, lowered string) bool {
	usable := 0
	for _, kw := range rule.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		usable++
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	if usable == 0 {
		e.logger.Warn("skipping deny_keywords rule without keywords",
			zap.String("tenant_id", tenantID), zap.Int("rule", idx))
	}
	return false
}

func (e *Engine) matchRegex(tenantID string, idx int, rule models.PolicyRule, question string) bool {
	if rule.Pattern == "" {
		e.logger.Warn("skipping deny_regex rule without pattern",
			zap.String("tenant_id", tenantID), zap.Int("rule", idx))
		return false
	}
	re, err := e.compile(rule.Pattern)
	if err != nil {
		e.logger.Warn("skipping deny_regex rule with invalid pattern",
			zap.String("tenant_id", tenantID), zap.Int("rule", idx), zap.Error(err))
		return false
	}
	return re.MatchString(question)
}

// compile caches compiled patterns by source text.
func (e *Engine) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.compiled[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	e.compiled[pattern] = re
	return re, nil
}

// Validate reports the first malformed rule of a policy: an unknown type, a
// deny_keywords rule without keywords, or a deny_regex pattern that does not compile.
func Validate(p models.TenantPolicy) error {
	for i, rule := range p.Rules {
		switch rule.Type {
		case models.RuleDenyKeywords:
			usable := false
			for _, kw := range rule.Keywords {
				if strings.TrimSpace(kw) != "" {
					usable = true
					break
				}
			}
			if !usable {
				return fmt.Errorf("rule %d: deny_keywords needs at least one keyword", i)
			}
		case models.RuleDenyRegex:
			if rule.Pattern == "" {
				return fmt.Errorf("rule %d: deny_regex needs a pattern", i)
			}
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				return fmt.Errorf("rule %d: %w", i, err)
			}
		default:
			return fmt.Errorf("rule %d: unknown type %q", i, rule.Type)
		}
	}
	return nil
}
