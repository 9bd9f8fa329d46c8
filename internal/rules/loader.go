package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-proc-requisitions/configs"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

// Source supplies a raw rule set.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]WorkflowRule, error)
}

// Load reads src and builds an evaluator. Any failure is logged and produces a
// fail-closed evaluator, so routing never falls back to auto-approval.
func Load(ctx context.Context, src Source, log *logger.Logger) *Evaluator {
	set, err := src.Load(ctx)
	if err != nil {
		log.Error().Err(err).Str("source", src.Name()).Msg("Failed to load workflow rules, rejecting all requisitions")
		return FailClosed(fmt.Sprintf("rule source %s: %v", src.Name(), err))
	}

	ev := NewEvaluator(set)
	if err := ev.Err(); err != nil {
		log.Error().Err(err).Str("source", src.Name()).Msg("Workflow rules are invalid, rejecting all requisitions")
		return ev
	}
	log.Info().Str("source", src.Name()).Int("rules", len(set)).Msg("Workflow rules loaded")
	return ev
}

// ── YAML ─────────────────────────────────────────────────────────────────────

type ruleFile struct {
	Rules []WorkflowRule `yaml:"rules"`
}

// ParseYAML decodes a rule file. Unknown keys are an error.
func ParseYAML(data []byte) ([]WorkflowRule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f ruleFile
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "failed to parse rule file")
	}
	return f.Rules, nil
}

// FileSource reads rules from a YAML file, or the embedded default set when
// Path is empty.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string {
	if s.Path == "" {
		return "embedded:rules.yaml"
	}
	return "file:" + s.Path
}

func (s FileSource) Load(_ context.Context) ([]WorkflowRule, error) {
	if s.Path == "" {
		return ParseYAML(configs.DefaultRules)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "failed to read rule file")
	}
	return ParseYAML(data)
}

// StaticSource serves an in-memory rule set.
type StaticSource []WorkflowRule

func (s StaticSource) Name() string { return "static" }

func (s StaticSource) Load(_ context.Context) ([]WorkflowRule, error) {
	return []WorkflowRule(s), nil
}

// ── Database ─────────────────────────────────────────────────────────────────

type ruleLister interface {
	ListActive(ctx context.Context) ([]*repository.WorkflowRuleRow, error)
}

// DatabaseSource reads active rules from the workflow_rules table.
type DatabaseSource struct {
	Repo ruleLister
}

func (s DatabaseSource) Name() string { return "database:workflow_rules" }

func (s DatabaseSource) Load(ctx context.Context) ([]WorkflowRule, error) {
	rows, err := s.Repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	set := make([]WorkflowRule, 0, len(rows))
	for _, row := range rows {
		r := WorkflowRule{ID: row.ID, Name: row.Name, Priority: row.Priority}
		if err := json.Unmarshal(row.Condition, &r.Condition); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "invalid condition on rule "+row.ID)
		}
		if err := json.Unmarshal(row.Action, &r.Action); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "invalid action on rule "+row.ID)
		}
		set = append(set, r)
	}
	return set, nil
}
