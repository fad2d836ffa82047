package auth

import (
	"context"
	"strings"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"

	"github.com/solarafrica/solarplanner/internal/storage"
)

// Adapter implements the Casbin persist.Adapter interface on top of the
// storage rule table.
type Adapter struct {
	ctx   context.Context
	store storage.RuleStore
}

// NewAdapter returns a new Casbin adapter. Casbin's adapter API carries no
// context, so ctx is used for every storage call.
func NewAdapter(ctx context.Context, s storage.RuleStore) *Adapter {
	return &Adapter{ctx: ctx, store: s}
}

func toRule(ptype string, values []string) storage.CasbinRule {
	r := storage.CasbinRule{PType: ptype}
	fields := []*string{&r.V0, &r.V1, &r.V2, &r.V3, &r.V4, &r.V5}
	for i, v := range values {
		if i < len(fields) {
			*fields[i] = v
		}
	}
	return r
}

func ruleValues(r storage.CasbinRule) []string {
	all := []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
	n := len(all)
	for n > 0 && all[n-1] == "" {
		n--
	}
	return all[:n]
}

// LoadPolicy loads all policy rules from the storage.
func (a *Adapter) LoadPolicy(m model.Model) error {
	rules, err := a.store.LoadCasbinRules(a.ctx)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		line := strings.Join(append([]string{rule.PType}, ruleValues(rule)...), ", ")
		if err := persist.LoadPolicyLine(line, m); err != nil {
			return err
		}
	}
	return nil
}

// SavePolicy replaces the stored rules with the model's.
func (a *Adapter) SavePolicy(m model.Model) error {
	existing, err := a.store.LoadCasbinRules(a.ctx)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if err := a.store.RemoveCasbinRule(a.ctx, r); err != nil {
			return err
		}
	}
	for _, sec := range []string{"p", "g"} {
		for ptype, ast := range m[sec] {
			for _, values := range ast.Policy {
				if err := a.store.AddCasbinRule(a.ctx, toRule(ptype, values)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// AddPolicy adds a policy rule to the storage.
func (a *Adapter) AddPolicy(sec string, ptype string, rule []string) error {
	return a.store.AddCasbinRule(a.ctx, toRule(ptype, rule))
}

// RemovePolicy removes a policy rule from the storage.
func (a *Adapter) RemovePolicy(sec string, ptype string, rule []string) error {
	return a.store.RemoveCasbinRule(a.ctx, toRule(ptype, rule))
}

// RemoveFilteredPolicy removes every stored rule of ptype whose values match
// fieldValues starting at fieldIndex. Empty filter values match anything.
func (a *Adapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	rules, err := a.store.LoadCasbinRules(a.ctx)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if r.PType != ptype {
			continue
		}
		all := []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
		match := true
		for i, want := range fieldValues {
			idx := fieldIndex + i
			if want == "" || idx >= len(all) {
				continue
			}
			if all[idx] != want {
				match = false
				break
			}
		}
		if match {
			if err := a.store.RemoveCasbinRule(a.ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}
