// Package authz decides which role may touch which resource.
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Resources guarded by the policy.
const (
	ObjLibrary  = "library"  // friends, suggestions, import/export, leaderboard
	ObjSelf     = "self"     // the caller's own credentials
	ObjAccounts = "accounts" // other people's accounts
)

// Actions.
const (
	ActRead  = "read"
	ActWrite = "write"
)

// Enforcer wraps a synced casbin enforcer loaded with the built-in RBAC policy.
type Enforcer struct {
	e *casbin.SyncedEnforcer
}

// New builds an enforcer from the embedded model and policy.
func New() (*Enforcer, error) {
	m, err := casbinmodel.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	if err := loadPolicy(e, embeddedPolicy); err != nil {
		return nil, err
	}
	return &Enforcer{e: e}, nil
}

func loadPolicy(e *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := e.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := e.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Allowed reports whether role may perform act on obj.
func (z *Enforcer) Allowed(role model.Role, obj, act string) (bool, error) {
	ok, err := z.e.Enforce(string(role), obj, act)
	if err != nil {
		return false, fmt.Errorf("enforce: %w", err)
	}
	return ok, nil
}

// Check is Allowed that turns a denial into errs.ErrForbidden.
func (z *Enforcer) Check(role model.Role, obj, act string) error {
	ok, err := z.Allowed(role, obj, act)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrForbidden
	}
	return nil
}
