package capability

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var casbinModelContent string

//go:embed default_policy.csv
var defaultPolicyContent string

// RoleSource resolves the primitive capabilities granted by a set of roles.
type RoleSource interface {
	CapabilitiesForRoles(ctx context.Context, roles []string) (Caps, error)
}

// CasbinRoleSource reads role capabilities from a casbin RBAC policy:
// "p, <role>, <capability>" grants, "g, <role>, <parent role>" inheritance.
type CasbinRoleSource struct {
	enforcer casbin.IEnforcer
}

// NewCasbinRoleSource loads the policy from policyFile, or the built-in policy
// when policyFile is empty.
func NewCasbinRoleSource(policyFile string) (*CasbinRoleSource, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	if policyFile != "" {
		enforcer, err := casbin.NewSyncedEnforcer(m, policyFile)
		if err != nil {
			return nil, fmt.Errorf("create casbin enforcer: %w", err)
		}
		return &CasbinRoleSource{enforcer: enforcer}, nil
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	if err := loadPolicyText(enforcer, defaultPolicyContent); err != nil {
		return nil, err
	}
	return &CasbinRoleSource{enforcer: enforcer}, nil
}

// NewCasbinRoleSourceFromEnforcer wraps an enforcer built elsewhere, e.g. one
// backed by a database adapter.
func NewCasbinRoleSourceFromEnforcer(enforcer casbin.IEnforcer) *CasbinRoleSource {
	return &CasbinRoleSource{enforcer: enforcer}
}

func loadPolicyText(enforcer casbin.IEnforcer, text string) error {
	var policies, groupings [][]string

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(fields) != 3 {
			return fmt.Errorf("invalid policy line %q", line)
		}
		switch fields[0] {
		case "p":
			policies = append(policies, fields[1:])
		case "g":
			groupings = append(groupings, fields[1:])
		default:
			return fmt.Errorf("unknown policy type %q", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if _, err := enforcer.AddPolicies(policies); err != nil {
		return fmt.Errorf("load casbin policies: %w", err)
	}
	if _, err := enforcer.AddGroupingPolicies(groupings); err != nil {
		return fmt.Errorf("load casbin role inheritance: %w", err)
	}
	return nil
}

// CapabilitiesForRoles is the union of the capabilities of every role,
// including the ones inherited from parent roles.
func (s *CasbinRoleSource) CapabilitiesForRoles(ctx context.Context, roles []string) (Caps, error) {
	caps := Caps{}
	for _, role := range roles {
		perms, err := s.enforcer.GetImplicitPermissionsForUser(role)
		if err != nil {
			return nil, fmt.Errorf("casbin permissions for role %s: %w", role, err)
		}
		for _, perm := range perms {
			if len(perm) < 2 {
				continue
			}
			caps[perm[1]] = true
		}
	}
	return caps, nil
}
