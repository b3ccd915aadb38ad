package rbac

import (
	"log/slog"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Policy answers "may this role call method on path".
type Policy interface {
	CanHTTP(role, path, method string) bool
}

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// defaultPolicy mirrors the role annotations of the API surface.
// Roles: ADMIN > LEADER > USER only by explicit grants, no inheritance.
var defaultPolicy = [][3]string{
	// users
	{"ADMIN", "/api/users", "GET|POST"},
	{"ADMIN", "/api/users/:id", "DELETE"},
	{"ADMIN", "/api/users/:id/admin", "PATCH"},
	{"*", "/api/users/:id", "GET|PATCH"},
	{"*", "/api/users/avatar", "POST|DELETE"},
	// tasks
	{"*", "/api/tasks", "GET"},
	{"*", "/api/tasks/:id", "GET"},
	{"ADMIN", "/api/tasks", "POST"},
	{"LEADER", "/api/tasks", "POST"},
	{"ADMIN", "/api/tasks/:id", "PATCH"},
	{"LEADER", "/api/tasks/:id", "PATCH"},
	{"ADMIN", "/api/tasks/:id", "DELETE"},
	// schedules
	{"ADMIN", "/api/schedules", "GET|POST"},
	{"*", "/api/schedules/my", "GET"},
	{"*", "/api/schedules/:id", "GET"},
	{"ADMIN", "/api/schedules/:id", "PATCH|DELETE"},
	{"LEADER", "/api/schedules/:id", "PATCH"},
	{"ADMIN", "/api/schedules/:id/users/:userId", "POST|DELETE"},
	{"ADMIN", "/api/schedules/:id/upload", "POST"},
	{"LEADER", "/api/schedules/:id/upload", "POST"},
	{"*", "/api/schedules/:id/uploaded-file", "GET"},
	{"*", "/api/schedules/:id/pdf", "GET"},
	// messaging: every role, participancy is checked by the service
	{"*", "/api/messaging/conversations", "GET|POST"},
	{"*", "/api/messaging/conversations/unread-count", "GET"},
	{"*", "/api/messaging/conversations/:id/messages", "GET|POST"},
	{"*", "/api/messaging/conversations/:id/messages/upload", "POST"},
	{"*", "/api/messaging/messages/download/:fileName", "GET"},
}

type casbinPolicy struct {
	enf *casbin.Enforcer
}

// NewDefault builds an enforcer over the built-in policy table.
func NewDefault() (Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enf, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	for _, p := range defaultPolicy {
		if _, err := enf.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, err
		}
	}
	return &casbinPolicy{enf: enf}, nil
}

// NewFromFiles loads model and policy from external files, for deployments
// that need a policy different from the built-in table.
func NewFromFiles(modelPath, policyPath string) (Policy, error) {
	enf, err := casbin.NewEnforcer(modelPath, policyPath)
	if err != nil {
		return nil, err
	}
	return &casbinPolicy{enf: enf}, nil
}

func (p *casbinPolicy) CanHTTP(role, path, method string) bool {
	for _, sub := range []string{role, "*"} {
		ok, err := p.enf.Enforce(sub, path, method)
		if err != nil {
			slog.Warn("rbac enforce failed", "role", sub, "path", path, "err", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
