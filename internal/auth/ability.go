package auth

import (
	"fmt"

	"github.com/iurnickita/artcares/internal/model"
)

type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDestroy Action = "destroy"
	// manage - любое действие
	ActionManage Action = "manage"
)

type Resource string

const (
	ResourceArtwork        Resource = "artwork"
	ResourceReconciliation Resource = "reconciliation"
	// all - любой ресурс
	ResourceAll Resource = "all"
)

type Actor struct {
	Code string
	Role model.Role
}

// Target - ресурс и его владелец. Пустой владелец у ресурса без владельца
type Target struct {
	Resource Resource
	Owner    string
}

type Decision struct {
	Allowed bool
	Reason  string
}

type Ability interface {
	CanPerform(action Action, target Target, actor Actor) Decision
}

type rule struct {
	action   Action
	resource Resource
	// только свои ресурсы
	ownOnly bool
}

// Права по ролям. Гость не может ничего
var abilityTable = map[model.Role][]rule{
	model.RoleGuest: nil,
	model.RoleMember: {
		{action: ActionRead, resource: ResourceAll},
	},
	model.RoleArtist: {
		{action: ActionRead, resource: ResourceAll},
		{action: ActionManage, resource: ResourceArtwork, ownOnly: true},
	},
	model.RoleAdmin: {
		{action: ActionManage, resource: ResourceAll},
	},
}

type ability struct{}

func NewAbility() Ability {
	return ability{}
}

func (ability) CanPerform(action Action, target Target, actor Actor) Decision {
	for _, rule := range abilityTable[actor.Role] {
		if rule.action != ActionManage && rule.action != action {
			continue
		}
		if rule.resource != ResourceAll && rule.resource != target.Resource {
			continue
		}
		if rule.ownOnly && (actor.Code == "" || target.Owner != actor.Code) {
			continue
		}
		return Decision{Allowed: true}
	}
	return Decision{Reason: fmt.Sprintf("%s is not allowed to %s %s", actor.Role, action, target.Resource)}
}
