//go:generate go run go.uber.org/mock/mockgen -source=group_service.go -destination=../mocks/mock_group_service.go -package=mocks
package services

import (
	"log/slog"

	"github.com/samber/lo"

	"lanshare/access"
	"lanshare/domain"
	"lanshare/domain/event"
	"lanshare/repositories"
	"lanshare/runtime"
)

type IGroupService interface {
	Create(creator, name, description, icon string, members, admins []string) (domain.Group, error)
	Info(id, caller string) (domain.GroupInfo, error)
	List(identity string) ([]domain.Group, error)
	AddMember(id, caller, identity string) error
	RemoveMember(id, caller, identity string) error
	SetAdmin(id, caller, identity string, isAdmin bool) error
	Leave(id, identity string) error
	SetAdminOnly(id, caller string, adminOnly bool) error
	UpdateInfo(id, caller string, name, description, icon *string) error
	SetMembersAndAdmins(id, caller string, members, admins []string) error
	Delete(id, caller string) error
	Mute(id, identity string) error
	Unmute(id, identity string) error
}

// GroupService owns the group lifecycle. Mutating operations are
// admin-gated through the access evaluator; every change that affects
// routing or client state is published as an event.
type GroupService struct {
	groups    repositories.IGroupRepository
	evaluator access.IEvaluator
	engine    *runtime.Engine
	log       *slog.Logger
}

func NewGroupService(groups repositories.IGroupRepository, evaluator access.IEvaluator,
	engine *runtime.Engine, log *slog.Logger) *GroupService {
	return &GroupService{groups: groups, evaluator: evaluator, engine: engine, log: log}
}

func (s *GroupService) Create(creator, name, description, icon string, members, admins []string) (domain.Group, error) {
	group, err := s.groups.Create(name, description, icon, creator, members, admins)
	if err != nil {
		return domain.Group{}, err
	}
	allMembers, err := s.groups.Members(group.ID)
	if err != nil {
		return domain.Group{}, err
	}
	s.engine.Publish(event.GroupCreated{
		GroupID: group.ID,
		Name:    group.Name,
		Members: lo.Map(allMembers, func(m domain.GroupMember, _ int) string { return m.Identity }),
	})
	s.log.Info("Group created", "group", group.ID, "name", group.Name, "creator", creator)
	return group, nil
}

func (s *GroupService) Info(id, caller string) (domain.GroupInfo, error) {
	if err := s.evaluator.RequireMember(id, caller); err != nil {
		return domain.GroupInfo{}, err
	}
	return s.groups.Info(id, caller)
}

func (s *GroupService) List(identity string) ([]domain.Group, error) {
	return s.groups.ListForIdentity(identity)
}

func (s *GroupService) AddMember(id, caller, identity string) error {
	if err := s.evaluator.RequireAdmin(id, caller); err != nil {
		return err
	}
	if err := s.groups.AddMember(id, identity); err != nil {
		return err
	}
	s.engine.Publish(event.GroupMembershipChanged{GroupID: id, Identity: identity, Added: true})
	return nil
}

func (s *GroupService) RemoveMember(id, caller, identity string) error {
	if err := s.evaluator.RequireAdmin(id, caller); err != nil {
		return err
	}
	if err := s.groups.RemoveMember(id, identity); err != nil {
		return err
	}
	s.engine.Publish(event.GroupMembershipChanged{GroupID: id, Identity: identity, Added: false})
	return nil
}

func (s *GroupService) SetAdmin(id, caller, identity string, isAdmin bool) error {
	if err := s.evaluator.RequireAdmin(id, caller); err != nil {
		return err
	}
	return s.groups.SetAdmin(id, identity, isAdmin)
}

// Leave needs no admin gate: anyone may leave, except the last admin.
func (s *GroupService) Leave(id, identity string) error {
	if err := s.groups.Leave(id, identity); err != nil {
		return err
	}
	s.engine.Publish(event.GroupMembershipChanged{GroupID: id, Identity: identity, Added: false})
	return nil
}

func (s *GroupService) SetAdminOnly(id, caller string, adminOnly bool) error {
	if err := s.evaluator.RequireAdmin(id, caller); err != nil {
		return err
	}
	return s.groups.SetAdminOnly(id, adminOnly)
}

func (s *GroupService) UpdateInfo(id, caller string, name, description, icon *string) error {
	if err := s.evaluator.RequireAdmin(id, caller); err != nil {
		return err
	}
	return s.groups.UpdateInfo(id, name, description, icon)
}

func (s *GroupService) SetMembersAndAdmins(id, caller string, members, admins []string) error {
	if err := s.evaluator.RequireAdmin(id, caller); err != nil {
		return err
	}
	return s.groups.SetMembersAndAdmins(id, members, admins)
}

// Delete cascades the group, its memberships, mutes, and messages, then
// tells every session. The broadcast happens only after the cascade
// committed.
func (s *GroupService) Delete(id, caller string) error {
	if err := s.evaluator.RequireAdmin(id, caller); err != nil {
		return err
	}
	if err := s.groups.Delete(id); err != nil {
		return err
	}
	s.engine.Publish(event.GroupDeleted{GroupID: id})
	s.log.Info("Group deleted", "group", id, "by", caller)
	return nil
}

func (s *GroupService) Mute(id, identity string) error {
	if err := s.evaluator.RequireMember(id, identity); err != nil {
		return err
	}
	return s.groups.Mute(id, identity)
}

func (s *GroupService) Unmute(id, identity string) error {
	if err := s.evaluator.RequireMember(id, identity); err != nil {
		return err
	}
	return s.groups.Unmute(id, identity)
}
