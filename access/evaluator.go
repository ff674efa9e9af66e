//go:generate go run go.uber.org/mock/mockgen -source=evaluator.go -destination=../mocks/mock_evaluator.go -package=mocks
package access

import (
	stderrors "errors"
	"fmt"
	"log/slog"

	"lanshare/domain"
	"lanshare/errors"
	"lanshare/repositories"
)

type IEvaluator interface {
	CanPost(sender string, dest domain.Destination) error
	RequireAdmin(groupID, identity string) error
	RequireMember(groupID, identity string) error
}

// Evaluator answers posting and administration questions against the
// group directory. Every send passes through CanPost before anything
// is persisted or delivered.
type Evaluator struct {
	groups repositories.IGroupRepository
	log    *slog.Logger
}

func NewEvaluator(groups repositories.IGroupRepository, log *slog.Logger) *Evaluator {
	return &Evaluator{groups: groups, log: log}
}

// CanPost reports whether sender may post to dest. Public and direct
// destinations are always writable. A group destination only has to
// exist; membership is checked solely when the group is admin only,
// where anyone without admin rights is refused.
func (e *Evaluator) CanPost(sender string, dest domain.Destination) error {
	if dest.Kind != domain.DestinationGroup {
		return nil
	}
	group, err := e.groups.Get(dest.GroupID)
	if err != nil {
		return err
	}
	if !group.AdminOnly {
		return nil
	}
	member, err := e.groups.Member(dest.GroupID, sender)
	if stderrors.Is(err, errors.ErrNotAMember) || (err == nil && !member.IsAdmin) {
		return fmt.Errorf("%w: %s", errors.ErrAdminOnlyGroup, group.Name)
	}
	return err
}

func (e *Evaluator) RequireAdmin(groupID, identity string) error {
	member, err := e.groups.Member(groupID, identity)
	if err != nil {
		return err
	}
	if !member.IsAdmin {
		return errors.ErrNotAdmin
	}
	return nil
}

func (e *Evaluator) RequireMember(groupID, identity string) error {
	_, err := e.groups.Member(groupID, identity)
	return err
}
