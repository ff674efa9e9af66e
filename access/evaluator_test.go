package access

import (
	"crypto/rand"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"lanshare/domain"
	"lanshare/errors"
	"lanshare/repositories"
	"lanshare/security"
)

func setupEvaluator(t *testing.T) (*Evaluator, *repositories.GroupRepository) {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	key := make([]byte, 32)
	_, err = rand.Read(key)
	req.NoError(err)
	cipher, err := security.NewCipher(key)
	req.NoError(err)

	messages, err := repositories.NewMessageRepository(db, cipher, slog.Default(), nil)
	req.NoError(err)
	t.Cleanup(func() { _ = messages.Close() })

	groups := repositories.NewGroupRepository(db, messages, slog.Default())
	return NewEvaluator(groups, slog.Default()), groups
}

func TestEvaluator_PublicAndDirectAlwaysWritable(t *testing.T) {
	req := require.New(t)
	evaluator, _ := setupEvaluator(t)

	req.NoError(evaluator.CanPost("alice", domain.Public()))
	req.NoError(evaluator.CanPost("alice", domain.Direct("bob")))
	// Even an identity the directory has never seen may post outside groups
	req.NoError(evaluator.CanPost("stranger", domain.Direct("alice")))
}

func TestEvaluator_OpenGroupIsWritableByAnyone(t *testing.T) {
	req := require.New(t)
	evaluator, groups := setupEvaluator(t)

	group, err := groups.Create("devs", "", "", "alice", []string{"bob"}, nil)
	req.NoError(err)

	// Members post freely while the group is open
	req.NoError(evaluator.CanPost("alice", domain.GroupDestination(group.ID)))
	req.NoError(evaluator.CanPost("bob", domain.GroupDestination(group.ID)))

	// So does a non-member: an open group only has to exist
	req.NoError(evaluator.CanPost("eve", domain.GroupDestination(group.ID)))
}

func TestEvaluator_AdminOnlyGroupRefusesNonAdmins(t *testing.T) {
	req := require.New(t)
	evaluator, groups := setupEvaluator(t)

	group, err := groups.Create("announcements", "", "", "alice", []string{"bob"}, nil)
	req.NoError(err)
	req.NoError(groups.SetAdminOnly(group.ID, true))

	// The creator is an admin and keeps posting rights
	req.NoError(evaluator.CanPost("alice", domain.GroupDestination(group.ID)))

	// A plain member is refused without side effects
	err = evaluator.CanPost("bob", domain.GroupDestination(group.ID))
	req.ErrorIs(err, errors.ErrAdminOnlyGroup)

	// A non-member gets the same refusal, not a membership error
	err = evaluator.CanPost("eve", domain.GroupDestination(group.ID))
	req.ErrorIs(err, errors.ErrAdminOnlyGroup)

	// Promoting bob restores his posting rights
	req.NoError(groups.SetAdmin(group.ID, "bob", true))
	req.NoError(evaluator.CanPost("bob", domain.GroupDestination(group.ID)))
}

func TestEvaluator_UnknownGroup(t *testing.T) {
	req := require.New(t)
	evaluator, _ := setupEvaluator(t)

	err := evaluator.CanPost("alice", domain.GroupDestination("nope"))
	req.ErrorIs(err, errors.ErrGroupNotFound)
}

func TestEvaluator_RequireAdmin(t *testing.T) {
	req := require.New(t)
	evaluator, groups := setupEvaluator(t)

	group, err := groups.Create("ops", "", "", "alice", []string{"bob"}, nil)
	req.NoError(err)

	req.NoError(evaluator.RequireAdmin(group.ID, "alice"))
	req.ErrorIs(evaluator.RequireAdmin(group.ID, "bob"), errors.ErrNotAdmin)
	req.ErrorIs(evaluator.RequireAdmin(group.ID, "eve"), errors.ErrNotAMember)
}

func TestEvaluator_RequireMember(t *testing.T) {
	req := require.New(t)
	evaluator, groups := setupEvaluator(t)

	group, err := groups.Create("ops", "", "", "alice", []string{"bob"}, nil)
	req.NoError(err)

	req.NoError(evaluator.RequireMember(group.ID, "bob"))
	req.ErrorIs(evaluator.RequireMember(group.ID, "eve"), errors.ErrNotAMember)
	req.ErrorIs(evaluator.RequireMember("nope", "bob"), errors.ErrGroupNotFound)
}
