package repositories

import (
	"crypto/rand"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"lanshare/domain"
	"lanshare/errors"
	"lanshare/security"
)

func setupGroupRepository(t *testing.T) (*GroupRepository, *MessageRepository) {
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

	messages, err := NewMessageRepository(db, cipher, slog.Default(), nil)
	req.NoError(err)
	t.Cleanup(func() { _ = messages.Close() })

	return NewGroupRepository(db, messages, slog.Default()), messages
}

func TestGroupRepository_CreateForcesCreatorAsAdmin(t *testing.T) {
	req := require.New(t)
	repo, _ := setupGroupRepository(t)

	// When alice creates a group without listing herself
	group, err := repo.Create("war-room", "planning", "🗡️", "alice", []string{"bob", "clara"}, nil)
	req.NoError(err)
	req.NotEmpty(group.ID)

	members, err := repo.Members(group.ID)
	req.NoError(err)
	req.Len(members, 3)

	// Then she is a member and the only admin
	self, err := repo.Member(group.ID, "alice")
	req.NoError(err)
	req.True(self.IsAdmin)

	bob, err := repo.Member(group.ID, "bob")
	req.NoError(err)
	req.False(bob.IsAdmin)
}

func TestGroupRepository_CreateRequiresNameAndMembers(t *testing.T) {
	req := require.New(t)
	repo, _ := setupGroupRepository(t)

	_, err := repo.Create("", "", "", "alice", []string{"bob"}, nil)
	req.ErrorIs(err, errors.ErrInvalidInput)

	_, err = repo.Create("no-members", "", "", "alice", nil, nil)
	req.ErrorIs(err, errors.ErrInvalidInput)
}

func TestGroupRepository_Membership(t *testing.T) {
	req := require.New(t)
	repo, _ := setupGroupRepository(t)
	group, err := repo.Create("g", "", "", "alice", []string{"alice"}, nil)
	req.NoError(err)

	req.NoError(repo.AddMember(group.ID, "bob"))
	req.ErrorIs(repo.AddMember(group.ID, "bob"), errors.ErrAlreadyMember)

	req.NoError(repo.RemoveMember(group.ID, "bob"))
	req.ErrorIs(repo.RemoveMember(group.ID, "bob"), errors.ErrNotAMember)

	req.ErrorIs(repo.AddMember("nope", "bob"), errors.ErrGroupNotFound)
}

func TestGroupRepository_ListForIdentity(t *testing.T) {
	req := require.New(t)
	repo, _ := setupGroupRepository(t)

	g1, err := repo.Create("g1", "", "", "alice", []string{"bob"}, nil)
	req.NoError(err)
	_, err = repo.Create("g2", "", "", "clara", []string{"clara"}, nil)
	req.NoError(err)

	groups, err := repo.ListForIdentity("bob")
	req.NoError(err)
	req.Len(groups, 1)
	req.Equal(g1.ID, groups[0].ID)

	groups, err = repo.ListForIdentity("nobody")
	req.NoError(err)
	req.Empty(groups)
}

func TestGroupRepository_LastAdminCannotLeave(t *testing.T) {
	req := require.New(t)
	repo, _ := setupGroupRepository(t)
	group, err := repo.Create("g", "", "", "alice", []string{"bob"}, nil)
	req.NoError(err)

	// Given alice is the sole admin
	req.ErrorIs(repo.Leave(group.ID, "alice"), errors.ErrLastAdmin)

	// When bob is promoted
	req.NoError(repo.SetAdmin(group.ID, "bob", true))

	// Then alice may leave
	req.NoError(repo.Leave(group.ID, "alice"))
	_, err = repo.Member(group.ID, "alice")
	req.ErrorIs(err, errors.ErrNotAMember)
}

func TestGroupRepository_NonAdminMayAlwaysLeave(t *testing.T) {
	req := require.New(t)
	repo, _ := setupGroupRepository(t)
	group, err := repo.Create("g", "", "", "alice", []string{"bob"}, nil)
	req.NoError(err)

	req.NoError(repo.Leave(group.ID, "bob"))
	req.ErrorIs(repo.Leave(group.ID, "bob"), errors.ErrNotAMember)
}

func TestGroupRepository_UpdateInfoAndAdminOnly(t *testing.T) {
	req := require.New(t)
	repo, _ := setupGroupRepository(t)
	group, err := repo.Create("old-name", "old", "x", "alice", []string{"alice"}, nil)
	req.NoError(err)

	req.NoError(repo.UpdateInfo(group.ID, lo.ToPtr("new-name"), lo.ToPtr("new desc"), nil))
	req.NoError(repo.SetAdminOnly(group.ID, true))

	fetched, err := repo.Get(group.ID)
	req.NoError(err)
	req.Equal("new-name", fetched.Name)
	req.Equal("new desc", fetched.Description)
	req.Equal("x", fetched.Icon)
	req.True(fetched.AdminOnly)
}

func TestGroupRepository_SetMembersAndAdminsReplacesAll(t *testing.T) {
	req := require.New(t)
	repo, _ := setupGroupRepository(t)
	group, err := repo.Create("g", "", "", "alice", []string{"bob", "clara"}, nil)
	req.NoError(err)

	// When the whole membership is replaced
	req.NoError(repo.SetMembersAndAdmins(group.ID, []string{"dave", "erin"}, []string{"dave"}))

	members, err := repo.Members(group.ID)
	req.NoError(err)
	req.Len(members, 2)

	dave, err := repo.Member(group.ID, "dave")
	req.NoError(err)
	req.True(dave.IsAdmin)

	_, err = repo.Member(group.ID, "alice")
	req.ErrorIs(err, errors.ErrNotAMember)
}

func TestGroupRepository_DeleteCascadesMessagesAndMutes(t *testing.T) {
	req := require.New(t)
	repo, messages := setupGroupRepository(t)
	group, err := repo.Create("doomed", "", "", "alice", []string{"bob"}, nil)
	req.NoError(err)

	// Given messages in the group room and elsewhere
	inGroup, err := messages.Append("alice", domain.GroupDestination(group.ID), "going away", nil, nil, time.Now().UTC())
	req.NoError(err)
	elsewhere, err := messages.Append("alice", domain.Public(), "staying", nil, nil, time.Now().UTC())
	req.NoError(err)
	req.NoError(repo.Mute(group.ID, "bob"))

	// When the group is deleted
	req.NoError(repo.Delete(group.ID))

	// Then everything group-scoped is gone, the rest untouched
	_, err = repo.Get(group.ID)
	req.ErrorIs(err, errors.ErrGroupNotFound)
	_, err = messages.Get(inGroup.ID)
	req.ErrorIs(err, errors.ErrMessageNotFound)
	_, err = messages.Get(elsewhere.ID)
	req.NoError(err)

	muted, err := repo.IsMuted(group.ID, "bob")
	req.NoError(err)
	req.False(muted)
}

func TestGroupRepository_MuteIsIdempotent(t *testing.T) {
	req := require.New(t)
	repo, _ := setupGroupRepository(t)
	group, err := repo.Create("g", "", "", "alice", []string{"bob"}, nil)
	req.NoError(err)

	req.NoError(repo.Mute(group.ID, "bob"))
	req.NoError(repo.Mute(group.ID, "bob"))

	muted, err := repo.IsMuted(group.ID, "bob")
	req.NoError(err)
	req.True(muted)

	req.NoError(repo.Unmute(group.ID, "bob"))
	req.NoError(repo.Unmute(group.ID, "bob"))

	muted, err = repo.IsMuted(group.ID, "bob")
	req.NoError(err)
	req.False(muted)

	info, err := repo.Info(group.ID, "bob")
	req.NoError(err)
	req.False(info.Muted)
	req.Len(info.Members, 2)
}
