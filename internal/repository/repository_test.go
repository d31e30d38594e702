package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/barotovamirbek/elowy-chat/internal/config"
	"github.com/barotovamirbek/elowy-chat/internal/logging"
	"github.com/barotovamirbek/elowy-chat/internal/models"
	"github.com/barotovamirbek/elowy-chat/internal/pkg/database"
)

// testDB connects to ELOWY_TEST_DATABASE_URL and applies migrations.
// Tests are skipped when it is unset.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("ELOWY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ELOWY_TEST_DATABASE_URL not set")
	}
	log := logging.Discard()
	db, err := database.Connect(config.DatabaseConfig{URL: url, MaxOpenConns: 2, MaxIdleConns: 1}, log)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, log))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createUser(t *testing.T, users *UserRepository, prefix string) *models.User {
	t.Helper()
	name := prefix + uuid.NewString()[:8]
	u, err := users.CreateUser(context.Background(), models.User{
		Name: name, Username: name, Email: name + "@example.com", PasswordHash: "x",
	})
	require.NoError(t, err)
	return u
}

func TestUserRepository(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	users := &UserRepository{DB: db}

	u := createUser(t, users, "alice")
	got, err := users.GetUserByUsername(ctx, u.Username)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = users.CreateUser(ctx, *u)
	require.ErrorIs(t, err, ErrDuplicate)

	_, err = users.GetUserByID(ctx, -1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDirectHistoryIncludesAIContext(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	users := &UserRepository{DB: db}
	messages := &MessageRepository{DB: db}

	a := createUser(t, users, "a")
	b := createUser(t, users, "b")
	ai := createUser(t, users, "ai")

	_, err := messages.SaveMessage(ctx, models.Message{SenderID: a.ID, ReceiverID: models.IntPtr(b.ID), Content: "hi"})
	require.NoError(t, err)
	_, err = messages.SaveMessage(ctx, models.Message{SenderID: b.ID, ReceiverID: models.IntPtr(a.ID), Content: "hey"})
	require.NoError(t, err)
	_, err = messages.SaveMessage(ctx, models.Message{
		SenderID: ai.ID, ReceiverID: models.IntPtr(a.ID), IsAIResponse: true,
		ContextChatID: models.IntPtr(b.ID), Content: "answer",
	})
	require.NoError(t, err)

	history, err := messages.GetDirectMessages(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "hi", history[0].Content)
	require.Equal(t, "answer", history[2].Content)

	// the AI reply was delivered to a only
	history, err = messages.GetDirectMessages(ctx, b.ID, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestGroupLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	users := &UserRepository{DB: db}
	groups := &GroupRepository{DB: db}
	messages := &MessageRepository{DB: db}

	owner := createUser(t, users, "owner")
	member := createUser(t, users, "member")

	g, err := groups.CreateGroup(ctx, models.Group{Name: "team", CreatedBy: owner.ID}, []int{member.ID, owner.ID})
	require.NoError(t, err)

	role, err := groups.MemberRole(ctx, g.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, role)
	ids, err := groups.MemberIDs(ctx, g.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{owner.ID, member.ID}, ids)

	_, err = messages.SaveMessage(ctx, models.Message{SenderID: member.ID, GroupID: models.IntPtr(g.ID), Content: "yo"})
	require.NoError(t, err)
	history, err := messages.GetGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	desc := "new description"
	updated, err := groups.UpdateGroup(ctx, models.GroupPatch{ID: g.ID, Description: &desc})
	require.NoError(t, err)
	require.Equal(t, "team", updated.Name)
	require.Equal(t, desc, updated.Description)

	require.NoError(t, groups.DeleteGroup(ctx, g.ID))
	_, err = groups.MemberRole(ctx, g.ID, owner.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, groups.DeleteGroup(ctx, g.ID), ErrNotFound)
}

func TestResponderIDNeverRegistered(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	users := &UserRepository{DB: db}

	// migrations reserve the default responder id
	require.NoError(t, users.EnsureSystemUser(ctx, models.DefaultAIResponderID, "AI Assistant"))
	ai, err := users.GetUserByID(ctx, models.DefaultAIResponderID)
	require.NoError(t, err)
	require.True(t, ai.IsSystem)

	var maxID int
	require.NoError(t, db.GetContext(ctx, &maxID, `SELECT MAX(id) FROM users`))
	custom := maxID + 5
	require.NoError(t, users.EnsureSystemUser(ctx, custom, "AI Assistant"))

	for i := 0; i < 10; i++ {
		u := createUser(t, users, "reg")
		require.NotEqual(t, models.DefaultAIResponderID, u.ID)
		require.NotEqual(t, custom, u.ID)
		require.False(t, u.IsSystem)
	}

	person := createUser(t, users, "person")
	require.ErrorIs(t, users.EnsureSystemUser(ctx, person.ID, "AI Assistant"), ErrReserved)
}
