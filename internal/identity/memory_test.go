package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDirectoryLookupMany(t *testing.T) {
	ada := models.User{ID: uuid.New(), Nickname: "ada", Level: 3}
	d := NewMemoryDirectory(ada)

	got, err := d.LookupMany(context.Background(), []uuid.UUID{ada.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "ada", got[ada.ID].Nickname)

	_, err = d.Lookup(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestMemoryPresenceReleaseOnlyCurrent(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresence()
	user := uuid.New()

	require.NoError(t, p.Register(ctx, user, "old"))
	require.NoError(t, p.Register(ctx, user, "new"))

	ok, err := p.Release(ctx, user, "old")
	require.NoError(t, err)
	assert.False(t, ok, "superseded connection must not clear presence")

	conn, online, _ := p.Current(ctx, user)
	assert.True(t, online)
	assert.Equal(t, "new", conn)

	ok, err = p.Release(ctx, user, "new")
	require.NoError(t, err)
	assert.True(t, ok)
	_, online, _ = p.Current(ctx, user)
	assert.False(t, online)
}
