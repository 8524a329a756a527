package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory() *StaticDirectory {
	return NewStaticDirectory(
		[]UserEntry{
			{Name: "Meir", Groups: []string{"finance", "admins"}},
			{Name: "Lena", Groups: []string{"finance"}},
		},
		[]WalletEntry{
			{Name: "Treasury", Address: "0x1111111111111111111111111111111111111111"},
		},
	)
}

func TestStaticDirectory_ResolveUser(t *testing.T) {
	d := newTestDirectory()
	ctx := context.Background()

	id, err := d.ResolveUser(ctx, " meir ")
	require.NoError(t, err)
	assert.Equal(t, "Meir", id.Name)
	assert.Equal(t, []string{"finance", "admins"}, id.Groups)

	// 返回副本
	id.Groups[0] = "changed"
	again, _ := d.ResolveUser(ctx, "Meir")
	assert.Equal(t, "finance", again.Groups[0])

	_, err = d.ResolveUser(ctx, "Mallory")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStaticDirectory_ResolveWallet(t *testing.T) {
	d := newTestDirectory()

	addr, err := d.ResolveWallet(context.Background(), "treasury")
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", addr)

	_, err = d.ResolveWallet(context.Background(), "Ops")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestStaticDirectory_HasGroup(t *testing.T) {
	d := newTestDirectory()
	assert.True(t, d.HasGroup("Finance"))
	assert.False(t, d.HasGroup("ops"))
}
