package database

import (
	"context"
	"errors"
	"testing"

	"anoa.com/gamiledger/internal/entity"
	"anoa.com/gamiledger/internal/testutil"
	"anoa.com/gamiledger/pkg/dbctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSavepointUndoesOnlyItsOwnWrites(t *testing.T) {
	db := testutil.DB(t)
	runner := NewTxRunner(db)
	errInner := errors.New("inner failed")

	err := runner.InTx(context.Background(), func(dbc dbctx.Context) error {
		if err := dbc.DB(db).Create(&entity.User{Username: "kept"}).Error; err != nil {
			return err
		}
		inner := Savepoint(dbc, func(sp dbctx.Context) error {
			if err := sp.DB(db).Create(&entity.User{Username: "undone"}).Error; err != nil {
				return err
			}
			return errInner
		})
		assert.ErrorIs(t, inner, errInner)
		return nil
	})
	require.NoError(t, err)

	var names []string
	require.NoError(t, db.Model(&entity.User{}).Order("username").Pluck("username", &names).Error)
	assert.Equal(t, []string{"kept"}, names)
}

func TestSavepointWithoutTransaction(t *testing.T) {
	db := testutil.DB(t)
	err := Savepoint(dbctx.Context{Ctx: context.Background()}, func(dbc dbctx.Context) error {
		return dbc.DB(db).Create(&entity.User{Username: "direct"}).Error
	})
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&entity.User{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
