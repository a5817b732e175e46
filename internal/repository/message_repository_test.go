package repository

import (
	"context"
	"testing"

	"docweave-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// dryRunDB 只生成 SQL 不连接数据库，返回最近一次查询的语句。
func dryRunDB(t *testing.T) (*gorm.DB, *string) {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/docweave?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	var lastSQL string
	err = db.Callback().Query().After("gorm:query").Register("test:capture_sql", func(tx *gorm.DB) {
		lastSQL = tx.Statement.SQL.String()
	})
	require.NoError(t, err)
	return db, &lastSQL
}

func TestFindPageOrdersByCreatedAtThenID(t *testing.T) {
	db, lastSQL := dryRunDB(t)
	repo := NewMessageRepository(db, nil)

	_, err := repo.FindPage(context.Background(), 3, 0, 20)
	require.NoError(t, err)
	assert.Contains(t, *lastSQL, "room_id = ?")
	assert.Contains(t, *lastSQL, "ORDER BY created_at DESC,id DESC")
	assert.NotContains(t, *lastSQL, "(created_at, id) <")
}

func TestFindPageCursorUsesSortKey(t *testing.T) {
	db, lastSQL := dryRunDB(t)
	repo := NewMessageRepository(db, nil)

	_, err := repo.FindPage(context.Background(), 3, 41, 20)
	require.NoError(t, err)
	assert.Contains(t, *lastSQL, "(created_at, id) < (SELECT created_at, id FROM `chat_messages` WHERE id = ?)")
	assert.Contains(t, *lastSQL, "ORDER BY created_at DESC,id DESC")
}

func TestReverseRestoresChronologicalOrder(t *testing.T) {
	newestFirst := []model.ChatMessage{msg(1, 9), msg(1, 8), msg(1, 7)}
	reverse(newestFirst)

	var ids []uint
	for _, m := range newestFirst {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []uint{7, 8, 9}, ids)

	reverse(nil)
}
