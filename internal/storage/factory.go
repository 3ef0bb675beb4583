package storage

import (
	"fmt"

	"github.com/LENAX/toolflow/pkg/storage"
	"github.com/LENAX/toolflow/pkg/storage/mysql"
	"github.com/LENAX/toolflow/pkg/storage/postgres"
	"github.com/LENAX/toolflow/pkg/storage/sqlite"
)

// NewRunRepository 按数据库类型创建执行历史Repository（内部方法）
// dbType: 数据库类型（sqlite/sqlite3/mysql/postgres/postgresql）
// dsn: 数据库连接字符串
func NewRunRepository(dbType, dsn string) (storage.RunRepository, error) {
	switch dbType {
	case "sqlite", "sqlite3":
		return sqlite.NewRunRepoFromDSN(dsn)
	case "mysql":
		return mysql.NewRunRepoFromDSN(dsn)
	case "postgres", "postgresql":
		return postgres.NewRunRepoFromDSN(dsn)
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", dbType)
	}
}
