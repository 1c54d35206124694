package records

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

// SQLStore 使用 MySQL 存储转账记录。
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore 创建连接池并初始化数据表。
func NewSQLStore(dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &SQLStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS transfers (
        id VARCHAR(64) PRIMARY KEY,
        session_id VARCHAR(64) NOT NULL,
        chain_key VARCHAR(64) NOT NULL,
        from_address VARCHAR(128) NOT NULL,
        to_address VARCHAR(128) NOT NULL,
        amount VARCHAR(80) NOT NULL,
        symbol VARCHAR(32) DEFAULT '',
        tx_hash VARCHAR(128) NOT NULL,
        created_at BIGINT NOT NULL,
        INDEX idx_session (session_id),
        INDEX idx_created_at (created_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 transfers 表失败")
	}
	return nil
}

// Save 将转账记录写入 MySQL。
func (s *SQLStore) Save(ctx context.Context, record Record) error {
	const stmt = `INSERT INTO transfers
        (id, session_id, chain_key, from_address, to_address, amount, symbol, tx_hash, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.SessionID,
		record.ChainKey,
		record.FromAddress,
		record.ToAddress,
		record.Amount,
		record.Symbol,
		record.TxHash,
		record.CreatedAt,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 MySQL 失败")
	}
	return nil
}

// ListLatest 查询最近的若干条转账记录。
func (s *SQLStore) ListLatest(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, chain_key, from_address, to_address, amount, symbol, tx_hash, created_at
        FROM transfers ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询转账记录失败")
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.ID, &record.SessionID, &record.ChainKey, &record.FromAddress, &record.ToAddress, &record.Amount, &record.Symbol, &record.TxHash, &record.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析转账记录失败")
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历转账记录失败")
	}
	return results, nil
}

// Close 关闭底层数据库连接。
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
