package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/logger"
)

var ErrEmptyURL = errors.New("database URL is empty")

// PoolOptions 연결 풀 설정. 문제 은행은 읽기 위주라 작게 잡는다
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// DefaultPoolOptions 서버/시드 CLI 공용 기본값
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// DB 문제 은행용 Postgres 핸들
type DB struct {
	*sql.DB
	pingTimeout time.Duration
}

// Connect 기본 풀 설정으로 연결
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	return ConnectWithOptions(ctx, databaseURL, DefaultPoolOptions())
}

// ConnectWithOptions 연결 후 ping 으로 도달 가능 여부 확인
func ConnectWithOptions(ctx context.Context, databaseURL string, opts PoolOptions) (*DB, error) {
	if databaseURL == "" {
		return nil, ErrEmptyURL
	}

	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	db := &DB{DB: sqlDB, pingTimeout: opts.PingTimeout}
	if err := db.Healthy(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info("Database connected", "maxOpenConns", opts.MaxOpenConns)
	return db, nil
}

// Healthy 헬스 체크용 ping (pingTimeout 으로 제한)
func (db *DB) Healthy(ctx context.Context) error {
	if db.pingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.pingTimeout)
		defer cancel()
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
