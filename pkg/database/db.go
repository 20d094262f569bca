package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"anoa.com/gamiledger/pkg/dbctx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var (
	DB   *gorm.DB
	once sync.Once
	err  error
)

type Options struct {
	URL      string
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	Debug    bool
}

// DSN builds the postgres connection string. Sessions are pinned to UTC so
// calendar-day columns round-trip exactly.
func (o Options) DSN() string {
	if o.URL != "" {
		return o.URL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		valueOrDefault(o.Host, "localhost"),
		valueOrDefault(o.User, "postgres"),
		o.Password,
		valueOrDefault(o.Name, "gamiledger"),
		valueOrDefault(o.Port, "5432"),
	)
}

func Connect(opts Options) (*gorm.DB, error) {
	once.Do(func() {
		level := gormLogger.Warn
		if opts.Debug {
			level = gormLogger.Info
		}
		var db *gorm.DB
		db, err = gorm.Open(postgres.Open(opts.DSN()), &gorm.Config{
			Logger:         gormLogger.Default.LogMode(level),
			TranslateError: true,
			NowFunc:        func() time.Time { return time.Now().UTC() },
		})
		if err != nil {
			err = fmt.Errorf("failed to connect database: %w", err)
			return
		}
		DB = db
	})
	return DB, err
}

func valueOrDefault(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

// TxRunner runs fn inside one database transaction. A non-nil error from fn rolls it back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func NewTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

// Savepoint runs fn in a nested transaction of dbc's transaction, so a
// failure in fn undoes only fn's writes. Without a transaction fn runs as is.
func Savepoint(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error {
	if dbc.Tx == nil {
		return fn(dbc)
	}
	return dbc.DB(nil).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}
