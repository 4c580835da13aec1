package main

import (
	"context"
	"flag"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/torsoroso16/api-project/internal/obs"
	"github.com/torsoroso16/api-project/migrations"
	"go.uber.org/zap"
)

func main() {
	down := flag.Bool("down", false, "roll back the latest migration instead")
	flag.Parse()

	l, err := obs.NewLogger(obs.LogConfig{Level: "info", Service: "storefront/migrator"})
	if err != nil {
		panic(err)
	}
	defer func() { _ = l.Sync() }()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		l.Fatal("DB_DSN is empty")
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		l.Fatal("set dialect", zap.Error(err))
	}
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		l.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *down {
		err = goose.DownContext(ctx, db, ".")
	} else {
		err = goose.UpContext(ctx, db, ".")
	}
	if err != nil {
		l.Fatal("migrate", zap.Bool("down", *down), zap.Error(err))
	}
	v, _ := goose.GetDBVersionContext(ctx, db)
	l.Info("migrations applied", zap.Int64("version", v))
}
