package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"checkin/internal/attendee"
	"checkin/internal/config"
	"checkin/internal/importer"
	"checkin/internal/logger"
	"checkin/internal/store"
)

// Import loads a roster spreadsheet into the record store.
//
//	import --kind students --file alunos.csv --clear
func main() {
	var (
		kindName  = flag.String("kind", "", "attendee kind: students or staff")
		file      = flag.String("file", "", "semicolon-delimited .csv or .xlsx roster")
		clearRows = flag.Bool("clear", false, "delete existing rows before inserting")
		batch     = flag.Int("batch", 0, "insert batch size (default 100 students, 50 staff)")
		dryRun    = flag.Bool("dry-run", false, "parse and validate only")
	)
	flag.Parse()

	if *kindName == "" || *file == "" {
		flag.Usage()
		os.Exit(2)
	}
	kind, err := attendee.ParseKind(*kindName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	log, lerr := logger.New(cfg.LogLevel, "console", "checkin-import")
	if lerr != nil {
		panic(lerr)
	}
	defer func() { _ = log.Sync() }()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	parsed, err := importer.ReadFile(*file, kind)
	if err != nil {
		log.Fatal("read roster failed", zap.String("file", *file), zap.Error(err))
	}
	log.Info("parsed roster",
		zap.String("kind", string(kind)),
		zap.Int("people", len(parsed.People)),
		zap.Int("skipped", parsed.Skipped),
	)
	if *dryRun {
		invalid := 0
		for _, p := range parsed.People {
			if err := attendee.ValidatePerson(p); err != nil {
				invalid++
				log.Warn("invalid row", zap.String("name", p.Name), zap.Error(err))
			}
		}
		log.Info("dry run done", zap.Int("invalid", invalid))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.StoreOptions(), log)
	if err != nil {
		log.Fatal("store open failed", zap.Error(err))
	}
	defer st.Close()

	res, err := importer.New(st, log).Run(ctx, kind, parsed.People, importer.Options{Clear: *clearRows, BatchSize: *batch})
	if err != nil {
		log.Fatal("import failed", zap.Int("inserted", res.Inserted), zap.Error(err))
	}
	log.Info("import complete",
		zap.Int64("deleted", res.Deleted),
		zap.Int("inserted", res.Inserted),
		zap.Int("invalid", res.Invalid),
		zap.Int("batches", res.Batches),
		zap.Int("total", res.Total),
	)
	if res.Total < res.Inserted {
		log.Warn("row count below inserted count", zap.Int("total", res.Total), zap.Int("inserted", res.Inserted))
	}
}
