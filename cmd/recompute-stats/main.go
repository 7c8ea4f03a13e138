// recompute-stats 从 files 表重建存储统计，用于修复 stale 状态或迁移后校验
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lk2023060901/filevault-backend/internal/conf"
	"github.com/lk2023060901/filevault-backend/internal/data"
	"github.com/lk2023060901/filevault-backend/internal/file/biz"
	filedata "github.com/lk2023060901/filevault-backend/internal/file/data"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
	timeout    = flag.Duration("timeout", time.Minute, "recompute timeout")
)

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(config.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	stats := biz.NewStatsUseCase(d.DB, filedata.NewStatsRepo(d.DB), d.StatsCache(config), nil, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	snap, err := stats.Rebuild(ctx)
	if err != nil {
		log.Error("failed to recompute stats", zap.Error(err))
		cancel()
		cleanup()
		log.Sync()
		os.Exit(1)
	}

	fmt.Printf("version:       %d\n", snap.Version)
	fmt.Printf("total files:   %d\n", snap.TotalFiles)
	fmt.Printf("unique files:  %d\n", snap.TotalUniqueFiles)
	fmt.Printf("storage used:  %d\n", snap.TotalStorageUsed)
	fmt.Printf("storage saved: %d (%.2f%%)\n", snap.TotalStorageSaved, snap.RoundedSavedPercentage())
}
