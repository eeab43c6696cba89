package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobsa/fuse"

	zfsclock "github.com/zlomekfs/zfsd/clock"
	"github.com/zlomekfs/zfsd/internal/config"
	"github.com/zlomekfs/zfsd/internal/core"
	"github.com/zlomekfs/zfsd/internal/fuseadapter"
	"github.com/zlomekfs/zfsd/internal/logger"
	"github.com/zlomekfs/zfsd/internal/metrics"
	"github.com/zlomekfs/zfsd/internal/scheduler"
)

var log = logger.For("zfsd")

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "zfsd:", err)
		os.Exit(1)
	}
}

// run brings up one mounted volume and blocks until it is unmounted or ctx
// is cancelled by a signal, mirroring gcsfuse/cmd/mount.go's mountWithArgs
// followed by legacy_main.go's mfs.Join(context.Background()). onMounted, if
// non-nil, is called exactly once with the mount's outcome as soon as it is
// known, before the long Join wait — the hook a background-mode parent
// process needs to learn the child succeeded.
func run(ctx context.Context, mountPoint string, cfg config.Config, onMounted func(error)) error {
	logger.SetLogFormat("text")
	log.Info("starting", "mount_point", mountPoint, "sid", cfg.Node.SID, "name", cfg.Node.Name)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricHandle := metrics.NewNoop()
	if cfg.Metrics.Enabled {
		promHandle := metrics.NewPrometheus()
		metricHandle = promHandle
		if servable, ok := promHandle.(interface{ Handler() http.Handler }); ok {
			srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: servable.Handler()}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server exited", "err", err)
				}
			}()
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()
		}
	}

	sched := scheduler.New(ctx, scheduler.Options{
		MinSpare:      cfg.Scheduler.MinSpare,
		MaxSpare:      cfg.Scheduler.MaxSpare,
		MaxTotal:      cfg.Scheduler.MaxTotal,
		SlowBusyDelay: cfg.Scheduler.SlowBusyDelay,
		Clock:         zfsclock.RealClock{},
	})
	defer sched.Stop()

	cacheDir := cfg.Metadata.CacheDir
	if cacheDir == "" {
		var err error
		cacheDir, err = os.MkdirTemp("", "zfsd-cache-")
		if err != nil {
			return fmt.Errorf("zfsd: create default cache dir: %w", err)
		}
	}

	vol, err := core.NewVolume(cfg.Node.SID, 1, 1, cacheDir, sched, metricHandle)
	if err != nil {
		return fmt.Errorf("zfsd: new volume: %w", err)
	}

	server := fuseadapter.New(vol)

	mountCfg := &fuse.MountConfig{
		FSName:     "zfsd",
		Subtype:    "zfsd",
		VolumeName: cfg.Node.Name,
	}
	if cfg.Logging.Severity == "TRACE" || cfg.Logging.Severity == "DEBUG" {
		mountCfg.ErrorLogger = stdlog.New(os.Stderr, "fuse: ", stdlog.LstdFlags)
	}

	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		err = fmt.Errorf("zfsd: mount: %w", err)
		if onMounted != nil {
			onMounted(err)
		}
		return err
	}
	log.Info("mounted", "mount_point", mountPoint)
	if onMounted != nil {
		onMounted(nil)
	}

	go func() {
		<-ctx.Done()
		if err := fuse.Unmount(mountPoint); err != nil {
			log.Error("unmount failed", "err", err, "mount_point", mountPoint)
		}
	}()

	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("zfsd: mfs.Join: %w", err)
	}

	log.Info("unmounted", "mount_point", mountPoint)
	return nil
}
