package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"rangeload/internal/adapters/objectstore"
	"rangeload/internal/platform/config"
	"rangeload/internal/platform/logger"
	"rangeload/internal/services/ingest/dispatch"
	"rangeload/internal/services/ingest/domain"
	ingestmod "rangeload/internal/services/ingest/module"
	"rangeload/internal/services/ingest/repo"
	"rangeload/internal/services/ingest/service"
)

func main() {
	var (
		fMigrate = flag.Bool("migrate", false, "apply the ingest ledger schema and exit")
		fDrain   = flag.Bool("drain", false, "run queued continuations (CORE_DISPATCH_KIND=queue)")
		fFollow  = flag.Bool("follow", false, "with -drain, keep polling when the queue is empty")
		fWorkers = flag.Int("workers", 2, "with -drain, parallel invocations")
		fQuantum = flag.Duration("quantum", 15*time.Minute, "wall clock budget of one invocation; 0 = none")
		fReclaim = flag.Duration("reclaim", 0, "with -drain, take over continuations running longer than this; 0 = twice -quantum, <0 never")
		fDelete  = flag.Bool("delete", false, "with -file, remove the local file once it is fully ingested")
		fFile    = flag.String("file", "", "ingest one local file, chaining continuations in process")
		fBucket  = flag.String("bucket", "", "ingest one S3 object from this bucket in process")
		fKey     = flag.String("key", "", "key of the S3 object for -bucket")
	)
	flag.Parse()

	root := config.New()
	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []ingestmod.BootOption
	var inline *dispatch.Inline
	var ev domain.Event
	switch {
	case *fFile != "":
		abs, err := filepath.Abs(*fFile)
		if err != nil {
			l.Panic().Err(err).Msg("bad -file")
		}
		inline = dispatch.NewInline()
		opts = append(opts,
			ingestmod.WithSource(objectstore.NewLocalFS(filepath.Dir(abs))),
			ingestmod.WithDispatcher(inline),
			// local input is kept unless asked otherwise
			ingestmod.WithOptions(func(o *ingestmod.Options) { o.DeleteOnComplete = *fDelete }),
		)
		ev = domain.NewObjectEvent(domain.ObjectRef{Key: filepath.Base(abs)})
	case *fBucket != "":
		if *fKey == "" {
			l.Panic().Msg("-bucket needs -key")
		}
		inline = dispatch.NewInline()
		opts = append(opts, ingestmod.WithDispatcher(inline))
		ev = domain.NewObjectEvent(domain.ObjectRef{Bucket: *fBucket, Key: *fKey})
	case *fMigrate, *fDrain:
	default:
		l.Panic().Msg("one of -migrate, -drain, -file or -bucket is required")
	}

	rt, err := ingestmod.Boot(ctx, root, "rangeload-worker", opts...)
	if err != nil {
		l.Panic().Err(err).Msg("ingest boot failed")
	}
	defer rt.Close(context.Background())
	svc := rt.Module.Ports().Service

	switch {
	case *fMigrate:
		if rt.Deps.PG == nil {
			l.Panic().Msg("-migrate needs postgres: set CORE_INGEST_LEDGER=true or CORE_DISPATCH_KIND=queue")
		}
		if err := repo.Migrate(ctx, rt.Deps.PG); err != nil {
			l.Fatal().Err(err).Msg("migrate failed")
		}
		l.Info().Msg("ingest schema applied")

	case *fDrain:
		if k := rt.Module.Options().DispatchKind; k != dispatch.KindQueue {
			l.Warn().Str("dispatch", k).Msg("draining while continuations are not queued; only already queued work runs here")
		}
		n, err := svc.Drain(ctx, service.DrainOptions{
			Workers: *fWorkers, Quantum: *fQuantum, Follow: *fFollow, Reclaim: *fReclaim,
		})
		if err != nil && ctx.Err() == nil {
			l.Fatal().Err(err).Int64("handled", n).Msg("drain failed")
		}
		l.Info().Int64("handled", n).Msg("drain finished")

	default:
		outs, err := svc.Chain(ctx, ev, *fQuantum, inline.Next)
		if err != nil {
			l.Fatal().Err(err).Int("invocations", len(outs)).Msg("ingest failed")
		}
		last := outs[len(outs)-1]
		l.Info().Str("job_id", last.JobID).Str("state", string(last.State)).
			Int64("rows", last.Resume.RowCount).Int64("offset", last.Resume.Offset).
			Int("invocations", len(outs)).Msg("ingest finished")
	}
}
