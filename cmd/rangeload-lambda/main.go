package main

import (
	"context"

	"rangeload/internal/platform/config"
	"rangeload/internal/platform/logger"
	"rangeload/internal/services/ingest/domain"
	ingestmod "rangeload/internal/services/ingest/module"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
)

// result is what the invocation reports back to the platform
type result struct {
	JobID    string       `json:"job_id"`
	State    domain.State `json:"state"`
	Offset   int64        `json:"offset"`
	RowCount int64        `json:"row_count"`
	Rows     int64        `json:"rows_this_run"`
	Skipped  int64        `json:"skipped_rows,omitempty"`
}

func main() {
	root := config.New()
	l := logger.Get()

	// sessions are opened once per container and reused across invocations
	rt, err := ingestmod.Boot(context.Background(), root, "rangeload-lambda")
	if err != nil {
		l.Panic().Err(err).Msg("ingest boot failed")
	}
	runner := rt.Module.Ports().Runner

	lambda.Start(func(ctx context.Context, ev domain.Event) (result, error) {
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			ctx = logger.WithRequest(ctx, lc.AwsRequestID)
		}
		out, err := runner.Handle(ctx, ev)
		return result{
			JobID:    out.JobID,
			State:    out.State,
			Offset:   out.Resume.Offset,
			RowCount: out.Resume.RowCount,
			Rows:     out.RowsThisRun,
			Skipped:  out.SkippedRows,
		}, err
	})
}
