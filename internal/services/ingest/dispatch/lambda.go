package dispatch

import (
	"context"

	perr "rangeload/internal/platform/errors"
	"rangeload/internal/platform/logger"
	"rangeload/internal/services/ingest/domain"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// Invoker is the slice of the lambda client the dispatcher needs
type Invoker interface {
	Invoke(ctx context.Context, in *lambda.InvokeInput, opts ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Lambda re-invokes a function asynchronously with the continuation event
type Lambda struct {
	Client Invoker
	// Function is a name or ARN; empty means the function this code runs in
	Function string
}

// NewLambda builds a lambda dispatcher over an aws config
func NewLambda(cfg aws.Config, function string) *Lambda {
	return &Lambda{Client: lambda.NewFromConfig(cfg), Function: function}
}

func (l *Lambda) target(ctx context.Context) string {
	if l.Function != "" {
		return l.Function
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.InvokedFunctionArn != "" {
		return lc.InvokedFunctionArn
	}
	return lambdacontext.FunctionName
}

// Dispatch implements domain.Dispatcher. It returns once the invocation is
// accepted; it never waits for the continuation to run
func (l *Lambda) Dispatch(ctx context.Context, c domain.Continuation) error {
	fn := l.target(ctx)
	if fn == "" {
		return perr.New(perr.ErrorCodeDispatch, "no function to invoke: set CORE_DISPATCH_FUNCTION")
	}
	b, err := payload(c)
	if err != nil {
		return err
	}
	out, err := l.Client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(fn),
		InvocationType: types.InvocationTypeEvent,
		Payload:        b,
	})
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDispatch, "invoke %s", fn)
	}
	if out.StatusCode != 202 {
		return perr.Newf(perr.ErrorCodeDispatch, "invoke %s: status %d", fn, out.StatusCode)
	}
	logger.C(ctx).Debug().Str("function", fn).Int64("offset", c.Event.Offset).Msg("dispatch: invoked")
	return nil
}
