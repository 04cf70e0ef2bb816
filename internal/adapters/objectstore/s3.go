// Package objectstore opens byte ranges of source objects in S3 or on disk
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	perr "rangeload/internal/platform/errors"
	"rangeload/internal/platform/logger"
	"rangeload/internal/services/ingest/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the slice of the s3 client the source needs
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 implements domain.ObjectSource over ranged GETs
type S3 struct {
	Client S3API
}

// NewS3 builds an S3 source; pathStyle is for minio style endpoints
func NewS3(cfg aws.Config, pathStyle bool) *S3 {
	return &S3{Client: s3.NewFromConfig(cfg, func(o *s3.Options) { o.UsePathStyle = pathStyle })}
}

// OpenRange implements domain.ObjectSource
func (s *S3) OpenRange(ctx context.Context, ref domain.ObjectRef, offset int64) (domain.Object, error) {
	in := &s3.GetObjectInput{Bucket: aws.String(ref.Bucket), Key: aws.String(ref.Key)}
	if offset > 0 {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	out, err := s.Client.GetObject(ctx, in)
	if statusOf(err) == http.StatusRequestedRangeNotSatisfiable {
		// nothing left past offset
		size, herr := s.size(ctx, ref)
		if herr != nil {
			return domain.Object{}, herr
		}
		logger.C(ctx).Debug().Str("key", ref.Key).Int64("offset", offset).Int64("size", size).Msg("s3: range past end")
		return domain.Object{Body: io.NopCloser(strings.NewReader("")), Size: size}, nil
	}
	if err != nil {
		return domain.Object{}, classify(err, "get", ref)
	}

	size := totalFromContentRange(aws.ToString(out.ContentRange))
	if size < 0 {
		size = offset + aws.ToInt64(out.ContentLength)
	}
	return domain.Object{Body: out.Body, Size: size}, nil
}

func (s *S3) size(ctx context.Context, ref domain.ObjectRef) (int64, error) {
	out, err := s.Client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(ref.Bucket), Key: aws.String(ref.Key)})
	if err != nil {
		return 0, classify(err, "head", ref)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Delete implements domain.ObjectSource
func (s *S3) Delete(ctx context.Context, ref domain.ObjectRef) error {
	_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(ref.Bucket), Key: aws.String(ref.Key)})
	if err != nil {
		return classify(err, "delete", ref)
	}
	return nil
}

// totalFromContentRange parses "bytes 8-11/12"; -1 when absent or unknown
func totalFromContentRange(cr string) int64 {
	i := strings.LastIndexByte(cr, '/')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(cr[i+1:], 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func statusOf(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}

func classify(err error, op string, ref domain.ObjectRef) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) || statusOf(err) == http.StatusNotFound {
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeNotFound, "s3 object %s", ref), op)
	}
	return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeSource, "s3 %s %s", op, ref), op)
}
