package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackzampolin/fitbind/internal/corpus"
	"github.com/jackzampolin/fitbind/internal/fidelity"
	"github.com/jackzampolin/fitbind/internal/render"
)

// TaskCompress is the task name of the per-document compression handler.
const TaskCompress = "compress"

// FailureKind classifies why a document did not compress.
type FailureKind string

const (
	FailureRender   FailureKind = "render"
	FailureEncode   FailureKind = "encode"
	FailureCanceled FailureKind = "canceled"
)

// CompressRequest is the input of a TaskCompress unit.
type CompressRequest struct {
	Document corpus.Document
	Config   fidelity.Configuration
	OutDir   string
}

// CompressionResult is the outcome of compressing one document at one
// configuration. Err is nil on success.
type CompressionResult struct {
	Document corpus.Document
	Config   fidelity.Configuration
	Path     string
	Size     int64
	Pages    int
	Err      error
	Kind     FailureKind
}

// OK reports whether the document compressed.
func (r CompressionResult) OK() bool {
	return r.Err == nil
}

// CompressHandler returns the TaskCompress handler backed by c.
func CompressHandler(c render.Compressor) CPUTaskHandler {
	return func(ctx context.Context, req *CPUWorkRequest) (*CPUWorkResult, error) {
		creq, ok := req.Data.(CompressRequest)
		if !ok {
			return nil, fmt.Errorf("invalid data type for %s task: %T", TaskCompress, req.Data)
		}

		if err := os.MkdirAll(creq.OutDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}

		out, err := c.Compress(ctx, creq.Document.Path, creq.Config, creq.OutDir)
		if err != nil {
			return nil, err
		}
		return &CPUWorkResult{Data: out}, nil
	}
}

// classify maps a compression error to its failure kind.
func classify(err error) FailureKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCanceled
	case errors.Is(err, render.ErrEncode):
		return FailureEncode
	default:
		return FailureRender
	}
}
