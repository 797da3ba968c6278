// Package dispatch hands long-running jobs to a worker. In Lambda the API
// invokes the worker asynchronously (exports) or starts a Step Functions
// execution (staging); the local server runs jobs in a goroutine.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/rs/zerolog/log"
)

// Job types understood by the worker.
const (
	TypeExport = "export"
	TypeStage  = "stage"
)

// ErrNotConfigured is returned when no worker target is set.
var ErrNotConfigured = errors.New("job dispatch not configured")

// Job is the event payload sent to the worker.
type Job struct {
	Type         string `json:"type"`
	ProjectID    string `json:"projectId"`
	ExportID     string `json:"exportId,omitempty"`
	ImageID      string `json:"imageId,omitempty"`
	Style        string `json:"style,omitempty"`
	CustomPrompt string `json:"customPrompt,omitempty"`
}

// ID returns the identifier used for execution names and log fields.
func (j Job) ID() string {
	if j.ExportID != "" {
		return j.ExportID
	}
	return j.ImageID
}

// Validate checks the fields each job type needs.
func (j Job) Validate() error {
	if j.ProjectID == "" {
		return errors.New("projectId is required")
	}
	switch j.Type {
	case TypeExport:
		if j.ExportID == "" {
			return errors.New("exportId is required for export jobs")
		}
	case TypeStage:
		if j.ImageID == "" {
			return errors.New("imageId is required for stage jobs")
		}
	default:
		return fmt.Errorf("unknown job type %q", j.Type)
	}
	return nil
}

// Dispatcher starts a job without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// LambdaInvoker is the subset of the Lambda client used here.
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambdasvc.InvokeInput, optFns ...func(*lambdasvc.Options)) (*lambdasvc.InvokeOutput, error)
}

// LambdaDispatcher sends jobs to the worker Lambda with InvocationType=Event
// so the API returns immediately.
type LambdaDispatcher struct {
	client      LambdaInvoker
	functionARN string
}

// NewLambdaDispatcher creates a LambdaDispatcher.
func NewLambdaDispatcher(client LambdaInvoker, functionARN string) *LambdaDispatcher {
	return &LambdaDispatcher{client: client, functionARN: functionARN}
}

func (d *LambdaDispatcher) Dispatch(ctx context.Context, job Job) error {
	if d == nil || d.client == nil || d.functionARN == "" {
		return ErrNotConfigured
	}
	if err := job.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal worker event: %w", err)
	}

	log.Debug().Int("payloadSize", len(payload)).Msg("Invoking worker Lambda asynchronously")

	_, err = d.client.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName:   aws.String(d.functionARN),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("invoke worker lambda: %w", err)
	}

	log.Info().
		Str("type", job.Type).
		Str("jobId", job.ID()).
		Msg("Worker Lambda invoked asynchronously")
	return nil
}

// ExecutionStarter is the subset of the Step Functions client used here.
type ExecutionStarter interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

// StepFunctionsDispatcher starts one state machine execution per job.
// Execution names must be unique per state machine for 90 days, so callers
// pass a name generator.
type StepFunctionsDispatcher struct {
	client          ExecutionStarter
	stateMachineARN string
	name            func(Job) string
}

// NewStepFunctionsDispatcher creates a StepFunctionsDispatcher. A nil name
// func lets Step Functions pick execution names.
func NewStepFunctionsDispatcher(client ExecutionStarter, stateMachineARN string, name func(Job) string) *StepFunctionsDispatcher {
	return &StepFunctionsDispatcher{client: client, stateMachineARN: stateMachineARN, name: name}
}

func (d *StepFunctionsDispatcher) Dispatch(ctx context.Context, job Job) error {
	if d == nil || d.client == nil || d.stateMachineARN == "" {
		return ErrNotConfigured
	}
	if err := job.Validate(); err != nil {
		return err
	}
	input, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal execution input: %w", err)
	}

	in := &sfn.StartExecutionInput{
		StateMachineArn: aws.String(d.stateMachineARN),
		Input:           aws.String(string(input)),
	}
	if d.name != nil {
		in.Name = aws.String(d.name(job))
	}
	out, err := d.client.StartExecution(ctx, in)
	if err != nil {
		return fmt.Errorf("start execution: %w", err)
	}

	log.Info().
		Str("type", job.Type).
		Str("jobId", job.ID()).
		Str("executionArn", aws.ToString(out.ExecutionArn)).
		Msg("Pipeline started via Step Functions")
	return nil
}

// RunFunc executes a job in-process.
type RunFunc func(ctx context.Context, job Job) error

// InlineDispatcher runs jobs on a goroutine, detached from the request
// context. Used by the local server.
type InlineDispatcher struct {
	run  RunFunc
	done chan struct{}
}

// NewInlineDispatcher creates an InlineDispatcher.
func NewInlineDispatcher(run RunFunc) *InlineDispatcher {
	return &InlineDispatcher{run: run}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, job Job) error {
	if d == nil || d.run == nil {
		return ErrNotConfigured
	}
	if err := job.Validate(); err != nil {
		return err
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := d.run(bg, job); err != nil {
			log.Error().Err(err).Str("type", job.Type).Str("jobId", job.ID()).Msg("Background job failed")
		}
		if d.done != nil {
			d.done <- struct{}{}
		}
	}()
	return nil
}
