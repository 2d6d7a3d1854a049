package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/i2y/protoswag/internal/usecase"

// InvokeMethodUseCase handles one HTTP call of a registered method: it
// assembles the request message and dispatches it.
type InvokeMethodUseCase struct {
	repository PlanRepository
	assembler  *RequestAssembler
	dispatcher Dispatcher
	logger     *slog.Logger

	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInvokeMethodUseCase creates a new InvokeMethodUseCase. Spans and metrics
// go to the global otel providers.
func NewInvokeMethodUseCase(repo PlanRepository, assembler *RequestAssembler, dispatcher Dispatcher, logger *slog.Logger) *InvokeMethodUseCase {
	meter := otel.Meter(instrumentationName)
	uc := &InvokeMethodUseCase{
		repository: repo,
		assembler:  assembler,
		dispatcher: dispatcher,
		logger:     logger.With("usecase", "InvokeMethod"),
		tracer:     otel.Tracer(instrumentationName),
	}
	var err error
	uc.requests, err = meter.Int64Counter("protoswag.requests",
		metric.WithDescription("Number of method invocations."))
	if err != nil {
		uc.logger.Warn("Failed to create request counter", slog.Any("error", err))
	}
	uc.duration, err = meter.Float64Histogram("protoswag.duration",
		metric.WithDescription("Duration of method invocations."), metric.WithUnit("s"))
	if err != nil {
		uc.logger.Warn("Failed to create duration histogram", slog.Any("error", err))
	}
	return uc
}

// Execute finds the plan of methodName, assembles the request from values and
// returns the serialized response.
func (uc *InvokeMethodUseCase) Execute(ctx context.Context, methodName string, values ParamSource) ([]byte, error) {
	log := uc.logger.With(slog.String("method", methodName))
	ctx, span := uc.tracer.Start(ctx, "protoswag.invoke", trace.WithAttributes(attribute.String("rpc.method", methodName)))
	defer span.End()

	start := time.Now()
	out, err := uc.execute(ctx, log, methodName, values)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(attribute.String("method", methodName), attribute.String("outcome", outcome))
	if uc.requests != nil {
		uc.requests.Add(ctx, 1, attrs)
	}
	if uc.duration != nil {
		uc.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	return out, err
}

func (uc *InvokeMethodUseCase) execute(ctx context.Context, log *slog.Logger, methodName string, values ParamSource) ([]byte, error) {
	log.Debug("Executing method invocation")

	plan, method, err := uc.repository.FindMethod(ctx, methodName)
	if err != nil {
		log.Warn("Method not found", slog.Any("error", err))
		return nil, err
	}

	request, err := uc.assembler.Assemble(method, plan, values)
	if err != nil {
		log.Info("Failed to assemble request", slog.Any("error", err))
		return nil, fmt.Errorf("failed to assemble request for %s: %w", methodName, err)
	}
	log.Debug("Assembled request", slog.Int("bytes", len(request)))

	response, err := uc.dispatcher.Dispatch(ctx, method, request)
	if err != nil {
		log.Error("Failed to dispatch request", slog.Any("error", err))
		return nil, fmt.Errorf("failed to invoke %s: %w", methodName, err)
	}
	log.Debug("Method invocation successful", slog.Int("response_bytes", len(response)))
	return response, nil
}
