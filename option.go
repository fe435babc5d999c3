package autarch

import (
	"github.com/viant/x"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/autarch-dev/autarch/model/types"
	"github.com/autarch-dev/autarch/model/workflow"
	"github.com/autarch-dev/autarch/service/dao"
	"github.com/autarch-dev/autarch/service/diff"
	"github.com/autarch-dev/autarch/service/event"
	"github.com/autarch-dev/autarch/service/messaging"
	"github.com/autarch-dev/autarch/service/registry"
	"github.com/autarch-dev/autarch/service/subtask"
	"github.com/autarch-dev/autarch/tracing"
)

// Option customises the engine service.
type Option func(s *Service)

// WithConfig replaces the default configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithAgent sets the agent runtime sessions are executed with.
func WithAgent(agent registry.Agent) Option {
	return func(s *Service) { s.agent = agent }
}

// WithDiffSource sets the branch diff provider consumed by the dispatcher.
func WithDiffSource(source diff.Source) Option {
	return func(s *Service) { s.diffSource = source }
}

// WithSubtaskStore sets the subtask store, overriding the configured vendor.
func WithSubtaskStore(store subtask.Store) Option {
	return func(s *Service) { s.subtaskStore = store }
}

// WithSessionDAO sets the session record store.
func WithSessionDAO(svc dao.Service[string, registry.Session]) Option {
	return func(s *Service) { s.sessionDao = svc }
}

// WithWorkflowDAO sets the workflow record store.
func WithWorkflowDAO(svc dao.Service[string, workflow.Workflow]) Option {
	return func(s *Service) { s.workflowDao = svc }
}

// WithArtifactDAO sets the artifact record store.
func WithArtifactDAO(svc dao.Service[string, workflow.Artifact]) Option {
	return func(s *Service) { s.artifactDao = svc }
}

// WithRunQueue sets the session run queue.
func WithRunQueue(queue messaging.Queue[registry.Run]) Option {
	return func(s *Service) { s.runQueue = queue }
}

// WithEventService sets the coordination event service.
func WithEventService(service *event.Service) Option {
	return func(s *Service) { s.events = service }
}

// WithExtensionTypes sets the extension types
func WithExtensionTypes(types ...*x.Type) Option {
	return func(s *Service) { s.extensionTypes = types }
}

// WithExtensionType registers a single extension type.
func WithExtensionType(aType *x.Type) Option {
	return func(s *Service) { s.extensionTypes = append(s.extensionTypes, aType) }
}

// WithExtensionServices sets additional action services registered alongside
// the built-in tools.
func WithExtensionServices(services ...types.Service) Option {
	return func(s *Service) { s.extensionServices = services }
}

// WithTracing configures OpenTelemetry tracing for the service. If
// outputFile is empty the stdout exporter is used; otherwise traces are
// written to the supplied file path. The function is safe to call multiple
// times - the first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, for example OTLP, Jaeger or Zipkin.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
