package autarch

import (
	"fmt"
	"time"

	"github.com/viant/x"

	"github.com/autarch-dev/autarch/extension"
	"github.com/autarch-dev/autarch/model/types"
	"github.com/autarch-dev/autarch/model/workflow"
	"github.com/autarch-dev/autarch/service/action/parallel"
	"github.com/autarch-dev/autarch/service/action/subresult"
	"github.com/autarch-dev/autarch/service/dao"
	"github.com/autarch-dev/autarch/service/dao/store"
	"github.com/autarch-dev/autarch/service/diff"
	"github.com/autarch-dev/autarch/service/dispatch"
	"github.com/autarch-dev/autarch/service/event"
	"github.com/autarch-dev/autarch/service/gate"
	"github.com/autarch-dev/autarch/service/invoker"
	"github.com/autarch-dev/autarch/service/merge"
	"github.com/autarch-dev/autarch/service/messaging"
	"github.com/autarch-dev/autarch/service/messaging/fs"
	mmemory "github.com/autarch-dev/autarch/service/messaging/memory"
	"github.com/autarch-dev/autarch/service/reconcile"
	"github.com/autarch-dev/autarch/service/registry"
	"github.com/autarch-dev/autarch/service/runner"
	"github.com/autarch-dev/autarch/service/subtask"
	smemory "github.com/autarch-dev/autarch/service/subtask/memory"
	ssqlite "github.com/autarch-dev/autarch/service/subtask/sqlite"
	"github.com/autarch-dev/autarch/service/watchdog"
)

// Service is the engine facade: it wires the registry, dispatcher,
// reconciler, merger, gate and their supporting infrastructure into a
// runnable coordination engine.
type Service struct {
	config  *Config
	runtime *Runtime

	agent      registry.Agent
	diffSource diff.Source

	sessionDao   dao.Service[string, registry.Session]
	workflowDao  dao.Service[string, workflow.Workflow]
	artifactDao  dao.Service[string, workflow.Artifact]
	subtaskStore subtask.Store
	runQueue     messaging.Queue[registry.Run]
	events       *event.Service

	actions           *extension.Actions
	extensionTypes    []*x.Type
	extensionServices []types.Service
}

// New creates the engine service. An agent must be supplied - the engine
// coordinates sessions but never talks to a model itself.
func New(options ...Option) (*Service, error) {
	ret := &Service{config: DefaultConfig(), runtime: &Runtime{}}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) init() error {
	if s.agent == nil {
		return fmt.Errorf("agent is required")
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if err := s.ensureBaseSetup(); err != nil {
		return err
	}

	reg := registry.New(s.sessionDao, s.runQueue, s.agent)
	merger := merge.New(s.subtaskStore)
	reconciler := reconcile.New(s.subtaskStore, reg, merger, s.events)
	dispatcher := dispatch.New(s.subtaskStore, reg, reconciler, s.diffSource, s.events,
		dispatch.WithMaxRuntime(time.Duration(s.config.Dispatch.MaxRuntimeMs)*time.Millisecond))
	gateService := gate.New(s.workflowDao, s.artifactDao, s.events)

	runnerService, err := runner.New(runner.Config{WorkerCount: s.config.Runner.WorkerCount},
		reg, reconciler, s.subtaskStore, s.events)
	if err != nil {
		return err
	}
	watchdogService := watchdog.New(s.subtaskStore, reconciler, watchdog.Config{
		PollingInterval: time.Duration(s.config.Watchdog.PollingIntervalMs) * time.Millisecond,
	})

	s.actions = extension.NewActions(s.extensionTypes...)
	s.actions.Register(parallel.New(dispatcher, s.workflowDao))
	s.actions.Register(subresult.New(reconciler))
	for _, service := range s.extensionServices {
		s.actions.Register(service)
	}

	s.runtime.registry = reg
	s.runtime.merger = merger
	s.runtime.reconciler = reconciler
	s.runtime.dispatcher = dispatcher
	s.runtime.gate = gateService
	s.runtime.runner = runnerService
	s.runtime.watchdog = watchdogService
	s.runtime.invoker = invoker.New(s.actions)
	s.runtime.workflowDao = s.workflowDao
	s.runtime.artifactDao = s.artifactDao
	s.runtime.subtaskStore = s.subtaskStore
	s.runtime.events = s.events
	s.runtime.policy = s.config.Policy
	return nil
}

func (s *Service) ensureBaseSetup() error {
	if s.sessionDao == nil {
		s.sessionDao = store.NewMemoryStore[string, registry.Session](func(t *registry.Session) string { return t.ID })
	}
	if s.workflowDao == nil {
		s.workflowDao = store.NewMemoryStore[string, workflow.Workflow](func(t *workflow.Workflow) string { return t.ID })
	}
	if s.artifactDao == nil {
		s.artifactDao = store.NewMemoryStore[string, workflow.Artifact](func(t *workflow.Artifact) string { return t.ID })
	}
	if s.runQueue == nil {
		s.runQueue = mmemory.NewQueue[registry.Run](mmemory.DefaultConfig())
	}
	if s.subtaskStore == nil {
		switch s.config.Store.Vendor {
		case "sqlite":
			sqliteStore, err := ssqlite.Open(s.config.Store.DSN)
			if err != nil {
				return err
			}
			s.subtaskStore = sqliteStore
		default:
			s.subtaskStore = smemory.New()
		}
	}
	if s.events == nil {
		vendor := messaging.Vendor(s.config.Queue.Vendor)
		if vendor == "" {
			vendor = "memory"
		}
		var opts []event.Option
		if vendor == "fs" {
			basePath := s.config.Queue.BasePath
			opts = append(opts, event.WithNewFsQueueConfig(func(name string) fs.QueueConfig {
				cfg := fs.DefaultConfig()
				if basePath != "" {
					cfg.BasePath = basePath + "/" + name
				}
				return cfg
			}))
		}
		events, err := event.New(vendor, opts...)
		if err != nil {
			return err
		}
		s.events = events
	}
	return nil
}

// RegisterExtensionTypes registers Go types on the action type registry.
func (s *Service) RegisterExtensionTypes(types ...*x.Type) {
	for i := range types {
		s.actions.Types().Register(types[i])
	}
}

// RegisterExtensionServices registers additional action services.
func (s *Service) RegisterExtensionServices(services ...types.Service) {
	for i := range services {
		s.actions.Register(services[i])
	}
}

// Actions exposes the action service registry.
func (s *Service) Actions() *extension.Actions {
	return s.actions
}

// Runtime returns the wired coordination runtime.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}
