package agent

import (
	"sync"

	"github.com/autoflow/autoflow/action"
	"github.com/autoflow/autoflow/analytics"
	"github.com/autoflow/autoflow/config"
	"github.com/autoflow/autoflow/decision"
	"github.com/autoflow/autoflow/engine"
	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/metadata"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/monitor"
	"github.com/autoflow/autoflow/persistence"
	"github.com/autoflow/autoflow/persistence/inmem"
	rd "github.com/autoflow/autoflow/persistence/redis"
	"github.com/autoflow/autoflow/rest"
	"github.com/autoflow/autoflow/service"
)

// Agent is the composition root: it wires the registry, decision engine,
// execution engine, monitor and REST server together from config. No
// component is a process-wide singleton.
type Agent struct {
	Config           config.Config
	registry         *action.Registry
	metadataService  *metadata.Service
	decisionEngine   *decision.Engine
	executionStorage persistence.ExecutionStorage
	collector        analytics.Collector
	executionEngine  *engine.ExecutionEngine
	healthMonitor    *monitor.HealthMonitor
	executionService *service.WorkflowExecutionService
	httpServer       *rest.Server
	shutdown         bool
	shutdownLock     sync.Mutex
	wg               sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config: conf,
	}
	setup := []func() error{
		a.setupRegistry,
		a.setupStorage,
		a.setupMetadataService,
		a.setupDecisionEngine,
		a.setupCollector,
		a.setupExecutionEngine,
		a.setupMonitor,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Registry exposes the operation registry so embedding processes can plug in
// their own step operations before Start.
func (a *Agent) Registry() *action.Registry {
	return a.registry
}

func (a *Agent) DecisionEngine() *decision.Engine {
	return a.decisionEngine
}

func (a *Agent) setupRegistry() error {
	a.registry = action.NewRegistry()
	return nil
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_REDIS:
		conf := rd.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		}
		a.executionStorage = rd.NewRedisExecutionStorage(conf)
	default:
		a.executionStorage = inmem.NewExecutionStorage()
	}
	return nil
}

func (a *Agent) setupMetadataService() error {
	var storage metadata.MetadataStorage
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_REDIS:
		conf := rd.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		}
		storage = rd.NewRedisMetadataStorage(conf)
	default:
		storage = metadata.NewInMemMetadataStorage()
	}
	a.metadataService = metadata.NewService(storage, a.registry)
	return nil
}

func (a *Agent) setupDecisionEngine() error {
	a.decisionEngine = decision.NewEngine()
	a.decisionEngine.RegisterRules(engine.DEFAULT_DECISION_POINT, decision.Rules{
		ApproveAbove: 0.9,
		RejectBelow:  0.2,
	})
	return nil
}

func (a *Agent) setupCollector() error {
	if len(a.Config.AuditLogFile) == 0 {
		a.collector = analytics.NoopCollector{}
		return nil
	}
	collector, err := analytics.NewLogFileCollector(a.Config.AuditLogFile)
	if err != nil {
		return err
	}
	a.collector = collector
	return nil
}

func (a *Agent) setupExecutionEngine() error {
	a.executionEngine = engine.NewExecutionEngine(a.metadataService, a.executionStorage,
		a.decisionEngine, a.registry, a.collector, a.Config, &a.wg)
	return nil
}

func (a *Agent) setupMonitor() error {
	a.healthMonitor = monitor.NewHealthMonitor(a.executionStorage, a.Config, &a.wg)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.executionService = service.NewWorkflowExecutionService(a.executionEngine, a.executionStorage, a.healthMonitor)
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.metadataService, a.executionService)
	return err
}

func (a *Agent) Start() error {
	a.executionEngine.Start()
	a.healthMonitor.Start()
	go func() {
		err := a.httpServer.Start()
		if err != nil {
			_ = a.Shutdown()
		}
	}()
	return nil
}

// RecordDecisionFeedback feeds predicted/actual outcome pairs back into the
// decision engine's adaptive tuner.
func (a *Agent) RecordDecisionFeedback(decisionPoint string, predicted string, actual string) {
	a.decisionEngine.RecordFeedback(decisionPoint, predicted, actual)
}

// RegisterTemplate is a convenience for embedding processes that configure
// templates in code rather than over HTTP.
func (a *Agent) RegisterTemplate(t model.WorkflowTemplate) error {
	return a.metadataService.RegisterTemplate(t)
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down agent")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		a.httpServer.Stop,
		a.healthMonitor.Stop,
		a.executionEngine.Stop,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}
