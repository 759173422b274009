package tracing

// Service is the cheaply cloneable shared handle spec.md §9 describes:
// a reference to an immutable inner (permit gate + backend + config).
// Constructing one does not copy the backend or spin up goroutines; it
// is safe to pass by value or share a pointer across many RPC handler
// goroutines.
type Service struct {
	inner *serviceInner
}

type serviceInner struct {
	backend Backend
	permits *PermitGate
	config  Config
	reward  *RewardCalculator
}

// NewService builds a Service over backend with the given config. The
// Reward Calculator is derived once, from backend.ChainConfig(), since
// chain identity does not change over the Service's lifetime.
func NewService(backend Backend, config Config) *Service {
	return &Service{inner: &serviceInner{
		backend: backend,
		permits: NewPermitGate(config.MaxConcurrentTracingCalls),
		config:  config,
		reward:  NewRewardCalculator(backend.ChainConfig()),
	}}
}

func (s *Service) backend() Backend               { return s.inner.backend }
func (s *Service) permits() *PermitGate            { return s.inner.permits }
func (s *Service) config() Config                  { return s.inner.config }
func (s *Service) rewardCalculator() *RewardCalculator { return s.inner.reward }
