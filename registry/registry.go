package registry

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/paraita/dspot/types"
)

// Request is one amplification job of a batch file
type Request struct {
	ID        string                  `yaml:"id"`
	Classes   []types.TestArtifactRef `yaml:"classes,omitempty"`
	Methods   []string                `yaml:"methods,omitempty"`
	Package   string                  `yaml:"package,omitempty"` // source package the candidates come from
	Match     string                  `yaml:"match,omitempty"`
	Selector  string                  `yaml:"selector,omitempty"`
	Seed      *uint64                 `yaml:"seed,omitempty"`
	Ratio     float64                 `yaml:"ratio,omitempty"`
	Threshold *float64                `yaml:"threshold,omitempty"`
}

// ExecutionRequest returns the part of the request handed to the engine
func (r Request) ExecutionRequest() types.ExecutionRequest {
	return types.ExecutionRequest{Classes: r.Classes, Methods: r.Methods}
}

// File is the layout of a batch request file
type File struct {
	Defaults Request   `yaml:"defaults"`
	Requests []Request `yaml:"requests"`
}

// Registry holds the validated requests of a batch file
type Registry struct {
	config   Config
	requests []Request
	mu       sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log         log.Logger
	RequestFile string
}

// NewRegistry loads and validates the request file
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.RequestFile == "" {
		return nil, fmt.Errorf("request file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{config: cfg}
	if err := r.loadRequests(cfg.RequestFile); err != nil {
		return nil, fmt.Errorf("failed to load requests: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "len(requests)", len(r.requests))
	return r, nil
}

func (r *Registry) loadRequests(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := loadFile(path)
	if err != nil {
		return err
	}

	requests := make([]Request, 0, len(file.Requests))
	seen := make(map[string]bool, len(file.Requests))
	for i, req := range file.Requests {
		req = req.withDefaults(file.Defaults)
		if req.ID == "" {
			req.ID = fmt.Sprintf("request-%d", i+1)
		}
		if seen[req.ID] {
			return fmt.Errorf("duplicate request id %q", req.ID)
		}
		seen[req.ID] = true
		if err := req.validate(); err != nil {
			return fmt.Errorf("request %q: %w", req.ID, err)
		}
		requests = append(requests, req)
	}
	if len(requests) == 0 {
		return fmt.Errorf("no requests in %s", path)
	}

	r.requests = requests
	return nil
}

// withDefaults fills unset fields from the file defaults
func (req Request) withDefaults(d Request) Request {
	if len(req.Classes) == 0 {
		req.Classes = d.Classes
	}
	if len(req.Methods) == 0 {
		req.Methods = d.Methods
	}
	if req.Package == "" {
		req.Package = d.Package
	}
	if req.Match == "" {
		req.Match = d.Match
	}
	if req.Selector == "" {
		req.Selector = d.Selector
	}
	if req.Seed == nil {
		req.Seed = d.Seed
	}
	if req.Ratio == 0 {
		req.Ratio = d.Ratio
	}
	if req.Threshold == nil {
		req.Threshold = d.Threshold
	}
	return req
}

func (req Request) validate() error {
	if len(req.Classes) == 0 {
		return fmt.Errorf("at least one class is required")
	}
	if req.Package != "" && len(req.Classes) != 1 {
		return fmt.Errorf("candidates from package %s need exactly one class, got %d", req.Package, len(req.Classes))
	}
	if req.Match != "" {
		if _, err := regexp.Compile(req.Match); err != nil {
			return fmt.Errorf("invalid match expression: %w", err)
		}
	}
	return nil
}

// Requests returns all requests in file order
func (r *Registry) Requests() []Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Request(nil), r.requests...)
}

// Request looks up a request by id
func (r *Registry) Request(id string) (Request, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, req := range r.requests {
		if req.ID == id {
			return req, true
		}
	}
	return Request{}, false
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// loadFile reads a request file
func loadFile(path string) (*File, error) {
	log.Debug("Reading request file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading request file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing request file: %w", err)
	}
	return &f, nil
}
