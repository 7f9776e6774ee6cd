package graph

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind names a storage backend.
type Kind string

const (
	KindSQLite   Kind = "sqlite"
	KindKuzu     Kind = "kuzu"
	KindNeo4j    Kind = "neo4j"
	KindMemory   Kind = "memory"
	KindMemgraph Kind = "memgraph"
	KindArangoDB Kind = "arangodb"
)

// Connection parameter names.
const (
	ParamPath           = "path"
	ParamURI            = "uri"
	ParamUsername       = "username"
	ParamPassword       = "password"
	ParamDatabase       = "database"
	ParamConnectTimeout = "connect_timeout"
	ParamHost           = "host"
	ParamPort           = "port"
	ParamURL            = "url"
)

// kindSpec describes what the factory needs to know about a kind.
type kindSpec struct {
	required    []string
	placeholder bool
}

// kinds is the closed set of recognized backends.
var kinds = map[Kind]kindSpec{
	KindSQLite:   {required: []string{ParamPath}},
	KindKuzu:     {},
	KindNeo4j:    {required: []string{ParamURI, ParamUsername, ParamPassword}},
	KindMemory:   {},
	KindMemgraph: {placeholder: true},
	KindArangoDB: {placeholder: true},
}

// Config is the descriptor the factory turns into a Backend. It is filled
// in by the configuration layer; the factory never reads the environment.
type Config struct {
	Kind        Kind              `yaml:"kind" json:"kind"`
	Params      map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	ClearOnInit bool              `yaml:"clearOnInit" json:"clearOnInit"`
}

// KnownKinds returns every recognized kind, sorted.
func KnownKinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsPlaceholder reports whether kind is recognized but not implemented.
func IsPlaceholder(kind Kind) bool {
	return kinds[kind].placeholder
}

// ParseKind normalizes s and checks it against the recognized kinds.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kinds[k]; !ok {
		return "", fmt.Errorf("graph: unknown backend kind %q: %w", s, ErrConfiguration)
	}
	return k, nil
}

// ---------- Options ----------

const defaultConnectTimeout = 10 * time.Second

// storeOptions holds settings shared by all concrete backends.
type storeOptions struct {
	logger         *zap.Logger
	clearOnInit    bool
	connectTimeout time.Duration
}

// Option configures a backend.
type Option func(*storeOptions)

// WithLogger sets the logger used for warnings and debug output.
func WithLogger(l *zap.Logger) Option {
	return func(o *storeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClearOnInit makes Initialize wipe the graph after schema setup.
func WithClearOnInit(clear bool) Option {
	return func(o *storeOptions) { o.clearOnInit = clear }
}

// WithConnectTimeout bounds how long Initialize waits for the store.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *storeOptions) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{
		logger:         zap.NewNop(),
		connectTimeout: defaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ---------- Factory ----------

// NewBackend resolves cfg to a Backend. It performs no I/O: connections are
// opened by Initialize. Unknown kinds and missing required parameters fail
// with ErrConfiguration; recognized placeholder kinds return a stub whose
// every operation fails with ErrNotImplemented.
func NewBackend(cfg Config, opts ...Option) (Backend, error) {
	kind, err := ParseKind(string(cfg.Kind))
	if err != nil {
		return nil, err
	}
	ks := kinds[kind]
	if ks.placeholder {
		return newPlaceholder(kind), nil
	}

	for _, p := range ks.required {
		if strings.TrimSpace(cfg.Params[p]) == "" {
			return nil, fmt.Errorf("graph: %s: missing required parameter %q: %w", kind, p, ErrConfiguration)
		}
	}

	all := append([]Option{WithClearOnInit(cfg.ClearOnInit)}, opts...)
	if raw := cfg.Params[ParamConnectTimeout]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("graph: %s: invalid %s %q: %w", kind, ParamConnectTimeout, raw, ErrConfiguration)
		}
		all = append(all, WithConnectTimeout(d))
	}

	switch kind {
	case KindSQLite:
		return NewSQLStore(cfg.Params[ParamPath], all...), nil
	case KindKuzu:
		return newKuzuBackend(cfg.Params[ParamPath], all...)
	case KindNeo4j:
		return NewNeo4jStore(Neo4jParams{
			URI:      cfg.Params[ParamURI],
			Username: cfg.Params[ParamUsername],
			Password: cfg.Params[ParamPassword],
			Database: cfg.Params[ParamDatabase],
		}, all...), nil
	case KindMemory:
		return NewMemStore(all...), nil
	default:
		return nil, fmt.Errorf("graph: no constructor for kind %q: %w", kind, ErrConfiguration)
	}
}
