package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/codepecker/internal/graph"
)

// Environment variables read by Load. They override codepecker.yml.
const (
	EnvDBType           = "CODEPECKER_DB_TYPE"
	EnvSQLitePath       = "CODEPECKER_SQLITE_PATH"
	EnvKuzuPath         = "CODEPECKER_KUZU_PATH"
	EnvNeo4jURI         = "CODEPECKER_NEO4J_URI"
	EnvNeo4jUser        = "CODEPECKER_NEO4J_USER"
	EnvNeo4jPassword    = "CODEPECKER_NEO4J_PASSWORD"
	EnvNeo4jDatabase    = "CODEPECKER_NEO4J_DATABASE"
	EnvMemgraphHost     = "CODEPECKER_MEMGRAPH_HOST"
	EnvMemgraphPort     = "CODEPECKER_MEMGRAPH_PORT"
	EnvArangoURL        = "CODEPECKER_ARANGODB_URL"
	EnvArangoUser       = "CODEPECKER_ARANGODB_USER"
	EnvArangoPassword   = "CODEPECKER_ARANGODB_PASSWORD"
	EnvClearOnInit      = "CODEPECKER_CLEAR_ON_INIT"
	EnvConnectTimeout   = "CODEPECKER_CONNECT_TIMEOUT"
	DefaultSQLitePath   = "call_stack_graph.db"
	DefaultKuzuPath     = ".codepecker/graph.kuzu"
	defaultNeo4jURI     = "bolt://localhost:7687"
	defaultNeo4jUser    = "neo4j"
	defaultNeo4jPass    = "password"
	defaultMemgraphHost = "localhost"
	defaultMemgraphPort = "7687"
	defaultArangoURL    = "http://localhost:8529"
	defaultArangoUser   = "root"
)

// DatabaseConfig selects and parameterizes the graph backend.
type DatabaseConfig struct {
	Type        string            `yaml:"type,omitempty"`
	Params      map[string]string `yaml:"params,omitempty"`
	ClearOnInit *bool             `yaml:"clearOnInit,omitempty"`
}

// ProjectConfig holds project-level settings loaded from codepecker.yml.
type ProjectConfig struct {
	Database    DatabaseConfig `yaml:"database,omitempty"`
	Languages   []string       `yaml:"languages,omitempty"`
	ExcludeDirs []string       `yaml:"excludeDirs,omitempty"`
	Verbose     bool           `yaml:"verbose,omitempty"`
	MCPAddr     string         `yaml:"mcpAddr,omitempty"`

	// dir is the directory the config was loaded from; relative database
	// paths resolve against it.
	dir string
}

// Load reads codepecker.yml or codepecker.yaml from dir, then applies
// CODEPECKER_* variables from dir/.env and the process environment (the
// process wins). Missing files are not an error.
func Load(dir string) (*ProjectConfig, error) {
	cfg := &ProjectConfig{}
	for _, name := range []string{"codepecker.yml", "codepecker.yaml"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", name, err)
		}
		break
	}
	cfg.dir = dir

	dotenv, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envParams maps environment variables to backend parameters per kind.
var envParams = map[graph.Kind]map[string]string{
	graph.KindSQLite:   {EnvSQLitePath: graph.ParamPath},
	graph.KindKuzu:     {EnvKuzuPath: graph.ParamPath},
	graph.KindNeo4j:    {EnvNeo4jURI: graph.ParamURI, EnvNeo4jUser: graph.ParamUsername, EnvNeo4jPassword: graph.ParamPassword, EnvNeo4jDatabase: graph.ParamDatabase},
	graph.KindMemgraph: {EnvMemgraphHost: graph.ParamHost, EnvMemgraphPort: graph.ParamPort},
	graph.KindArangoDB: {EnvArangoURL: graph.ParamURL, EnvArangoUser: graph.ParamUsername, EnvArangoPassword: graph.ParamPassword},
}

// defaultParams are used for any parameter left unset.
var defaultParams = map[graph.Kind]map[string]string{
	graph.KindSQLite:   {graph.ParamPath: DefaultSQLitePath},
	graph.KindKuzu:     {graph.ParamPath: DefaultKuzuPath},
	graph.KindNeo4j:    {graph.ParamURI: defaultNeo4jURI, graph.ParamUsername: defaultNeo4jUser, graph.ParamPassword: defaultNeo4jPass},
	graph.KindMemgraph: {graph.ParamHost: defaultMemgraphHost, graph.ParamPort: defaultMemgraphPort},
	graph.KindArangoDB: {graph.ParamURL: defaultArangoURL, graph.ParamUsername: defaultArangoUser},
}

func (c *ProjectConfig) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDBType); ok && v != "" {
		c.Database.Type = v
	}
	if c.Database.Params == nil {
		c.Database.Params = make(map[string]string)
	}
	kind := graph.Kind(strings.ToLower(strings.TrimSpace(c.Database.Type)))
	if kind == "" {
		kind = graph.KindSQLite
	}
	for env, param := range envParams[kind] {
		if v, ok := lookup(env); ok {
			c.Database.Params[param] = v
		}
	}
	if v, ok := lookup(EnvConnectTimeout); ok && v != "" {
		c.Database.Params[graph.ParamConnectTimeout] = v
	}
	if v, ok := lookup(EnvClearOnInit); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvClearOnInit, v, graph.ErrConfiguration)
		}
		c.Database.ClearOnInit = &b
	}
	return nil
}

// GraphConfig resolves the database section into a factory descriptor.
// Type defaults to sqlite, unset parameters take their defaults, relative
// file paths resolve against the config directory and clear-on-init
// defaults to true.
func (c *ProjectConfig) GraphConfig() (graph.Config, error) {
	typ := c.Database.Type
	if strings.TrimSpace(typ) == "" {
		typ = string(graph.KindSQLite)
	}
	kind, err := graph.ParseKind(typ)
	if err != nil {
		return graph.Config{}, err
	}

	params := make(map[string]string, len(c.Database.Params))
	for k, v := range defaultParams[kind] {
		params[k] = v
	}
	for k, v := range c.Database.Params {
		if v != "" {
			params[k] = v
		}
	}
	if kind == graph.KindSQLite || kind == graph.KindKuzu {
		if p := params[graph.ParamPath]; p != "" && p != ":memory:" && !filepath.IsAbs(p) && c.dir != "" {
			params[graph.ParamPath] = filepath.Join(c.dir, p)
		}
	}

	clear := true
	if c.Database.ClearOnInit != nil {
		clear = *c.Database.ClearOnInit
	}
	return graph.Config{Kind: kind, Params: params, ClearOnInit: clear}, nil
}
