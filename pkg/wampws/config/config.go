package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/tsarna/wampws/pkg/wampws/config/functions"
	"github.com/tsarna/wampws/pkg/wampws/endpoint"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"go.uber.org/zap"
)

type ConfigBuilder struct {
	logger  *zap.Logger
	sources []any
}

// Config is a fully evaluated client configuration.
type Config struct {
	Logger    *zap.Logger
	Functions map[string]function.Function
	Constants map[string]cty.Value
	evalCtx   *hcl.EvalContext

	Endpoint        endpoint.Endpoint
	Target          string
	DialTimeout     time.Duration
	IOTimeout       time.Duration
	StrictHandshake bool
	MaxMessageSize  uint64
	Headers         map[string]string
	Subscriptions   []string
	Prefixes        []PrefixDefinition
	Schedules       []ScheduleDefinition
	Timezone        string
}

type PrefixDefinition struct {
	Name     string    `hcl:"name,label"`
	URI      string    `hcl:"uri"`
	DefRange hcl.Range `hcl:",def_range"`
}

type ScheduleDefinition struct {
	Name     string         `hcl:"name,label"`
	Cron     string         `hcl:"cron"`
	Topic    string         `hcl:"topic"`
	Payload  hcl.Expression `hcl:"payload,optional"`
	AsEvent  bool           `hcl:"as_event,optional"`
	Timezone string         `hcl:"timezone,optional"`
	DefRange hcl.Range      `hcl:",def_range"`
}

type clientDefinition struct {
	Endpoint        hcl.Expression       `hcl:"endpoint"`
	Target          string               `hcl:"target,optional"`
	DialTimeout     hcl.Expression       `hcl:"dial_timeout,optional"`
	IOTimeout       hcl.Expression       `hcl:"io_timeout,optional"`
	StrictHandshake bool                 `hcl:"strict_handshake,optional"`
	MaxMessageSize  int64                `hcl:"max_message_size,optional"`
	Headers         map[string]string    `hcl:"headers,optional"`
	Subscriptions   []string             `hcl:"subscriptions,optional"`
	Timezone        string               `hcl:"timezone,optional"`
	Prefixes        []PrefixDefinition   `hcl:"prefix,block"`
	Schedules       []ScheduleDefinition `hcl:"schedule,block"`
}

func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{
		sources: make([]any, 0),
	}
}

func (cb *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	cb.logger = logger
	return cb
}

func (cb *ConfigBuilder) WithSources(sources ...any) *ConfigBuilder {
	cb.sources = append(cb.sources, sources...)
	return cb
}

func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	logger := cb.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	config := &Config{
		Logger:    logger,
		Constants: make(map[string]cty.Value),
	}

	bodies, diags := ParseConfigFiles(cb.sources...)
	if diags.HasErrors() {
		return nil, diags
	}
	if len(bodies) == 0 {
		return nil, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "No configuration",
			Detail:   "No configuration sources were provided",
		})
	}

	userFuncs, remaining, addDiags := functions.ExtractUserFunctions(bodies, func() *hcl.EvalContext {
		return config.evalCtx
	})
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	config.Functions, addDiags = config.GetFunctions(userFuncs)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	config.Constants["env"] = GetEnvObject()

	config.evalCtx = &hcl.EvalContext{
		Functions: config.Functions,
		Variables: config.Constants,
	}

	consts, remaining, addDiags := extractConsts(remaining)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	diags = diags.Extend(config.evaluateConsts(consts))
	if diags.HasErrors() {
		return nil, diags
	}

	var def clientDefinition
	diags = diags.Extend(gohcl.DecodeBody(hcl.MergeBodies(remaining), config.evalCtx, &def))
	if diags.HasErrors() {
		return nil, diags
	}

	diags = diags.Extend(config.apply(&def))
	if diags.HasErrors() {
		return nil, diags
	}

	config.Logger.Info("Config built successfully",
		zap.String("endpoint", config.Endpoint.String()),
		zap.Int("subscriptions", len(config.Subscriptions)),
		zap.Int("schedules", len(config.Schedules)),
	)

	return config, diags
}

// GetFunctions returns the functions available to config expressions, with
// user functions added. User functions may not replace built-in ones.
func (c *Config) GetFunctions(userFuncs map[string]function.Function) (map[string]function.Function, hcl.Diagnostics) {
	funcs := functions.GetStandardLibraryFunctions()
	diags := hcl.Diagnostics{}

	for name, fn := range functions.GetLogFunctions(c.Logger) {
		funcs[name] = fn
	}

	funcs["typeof"] = functions.TypeOfFunc
	funcs["diff"] = functions.DiffFunc
	funcs["patch"] = functions.PatchFunc

	for name, fn := range userFuncs {
		if _, exists := funcs[name]; exists {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate function",
				Detail:   fmt.Sprintf("Function %s is reserved and can't be overridden", name),
			})
			continue
		}
		funcs[name] = fn
	}

	return funcs, diags
}

// EvalContext returns the context config expressions are evaluated in.
func (c *Config) EvalContext() *hcl.EvalContext {
	return c.evalCtx
}

func (c *Config) apply(def *clientDefinition) hcl.Diagnostics {
	var diags hcl.Diagnostics

	endpointVal, evalDiags := def.Endpoint.Value(c.evalCtx)
	diags = diags.Extend(evalDiags)
	if !evalDiags.HasErrors() {
		if endpointVal.IsNull() || endpointVal.Type() != cty.String {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid endpoint",
				Detail:   "endpoint must be a string URL",
				Subject:  def.Endpoint.Range().Ptr(),
			})
		} else {
			ep, err := endpoint.Resolve(endpointVal.AsString())
			if err != nil {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid endpoint",
					Detail:   err.Error(),
					Subject:  def.Endpoint.Range().Ptr(),
				})
			}
			c.Endpoint = ep
		}
	}

	c.Target = def.Target
	if c.Target != "" && !strings.Contains(c.Target, "/") {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid target",
			Detail:   fmt.Sprintf("target %q must contain a '/'", c.Target),
		})
	}

	if IsExpressionProvided(def.DialTimeout) {
		d, durDiags := c.ParseDuration(def.DialTimeout)
		diags = diags.Extend(durDiags)
		c.DialTimeout = d
	}
	if IsExpressionProvided(def.IOTimeout) {
		d, durDiags := c.ParseDuration(def.IOTimeout)
		diags = diags.Extend(durDiags)
		c.IOTimeout = d
	}

	if def.MaxMessageSize < 0 {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid max_message_size",
			Detail:   "max_message_size must not be negative",
		})
	} else {
		c.MaxMessageSize = uint64(def.MaxMessageSize)
	}

	c.StrictHandshake = def.StrictHandshake
	c.Headers = def.Headers
	c.Subscriptions = def.Subscriptions
	c.Timezone = def.Timezone

	prefixes := make(map[string]hcl.Range)
	for _, p := range def.Prefixes {
		if prev, exists := prefixes[p.Name]; exists {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate prefix",
				Detail:   fmt.Sprintf("Prefix %s is already defined at %v", p.Name, prev),
				Subject:  p.DefRange.Ptr(),
			})
			continue
		}
		prefixes[p.Name] = p.DefRange
		c.Prefixes = append(c.Prefixes, p)
	}

	schedules := make(map[string]hcl.Range)
	for _, s := range def.Schedules {
		if prev, exists := schedules[s.Name]; exists {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate schedule",
				Detail:   fmt.Sprintf("Schedule %s is already defined at %v", s.Name, prev),
				Subject:  s.DefRange.Ptr(),
			})
			continue
		}
		schedules[s.Name] = s.DefRange
		diags = diags.Extend(validateSchedule(&s))
		c.Schedules = append(c.Schedules, s)
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid timezone",
				Detail:   fmt.Sprintf("Invalid timezone: %s", c.Timezone),
			})
		}
	}

	return diags
}
