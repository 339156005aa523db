package config

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/robfig/cron/v3"
	"github.com/tsarna/go2cty2go"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

// Publisher sends scheduled payloads. *session.Session implements it.
type Publisher interface {
	Publish(ctx context.Context, topicURI string, payload any) error
	Event(ctx context.Context, topicURI string, payload any) error
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func validateSchedule(s *ScheduleDefinition) hcl.Diagnostics {
	var diags hcl.Diagnostics

	if _, err := cronParser.Parse(s.Cron); err != nil {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid cron expression",
			Detail:   fmt.Sprintf("Schedule %s: %s", s.Name, err),
			Subject:  s.DefRange.Ptr(),
		})
	}

	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid timezone",
				Detail:   fmt.Sprintf("Invalid timezone: %s", s.Timezone),
				Subject:  s.DefRange.Ptr(),
			})
		}
	}

	if s.Topic == "" {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid schedule",
			Detail:   fmt.Sprintf("Schedule %s must have a non-empty topic", s.Name),
			Subject:  s.DefRange.Ptr(),
		})
	}

	return diags
}

// BuildScheduler returns a cron scheduler, not yet started, with one job per
// schedule block. Jobs publish through publisher using ctx.
func (c *Config) BuildScheduler(ctx context.Context, publisher Publisher) (*cron.Cron, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	location := time.Local
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid timezone",
				Detail:   fmt.Sprintf("Invalid timezone: %s", c.Timezone),
			})
		}
		location = loc
	}

	scheduler := cron.New(
		cron.WithLogger(NewZapCronLogger(c.Logger)),
		cron.WithParser(cronParser),
		cron.WithLocation(location),
	)

	for _, def := range c.Schedules {
		job := &ScheduleJob{
			ctx:       ctx,
			config:    c,
			publisher: publisher,
			def:       def,
		}

		spec := def.Cron
		if def.Timezone != "" {
			spec = "CRON_TZ=" + def.Timezone + " " + spec
		}

		if _, err := scheduler.AddJob(spec, job); err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid cron expression",
				Detail:   fmt.Sprintf("Schedule %s: %s", def.Name, err),
				Subject:  def.DefRange.Ptr(),
			})
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}

	return scheduler, diags
}

// ScheduleJob evaluates a schedule's payload and publishes it.
type ScheduleJob struct {
	ctx       context.Context
	config    *Config
	publisher Publisher
	def       ScheduleDefinition
}

// NewScheduleJob returns the job BuildScheduler would register for def.
func (c *Config) NewScheduleJob(ctx context.Context, publisher Publisher, def ScheduleDefinition) *ScheduleJob {
	return &ScheduleJob{ctx: ctx, config: c, publisher: publisher, def: def}
}

func (j *ScheduleJob) Run() {
	logger := j.config.Logger.With(zap.String("schedule", j.def.Name), zap.String("topic", j.def.Topic))

	if err := j.ctx.Err(); err != nil {
		logger.Debug("Skipping scheduled publish", zap.Error(err))
		return
	}

	payload, err := j.Payload()
	if err != nil {
		logger.Error("Error evaluating scheduled payload", zap.Error(err))
		return
	}

	if j.def.AsEvent {
		err = j.publisher.Event(j.ctx, j.def.Topic, payload)
	} else {
		err = j.publisher.Publish(j.ctx, j.def.Topic, payload)
	}
	if err != nil {
		logger.Warn("Scheduled publish failed", zap.Error(err))
		return
	}

	logger.Debug("Scheduled publish sent", zap.Bool("as_event", j.def.AsEvent))
}

// Payload evaluates the payload expression. The expression can refer to
// schedule.name and schedule.topic.
func (j *ScheduleJob) Payload() (any, error) {
	if !IsExpressionProvided(j.def.Payload) {
		return nil, nil
	}

	evalCtx := j.config.evalCtx.NewChild()
	evalCtx.Variables = map[string]cty.Value{
		"schedule": cty.ObjectVal(map[string]cty.Value{
			"name":  cty.StringVal(j.def.Name),
			"topic": cty.StringVal(j.def.Topic),
		}),
	}

	value, diags := j.def.Payload.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}

	return go2cty2go.CtyToAny(value)
}

// ZapCronLogger adapts a zap.Logger to implement the cron.Logger interface
type ZapCronLogger struct {
	logger *zap.Logger
}

// NewZapCronLogger creates a new ZapCronLogger that wraps the given zap.Logger
func NewZapCronLogger(logger *zap.Logger) *ZapCronLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapCronLogger{logger: logger}
}

// Info logs cron's routine messages at debug level
func (z *ZapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Debug(msg, keyValueFields(keysAndValues)...)
}

func (z *ZapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append([]zap.Field{zap.Error(err)}, keyValueFields(keysAndValues)...)
	z.logger.Error(msg, fields...)
}

func keyValueFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		}
	}
	return fields
}
