package logging

import (
	"maps"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger accumulates how a binary was wired (state store, blob
// store, export archive format, billing) and emits it as one structured
// "Startup complete" event.
type StartupLogger struct {
	name       string
	commitHash string
	buildTime  string
	initDur    time.Duration

	store       backend
	blobs       backend
	compression string
	billing     *billingState

	resources map[string]map[string]string
	features  map[string]bool
	config    map[string]string
}

type backend struct {
	kind     string
	location string
}

type billingState struct {
	enabled  bool
	dedupe   string
	eventBus string
}

// NewStartupLogger returns a logger for the named binary, e.g. "stager-web".
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:      name,
		resources: make(map[string]map[string]string),
		features:  make(map[string]bool),
		config:    make(map[string]string),
	}
}

// Build records the commit and UTC build time injected via ldflags.
func (s *StartupLogger) Build(commitHash, buildTime string) *StartupLogger {
	s.commitHash = commitHash
	s.buildTime = buildTime
	return s
}

// Store records the project state backend ("sqlite", "dynamodb") and
// where it lives (file path or table name).
func (s *StartupLogger) Store(kind, location string) *StartupLogger {
	s.store = backend{kind: kind, location: location}
	return s
}

// Blobs records the blob backend ("local", "s3") and its root or bucket.
func (s *StartupLogger) Blobs(kind, location string) *StartupLogger {
	s.blobs = backend{kind: kind, location: location}
	return s
}

// ExportCompression records the archive method used for MLS exports.
func (s *StartupLogger) ExportCompression(name string) *StartupLogger {
	s.compression = name
	return s
}

// Billing records whether the payment webhook is mounted. An empty
// dedupeAddr means webhook deliveries are deduplicated in memory.
func (s *StartupLogger) Billing(enabled bool, dedupeAddr, eventBus string) *StartupLogger {
	b := &billingState{enabled: enabled, dedupe: "memory", eventBus: eventBus}
	if dedupeAddr != "" {
		b.dedupe = "redis:" + dedupeAddr
	}
	s.billing = b
	return s
}

// Resource registers an external dependency under kind (e.g. "ssm",
// "stateMachine", "lambda"). Empty values are skipped so optional
// resources can be passed unconditionally. Secrets must never be passed
// here; log the parameter path instead.
func (s *StartupLogger) Resource(kind, label, value string) *StartupLogger {
	if value == "" {
		return s
	}
	if s.resources[kind] == nil {
		s.resources[kind] = make(map[string]string)
	}
	s.resources[kind][label] = value
	return s
}

func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive setting. Empty values are skipped.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	if value != "" {
		s.config[key] = value
	}
	return s
}

func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDur = d
	return s
}

// EnvOrDefault returns the named environment variable, or defaultVal when
// it is empty or unset.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

// Log emits the collected state as a single INFO event.
func (s *StartupLogger) Log() {
	evt := log.Info()

	svc := zerolog.Dict().
		Str("name", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv(LevelEnvVar))
	if s.commitHash != "" {
		svc = svc.Str("commitHash", s.commitHash)
	}
	if s.buildTime != "" {
		svc = svc.Str("buildTime", s.buildTime)
	}
	evt = evt.Dict("service", svc)

	if fn := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); fn != "" {
		evt = evt.Dict("lambda", zerolog.Dict().
			Str("functionName", fn).
			Str("version", os.Getenv("AWS_LAMBDA_FUNCTION_VERSION")).
			Str("region", os.Getenv("AWS_REGION")).
			Str("memoryMB", os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")))
	}

	if s.store.kind != "" {
		evt = evt.Dict("store", backendDict(s.store))
	}
	if s.blobs.kind != "" {
		evt = evt.Dict("blobs", backendDict(s.blobs))
	}
	if s.compression != "" {
		evt = evt.Dict("export", zerolog.Dict().Str("compression", s.compression))
	}
	if b := s.billing; b != nil {
		d := zerolog.Dict().Bool("enabled", b.enabled)
		if b.enabled {
			d = d.Str("dedupe", b.dedupe)
			if b.eventBus != "" {
				d = d.Str("eventBus", b.eventBus)
			}
		}
		evt = evt.Dict("billing", d)
	}

	if len(s.resources) > 0 {
		res := zerolog.Dict()
		for _, kind := range slices.Sorted(maps.Keys(s.resources)) {
			res = res.Dict(kind, stringDict(s.resources[kind]))
		}
		evt = evt.Dict("resources", res)
	}
	if len(s.features) > 0 {
		d := zerolog.Dict()
		for _, k := range slices.Sorted(maps.Keys(s.features)) {
			d = d.Bool(k, s.features[k])
		}
		evt = evt.Dict("features", d)
	}
	if len(s.config) > 0 {
		evt = evt.Dict("config", stringDict(s.config))
	}
	if s.initDur > 0 {
		evt = evt.Dur("initDuration", s.initDur)
	}

	evt.Msg("Startup complete")
}

func backendDict(b backend) *zerolog.Event {
	return zerolog.Dict().Str("backend", b.kind).Str("location", b.location)
}

func stringDict(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for _, k := range slices.Sorted(maps.Keys(m)) {
		d = d.Str(k, m[k])
	}
	return d
}
