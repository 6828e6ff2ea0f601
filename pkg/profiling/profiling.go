// Package profiling pushes continuous profiles to Pyroscope.
package profiling

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/folio/contact-relay/config"
	"github.com/folio/contact-relay/pkg/logger"
	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// mutex and block profiles need the runtime to sample contention first
const contentionRate = 5

// sampleTypes maps O11Y_PROFILING_SAMPLE_TYPES entries onto pyroscope profiles
var sampleTypes = map[string][]pyroscope.ProfileType{
	"cpu":           {pyroscope.ProfileCPU},
	"alloc_space":   {pyroscope.ProfileAllocSpace},
	"alloc_objects": {pyroscope.ProfileAllocObjects},
	"inuse_space":   {pyroscope.ProfileInuseSpace},
	"goroutines":    {pyroscope.ProfileGoroutines},
	"mutex":         {pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration},
	"block":         {pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration},
}

const defaultSampleTypes = "cpu,alloc_space,goroutines"

// selection is the parsed sample type list
type selection struct {
	types []pyroscope.ProfileType
	mutex bool
	block bool
}

func parseSampleTypes(value string) (selection, error) {
	if strings.TrimSpace(value) == "" {
		value = defaultSampleTypes
	}

	var sel selection
	seen := map[pyroscope.ProfileType]bool{}
	for _, raw := range strings.Split(value, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		mapped, ok := sampleTypes[name]
		if !ok {
			return selection{}, fmt.Errorf("unsupported O11Y_PROFILING_SAMPLE_TYPES value: %q", name)
		}
		sel.mutex = sel.mutex || name == "mutex"
		sel.block = sel.block || name == "block"
		for _, t := range mapped {
			if !seen[t] {
				seen[t] = true
				sel.types = append(sel.types, t)
			}
		}
	}

	if len(sel.types) == 0 {
		return parseSampleTypes(defaultSampleTypes)
	}
	return sel, nil
}

// profileTags labels every uploaded profile; the instance tag is left out when unknown
func profileTags(o11y config.ObservabilityConfig, environment string) map[string]string {
	tags := map[string]string{
		"service_name":    o11y.ServiceName,
		"namespace":       o11y.ServiceNamespace,
		"environment":     environment,
		"service_version": o11y.ServiceVersion,
	}
	if o11y.ServiceInstanceID != "" {
		tags["instance"] = o11y.ServiceInstanceID
	}
	return tags
}

// InitProfiler starts pushing profiles when profiling is enabled.
// The returned stop function is always safe to call.
func InitProfiler(cfg config.ProfilingConfig, o11y config.ObservabilityConfig, environment string) (func(), error) {
	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled")
		return func() {}, nil
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("profiling endpoint is required when profiling is enabled")
	}

	sel, err := parseSampleTypes(cfg.SampleTypes)
	if err != nil {
		return nil, err
	}

	uploadRate := time.Duration(cfg.UploadIntervalSeconds) * time.Second
	if uploadRate <= 0 {
		uploadRate = 15 * time.Second
	}

	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		appName = o11y.ServiceName
	}

	// Per-IP lock contention shows up in the mutex profile
	if sel.mutex {
		runtime.SetMutexProfileFraction(contentionRate)
	}
	if sel.block {
		runtime.SetBlockProfileRate(contentionRate)
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		Tags:            profileTags(o11y, environment),
		ServerAddress:   endpoint,
		UploadRate:      uploadRate,
		ProfileTypes:    sel.types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start profiler: %w", err)
	}

	logger.Info("Continuous profiling initialized",
		zap.String("application_name", appName),
		zap.String("endpoint", endpoint),
		zap.Int("profile_types", len(sel.types)),
		zap.Duration("upload_rate", uploadRate),
	)

	return func() {
		if stopErr := profiler.Stop(); stopErr != nil {
			logger.Error("Failed to stop profiler", zap.Error(stopErr))
		}
		if sel.mutex {
			runtime.SetMutexProfileFraction(0)
		}
		if sel.block {
			runtime.SetBlockProfileRate(0)
		}
	}, nil
}
