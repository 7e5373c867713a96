package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	enclavev1 "github.com/enclave-labs/agentscript/pkg/enclave/v1"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/capability"
	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
	enclavelog "github.com/enclave-labs/agentscript/pkg/enclave/v1/log"

	intCapability "github.com/enclave-labs/agentscript/internal/capability"
	"github.com/enclave-labs/agentscript/internal/config"
	"github.com/enclave-labs/agentscript/internal/enclave"
	"github.com/enclave-labs/agentscript/internal/events"
	"github.com/enclave-labs/agentscript/internal/logger"
	"github.com/enclave-labs/agentscript/internal/metrics"
	"github.com/enclave-labs/agentscript/internal/tracing"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitUsageError      = 2
	ExitTimeout         = 124
	ExitSigIntBase      = 128
	ExitSigInt          = ExitSigIntBase + int(syscall.SIGINT)
	ExitSigTerm         = ExitSigIntBase + int(syscall.SIGTERM)
	DefaultLogLevel     = "info"
	DefaultLogFmt       = "text"
	DefaultEventBusSize = 256
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "validate" {
		runValidateCommand(os.Args[2:])
		return
	}
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		printVersion()
		os.Exit(ExitSuccess)
	}
	exitCode := runExecuteCommand(os.Args[1:])
	os.Exit(exitCode)
}

func printVersion() {
	fmt.Printf("agentscript version %s\n", version)
	fmt.Printf("commit: %s\n", commit)
	fmt.Printf("built: %s\n", buildDate)
	fmt.Printf("go version: %s\n", runtime.Version())
	fmt.Printf("os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func loadProfile(log enclavelog.Logger, profilePath string) (*config.Profile, error) {
	if profilePath == "" {
		return config.DefaultProfile(), nil
	}
	log.Debugf("Loading profile: %s", profilePath)
	return config.LoadProfileFromFile(profilePath)
}

func runValidateCommand(args []string) {
	validateFlags := flag.NewFlagSet("validate", flag.ExitOnError)
	scriptPath := validateFlags.String("script", "", "Path to the script file to validate (required)")
	profilePath := validateFlags.String("profile", "", "Path to an enclave profile YAML file (defaults to the STANDARD preset)")
	logLevel := validateFlags.String("log-level", DefaultLogLevel, "Log level for validation output (debug, info, warn, error)")

	validateFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s validate -script <path> [flags...]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Validates a script against the static sandbox rules without executing it.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		validateFlags.PrintDefaults()
	}

	if err := validateFlags.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing validate flags: %v\n", err)
		os.Exit(ExitUsageError)
	}

	if *scriptPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -script flag is required for validation")
		validateFlags.Usage()
		os.Exit(ExitUsageError)
	}

	log := logger.NewLogger(*logLevel, "text", os.Stderr)
	log.Infof("Validating script: %s", *scriptPath)

	scriptBytes, err := os.ReadFile(*scriptPath)
	if err != nil {
		log.Errorf("Failed to read script file '%s': %v", *scriptPath, err)
		os.Exit(ExitFailure)
	}

	profile, err := loadProfile(log, *profilePath)
	if err != nil {
		log.Errorf("Failed to load profile: %v", err)
		os.Exit(ExitFailure)
	}

	enc, err := enclave.New(log, profile, nil)
	if err != nil {
		log.Errorf("Failed to create enclave: %v", err)
		os.Exit(ExitFailure)
	}
	defer enc.Close()

	report, err := enc.Validate(string(scriptBytes))
	if err != nil {
		log.Errorf("Validation could not run: %v", err)
		os.Exit(ExitFailure)
	}
	if !report.Valid {
		log.Errorf("Script validation failed with %d issue(s):", len(report.Issues))
		for _, issue := range report.Issues {
			log.Errorf("  [%s] %s", issue.Code, issue.Message)
		}
		os.Exit(ExitFailure)
	}

	log.Infof("Script validation successful: %s", *scriptPath)
	os.Exit(ExitSuccess)
}

func runExecuteCommand(args []string) int {
	execFlags := flag.NewFlagSet("agentscript", flag.ExitOnError)
	scriptPath := execFlags.String("script", "", "Path to the script file to execute (required)")
	profilePath := execFlags.String("profile", "", "Path to an enclave profile YAML file (defaults to the STANDARD preset)")
	globalsPath := execFlags.String("globals", "", "Path to a JSON file of host globals injected into the script")
	logLevel := execFlags.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	logFormat := execFlags.String("log-format", DefaultLogFmt, "Log format (text, json)")
	resultJSON := execFlags.Bool("result-json", false, "Print the full execution result as JSON on stdout")
	versionFlag := execFlags.Bool("version", false, "Print version information and exit")

	execFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags...] -script <path>\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Executes a script inside a governed enclave.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		execFlags.PrintDefaults()
	}

	if err := execFlags.Parse(args); err != nil {
		return ExitUsageError
	}

	if *versionFlag {
		printVersion()
		return ExitSuccess
	}

	if *scriptPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -script flag is required")
		execFlags.Usage()
		return ExitUsageError
	}
	if *logFormat != "text" && *logFormat != "json" {
		fmt.Fprintln(os.Stderr, "Error: -log-format must be 'text' or 'json'")
		return ExitUsageError
	}

	var logWriter io.Writer = os.Stderr
	log := logger.NewLogger(*logLevel, *logFormat, logWriter)
	log = log.With("agentscript_version", version)

	log.Infof("AgentScript enclave v%s starting...", version)
	log.Debugf("Log level: %s", *logLevel)
	log.Debugf("Log format: %s", *logFormat)

	profile, err := loadProfile(log, *profilePath)
	if err != nil {
		log.Errorf("Failed to load profile: %v", err)
		return ExitFailure
	}
	log.Debugf("Security level: %s", profile.Level)

	globals, err := loadGlobals(*globalsPath)
	if err != nil {
		log.Errorf("Failed to load globals file '%s': %v", *globalsPath, err)
		return ExitFailure
	}

	eventBus := events.NewChannelEventBus(DefaultEventBusSize, log)
	defer eventBus.Close()
	metricsProvider := metrics.NewPrometheusRegistryProvider()
	tracerProvider, err := tracing.NewProviderFromEnv(context.Background())
	if err != nil {
		log.Warnf("Failed to initialize tracing from environment: %v. Using NoOp tracer.", err)
		tracerProvider, _ = tracing.NewNoOpProvider()
	}

	// Without a host application there are no real capability handlers; a
	// fallback keeps scripts runnable by answering every tool call with null.
	registry := intCapability.NewStaticRegistryWithFallback(capability.HandlerFunc(
		func(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
			log.Warnf("No handler registered for capability '%s'; returning null.", name)
			return nil, nil
		}))

	enclaveOpts := []enclavev1.EnclaveOption{
		enclavev1.WithEventBus(eventBus),
		enclavev1.WithCapabilityRegistry(registry),
		enclavev1.WithMetricsRegistryProvider(metricsProvider),
		enclavev1.WithTracerProvider(tracerProvider),
	}

	enc, err := enclave.New(log, profile, globals, enclaveOpts...)
	if err != nil {
		log.Errorf("Failed to create enclave: %v", err)
		return ExitFailure
	}
	defer enc.Close()

	log.Infof("Loading script: %s", *scriptPath)
	scriptBytes, err := os.ReadFile(*scriptPath)
	if err != nil {
		log.Errorf("Failed to read script file '%s': %v", *scriptPath, err)
		return ExitFailure
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	listener := events.NewMetricsEventListener(eventBus, newEventToolCallCounter(metricsProvider), newEventRejectionCounter(metricsProvider), log)
	go listener.Start(runCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	defer close(sigChan)

	var receivedSignal os.Signal
	var sigMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			sigMu.Lock()
			receivedSignal = sig
			sigMu.Unlock()
			cancelRun()
		case <-runCtx.Done():
			log.Debugf("Signal handler exiting because run context is done.")
		}
	}()
	defer wg.Wait()

	log.Infof("Starting script execution...")
	result, execErr := enc.Run(runCtx, string(scriptBytes))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if shutdownErr := tracerProvider.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warnf("Error shutting down tracer provider: %v", shutdownErr)
	}

	printResult(log, result, execErr, *resultJSON)

	sigMu.Lock()
	finalSignal := receivedSignal
	sigMu.Unlock()
	return determineExitCode(result, execErr, finalSignal, log)
}

func loadGlobals(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var globals map[string]interface{}
	if err := json.Unmarshal(data, &globals); err != nil {
		return nil, fmt.Errorf("globals file must be a JSON object: %w", err)
	}
	return globals, nil
}

// The listener's collectors are event-derived and registered separately from
// the governor's own counters, so external consumers can compare the two.
func newEventToolCallCounter(provider *metrics.PrometheusRegistryProvider) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agentscript_event_tool_calls_total", Help: "Tool call events observed on the event bus, by tool name."},
		[]string{"tool"},
	)
	provider.Registry().MustRegister(c)
	return c
}

func newEventRejectionCounter(provider *metrics.PrometheusRegistryProvider) prometheus.Counter {
	c := prometheus.NewCounter(
		prometheus.CounterOpts{Name: "agentscript_event_rejections_total", Help: "Validation rejection events observed on the event bus."},
	)
	provider.Registry().MustRegister(c)
	return c
}

func printResult(log enclavelog.Logger, result *enclavev1.ExecutionResult, execErr error, asJSON bool) {
	if result == nil {
		log.Warnf("Execution finished but no result was produced.")
		if execErr != nil {
			log.Errorf("Execution Error: %v", execErr)
		}
		return
	}

	if asJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Errorf("Failed to encode result as JSON: %v", err)
		} else {
			fmt.Println(string(out))
		}
		return
	}

	duration := result.Stats.Duration.Truncate(time.Millisecond)
	summaryLine := fmt.Sprintf("Duration: %v. ToolCalls=%d, Iterations=%d",
		duration, result.Stats.ToolCallCount, result.Stats.IterationCount)

	if result.Success {
		log.Infof("Run %s succeeded. %s", result.Stats.RunID, summaryLine)
		value, err := json.Marshal(result.Value)
		if err != nil {
			log.Warnf("Result value is not JSON-encodable: %v", err)
		} else {
			fmt.Println(string(value))
		}
		return
	}

	log.Errorf("Run %s failed. %s", result.Stats.RunID, summaryLine)
	if result.Error != nil {
		log.Errorf("Error [%s] %s: %s", result.Error.Code, result.Error.Name, result.Error.Message)
	}
}

func determineExitCode(result *enclavev1.ExecutionResult, execErr error, sig os.Signal, log enclavelog.Logger) int {
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) && sig != nil {
			switch sig {
			case syscall.SIGINT:
				log.Warnf("Script execution interrupted by signal: SIGINT")
				return ExitSigInt
			case syscall.SIGTERM:
				log.Warnf("Script execution terminated by signal: SIGTERM")
				return ExitSigTerm
			}
		}
		log.Errorf("Execution Error: %v", execErr)
		return ExitFailure
	}
	if result == nil {
		return ExitFailure
	}
	if result.Success {
		log.Infof("Script completed successfully.")
		return ExitSuccess
	}
	if result.Error != nil && result.Error.Code == enclaveerrors.CodeTimeout {
		log.Errorf("Script execution timed out.")
		return ExitTimeout
	}
	return ExitFailure
}
