// Package medlink provides an embeddable clinic-site integration agent.
//
// Medlink watches a drop folder for HL7 v2.x files written by a practice
// management system, forwards the parsed records to the MedLink cloud API,
// and writes pending billing exports back to disk as HL7 files. It can be
// used as a standalone CLI application or embedded as a library in other
// Go programs.
//
// # Basic Usage
//
// To embed medlink in your application:
//
//	cfg := medlink.Config{
//	    WatchDir: `C:\HL7\outbox`,
//	    APIURL:   "https://api.medlink.example.com",
//	    APIKey:   "your-api-key",
//	    ClinicID: "north-01",
//	}
//
//	agent, err := medlink.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	if err := agent.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// ... run until shutdown signal ...
//
//	if err := agent.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// # Configuration
//
// Create a [Config] with at minimum WatchDir, APIURL, APIKey, and ClinicID.
// All other fields have sensible defaults set via [Config.SetDefaults].
//
// # Event Handling
//
// To receive notifications about agent operations, implement [EventHandler]
// and pass it via [WithEventHandler]:
//
//	handler := &myEventHandler{}
//	agent, err := medlink.New(cfg, medlink.WithEventHandler(handler))
//
// Events are called synchronously from the agent's goroutines.
// Implementations should return quickly to avoid blocking sync.
//
// # Dependency Injection
//
// For testing, you can inject custom implementations of external dependencies:
//
//	agent, err := medlink.New(cfg,
//	    medlink.WithHTTPClient(mockClient),
//	    medlink.WithLogger(customLogger),
//	)
//
// # Lifecycle States
//
// A Medlink instance can be in one of six states: [StateStopped],
// [StateStarting], [StateRunning], [StatePaused], [StateStopping], or
// [StateCrashed]. Use [Medlink.Status] to query the current state and
// [Medlink.Pause] / [Medlink.Resume] to suspend hand-off without stopping.
package medlink
