package config

const (
	defaultDataDir               = "~/.local/share/gamevault"
	defaultLogDir                = "~/.local/share/gamevault/logs"
	defaultAPIBind               = "127.0.0.1:7590"
	defaultCatalogBaseURL        = "https://api.igdb.com/v4"
	defaultCatalogTokenURL       = "https://id.twitch.tv/oauth2/token"
	defaultCatalogQPS            = 4.0
	defaultCatalogMaxConnections = 6
	defaultCatalogMaxBatchSize   = 500
	defaultCatalogFanOut         = 4
	defaultCatalogMaxRetries     = 4
	defaultInitialBackoffMillis  = 250
	defaultMaxBackoffMillis      = 8000
	defaultRequestTimeoutSeconds = 30
	defaultHighConfidence        = 0.85
	defaultMinGap                = 0.15
	defaultCandidateCount        = 5
	defaultSearchLimit           = 20
	defaultYearTolerance         = 1
	defaultSimilarityWeight      = 0.8
	defaultYearWeight            = 0.1
	defaultPlatformWeight        = 0.1
	defaultReconcileInterval     = 360
	defaultReconcileConcurrency  = 4
	defaultWebhookWorkers        = 4
	defaultWebhookQueueDepth     = 256
	defaultPopularityThreshold   = 10000
	defaultEarlyAccessThreshold  = 5000
	defaultNtfyTimeoutSeconds    = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Catalog maximum page size; larger values are rejected by the service.
const maxCatalogBatchSize = 500

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Catalog: Catalog{
			BaseURL:               defaultCatalogBaseURL,
			TokenURL:              defaultCatalogTokenURL,
			QPS:                   defaultCatalogQPS,
			MaxConnections:        defaultCatalogMaxConnections,
			MaxBatchSize:          defaultCatalogMaxBatchSize,
			FanOut:                defaultCatalogFanOut,
			MaxRetries:            defaultCatalogMaxRetries,
			InitialBackoffMillis:  defaultInitialBackoffMillis,
			MaxBackoffMillis:      defaultMaxBackoffMillis,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Resolver: Resolver{
			HighConfidence:   defaultHighConfidence,
			MinGap:           defaultMinGap,
			CandidateCount:   defaultCandidateCount,
			SearchLimit:      defaultSearchLimit,
			YearTolerance:    defaultYearTolerance,
			SimilarityWeight: defaultSimilarityWeight,
			YearWeight:       defaultYearWeight,
			PlatformWeight:   defaultPlatformWeight,
		},
		Reconcile: Reconcile{
			Enabled:         true,
			IntervalMinutes: defaultReconcileInterval,
			Concurrency:     defaultReconcileConcurrency,
		},
		Webhooks: Webhooks{
			Workers:              defaultWebhookWorkers,
			QueueDepth:           defaultWebhookQueueDepth,
			PopularityThreshold:  defaultPopularityThreshold,
			EarlyAccessThreshold: defaultEarlyAccessThreshold,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
