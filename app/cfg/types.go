package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Source configuration
	FeedsDir    string
	FixturesDir string

	// HTTP server configuration
	Port         string
	BaseUrl      string
	IngestSecret string

	// Ingestion configuration
	WorkerCount       int
	SchedulerInterval int
	BackfillDays      int
	MaxPerSource      int
	ExtractTimeout    int

	// One-shot modes
	Once           bool
	BackfillTarget int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
