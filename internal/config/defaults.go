package config

const (
	defaultOutputDir          = "~/.local/share/sieve/output"
	defaultStagingDir         = "~/.local/share/sieve/staging"
	defaultLogDir             = "~/.local/share/sieve/logs"
	defaultManifestAlgorithm  = "md5"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultValidationWorkers  = 1
	defaultToolWorkers        = 1
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
)

var (
	defaultArchiveSuffixes   = []string{".raw.tar.gz", ".tar.gz", ".tgz", ".tar.zst", ".tar.lz4", ".tar"}
	defaultManifestSuffixes  = []string{".md5", ".md5sum", "md5sums.txt", ".sha256"}
	defaultBulkSuffixes      = []string{".subreads.bam", ".subreads.bam.pbi", ".subreadset.xml"}
	defaultTransientSuffixes = []string{".transferdone", ".tmp", ".part", ".lock"}
	defaultRequiredSuffixes  = []string{".run.metadata.xml", ".metadata.xml", ".sts.xml"}
	defaultPublishSuffixes   = []string{".xml"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:  defaultOutputDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Input: Input{
			ArchiveSuffixes: cloneStrings(defaultArchiveSuffixes),
		},
		Manifest: Manifest{
			Algorithm: defaultManifestAlgorithm,
			Suffixes:  cloneStrings(defaultManifestSuffixes),
		},
		Archive: Archive{
			BulkSuffixes:      cloneStrings(defaultBulkSuffixes),
			TransientSuffixes: cloneStrings(defaultTransientSuffixes),
			RequiredSuffixes:  cloneStrings(defaultRequiredSuffixes),
			PublishSuffixes:   cloneStrings(defaultPublishSuffixes),
		},
		Workflow: Workflow{
			ValidationWorkers:  defaultValidationWorkers,
			ToolWorkers:        defaultToolWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func cloneStrings(values []string) []string {
	cp := make([]string, len(values))
	copy(cp, values)
	return cp
}
