package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nikogura/cv-tailor/pkg/config"
	"github.com/nikogura/cv-tailor/pkg/cv"
	"github.com/nikogura/cv-tailor/pkg/generator"
	"github.com/nikogura/cv-tailor/pkg/history"
	"github.com/nikogura/cv-tailor/pkg/jd"
	"github.com/nikogura/cv-tailor/pkg/llm"
	"github.com/nikogura/cv-tailor/pkg/prompt"
	"github.com/nikogura/cv-tailor/pkg/report"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var baseCVPath string

//nolint:gochecknoglobals // Cobra boilerplate
var jobFile string

//nolint:gochecknoglobals // Cobra boilerplate
var outputDir string

//nolint:gochecknoglobals // Cobra boilerplate
var outputName string

//nolint:gochecknoglobals // Cobra boilerplate
var sequential bool

//nolint:gochecknoglobals // Cobra boilerplate
var concurrency int

//nolint:gochecknoglobals // Cobra boilerplate
var reportFormat string

//nolint:gochecknoglobals // Cobra boilerplate
var skipIndex bool

//nolint:gochecknoglobals // Cobra boilerplate
var generateCmd = &cobra.Command{
	Use:   "generate [jd-file-or-url]",
	Short: "Generate a CV tailored to a job description",
	Long: `Generate a tailored CV from your base CV and a job description.

The job description can be provided as:
- A file path (e.g., jd.txt or a saved job page jd.html)
- A URL (e.g., https://example.com/jobs/123)
- "-" to read the posting from stdin
- A job description already parsed with 'cv-tailor parse' (--job)

The summary, both skill categories and every experience entry are revised
in parallel, one request each. Writes <name>.yaml, <name>.ledger.yaml and
<name>.job.yaml to the output directory.

Example:
  cv-tailor generate jd.txt
  cv-tailor generate https://example.com/jobs/123 --name acme-sre
  cv-tailor generate --job acme.job.yaml --sequential --report-format markdown`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&baseCVPath, "cv", "", "Base CV (default from config)")
	generateCmd.Flags().StringVar(&jobFile, "job", "", "Parsed job description YAML (skips parsing)")
	generateCmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory (default from config)")
	generateCmd.Flags().StringVar(&outputName, "name", "", "Output file name (default derived from the job title)")
	generateCmd.Flags().BoolVar(&sequential, "sequential", false, "Generate sections one after another")
	generateCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum parallel experience requests (default from config, 0 for unlimited)")
	generateCmd.Flags().StringVar(&reportFormat, "report-format", string(report.Text), "Report format: text or markdown (markdown is also written to <name>.report.md)")
	generateCmd.Flags().BoolVar(&skipIndex, "skip-index", false, "Do not update the usage index")
}

func runGenerate(cmd *cobra.Command, args []string) (err error) {
	if jobFile == "" && len(args) == 0 {
		err = errors.New("a job description file, URL or --job is required")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var cfg config.Config
	var gateway llm.Gateway
	var prompts prompt.Set
	cfg, gateway, prompts, err = setupGateway()
	if err != nil {
		return err
	}

	var base cv.Document
	base, err = loadBaseCV(cfg)
	if err != nil {
		return err
	}

	var job jd.Description
	job, err = resolveJob(ctx, gateway, prompts, args)
	if err != nil {
		return err
	}

	var gen *generator.Generator
	gen, err = generator.New(gateway, base, job, generatorOptions(cfg, prompts)...)
	if err != nil {
		err = errors.Wrap(err, "failed to prepare generation")
		return err
	}

	baseOutDir := getBaseOutputDir(cfg)
	paths := buildOutputPaths(baseOutDir, outputName, job)

	err = generateAndWrite(ctx, gen, paths, job)
	if err != nil {
		return err
	}

	rep := report.Build(gen.Base(), gen.Working(), gen.Ledger())
	err = printReport(rep, paths)
	if err != nil {
		return err
	}

	if !skipIndex {
		updateIndex(ctx, baseOutDir)
	}

	fmt.Println("\nFiles written:")
	fmt.Printf("  CV:     %s\n", paths.cv)
	fmt.Printf("  Ledger: %s\n", paths.ledger)
	fmt.Printf("  Job:    %s\n", paths.job)

	return err
}

// setupGateway loads the config and builds the completion gateway.
func setupGateway() (cfg config.Config, gateway llm.Gateway, prompts prompt.Set, err error) {
	cfg, err = config.Load(getConfigFile())
	if err != nil {
		err = errors.Wrap(err, "failed to load config")
		return cfg, gateway, prompts, err
	}

	prompts, err = cfg.PromptSet()
	if err != nil {
		return cfg, gateway, prompts, err
	}

	gateway, err = llm.NewGateway(cfg.GatewayOptions())
	if err != nil {
		err = errors.Wrap(err, "failed to create completion gateway")
		return cfg, gateway, prompts, err
	}

	if getVerbose() {
		fmt.Printf("Using %s (%s)\n", cfg.Provider, modelName(cfg))
	}

	return cfg, gateway, prompts, err
}

func loadBaseCV(cfg config.Config) (base cv.Document, err error) {
	path := baseCVPath
	if path == "" {
		path = cfg.BaseCVLocation
	}
	if path == "" {
		err = errors.New("no base CV given (use --cv or set base_cv_location in config)")
		return base, err
	}

	if getVerbose() {
		fmt.Printf("Loading base CV from: %s\n", path)
	}

	base, err = cv.Load(path)
	if err != nil {
		err = errors.Wrap(err, "failed to load base CV")
		return base, err
	}

	if getVerbose() {
		fmt.Printf("Loaded CV with %d experience entries\n", len(base.Experience))
	}

	return base, err
}

// resolveJob loads a parsed job description or fetches and parses one.
func resolveJob(ctx context.Context, gateway llm.Gateway, prompts prompt.Set, args []string) (job jd.Description, err error) {
	if jobFile != "" {
		job, err = jd.Load(jobFile)
		if err != nil {
			return job, err
		}
		job = job.Normalized()
		return job, err
	}

	var text string
	text, err = fetchAndLogJD(ctx, args[0])
	if err != nil {
		return job, err
	}

	job, err = runParsePhase(ctx, gateway, prompts, text)
	return job, err
}

func runParsePhase(ctx context.Context, gateway llm.Gateway, prompts prompt.Set, text string) (job jd.Description, err error) {
	var parseSpinner *spinner
	if !getVerbose() {
		parseSpinner = newSpinner("Parsing job description...")
		parseSpinner.start()
	} else {
		fmt.Println("Parsing job description...")
	}

	var usage llm.Usage
	job, usage, err = jd.Parse(ctx, gateway, prompts, text)

	if parseSpinner != nil {
		parseSpinner.stopSpinner()
	}

	if err != nil {
		return job, err
	}

	fmt.Printf("✓ Job description parsed (%d tokens)\n", usage.TotalTokens)
	logParseResults(job)

	return job, err
}

func logParseResults(job jd.Description) {
	if !getVerbose() {
		return
	}

	fmt.Printf("Role: %s\n", job.Title)
	fmt.Printf("Key skills:\n")
	for _, skill := range job.Skills {
		fmt.Printf("  - %s\n", skill)
	}
	if len(job.ATSKeywords) > 0 {
		fmt.Printf("ATS keywords: %s\n", strings.Join(job.ATSKeywords, ", "))
	}
}

func generatorOptions(cfg config.Config, prompts prompt.Set) (opts []generator.Option) {
	limit := cfg.Concurrency
	if concurrency > 0 {
		limit = concurrency
	}

	opts = []generator.Option{
		generator.WithPrompts(prompts),
		generator.WithConcurrency(limit),
		generator.WithLogger(logrus.StandardLogger()),
		generator.WithProvider(cfg.Provider, modelName(cfg)),
	}

	if sequential {
		opts = append(opts, generator.WithSequential())
	}

	return opts
}

func runGenerationPhase(ctx context.Context, gen *generator.Generator) (err error) {
	var genSpinner *spinner
	if !getVerbose() {
		genSpinner = newSpinner("Tailoring CV sections...")
		genSpinner.start()
	} else {
		fmt.Println("Tailoring CV sections...")
	}

	start := time.Now()
	err = gen.GenerateAll(ctx)

	if genSpinner != nil {
		genSpinner.stopSpinner()
	}

	if err != nil {
		err = errors.Wrap(err, "generation failed")
		return err
	}

	fmt.Printf("✓ CV tailored in %s\n", time.Since(start).Round(time.Second))
	return err
}

// generateAndWrite runs every section and writes the results. A failed run
// writes only its ledger.
func generateAndWrite(ctx context.Context, gen *generator.Generator, paths outputPaths, job jd.Description) (err error) {
	err = runGenerationPhase(ctx, gen)
	if err != nil {
		writePartialLedger(paths, gen.Ledger())
		return err
	}

	err = writeOutputs(paths, gen.Working(), gen.Ledger(), job)
	return err
}

// outputPaths are the files written by one run.
type outputPaths struct {
	cv     string
	ledger string
	job    string
	report string
}

func buildOutputPaths(outDir, name string, job jd.Description) (paths outputPaths) {
	base := sanitizeFilename(name)
	if base == "" {
		base = sanitizeFilename(job.Title)
	}
	if base == "" {
		base = "cv-" + time.Now().Format("20060102-150405")
	}

	prefix := filepath.Join(outDir, base)
	paths = outputPaths{
		cv:     prefix + ".yaml",
		ledger: prefix + history.LedgerSuffix,
		job:    prefix + ".job.yaml",
		report: prefix + ".report.md",
	}
	return paths
}

func writeOutputs(paths outputPaths, working cv.Document, ledger generator.Ledger, job jd.Description) (err error) {
	dir := filepath.Dir(paths.cv)
	err = os.MkdirAll(dir, 0750)
	if err != nil {
		err = errors.Wrapf(err, "failed to create output directory: %s", dir)
		return err
	}

	err = cv.Save(paths.cv, working)
	if err != nil {
		return err
	}

	err = generator.SaveLedger(paths.ledger, ledger)
	if err != nil {
		return err
	}

	err = jd.Save(paths.job, job)
	if err != nil {
		return err
	}

	return err
}

// writePartialLedger keeps the usage of a failed run. Failures are only logged.
func writePartialLedger(paths outputPaths, ledger generator.Ledger) {
	err := os.MkdirAll(filepath.Dir(paths.ledger), 0750)
	if err == nil {
		err = generator.SaveLedger(paths.ledger, ledger)
	}
	if err != nil {
		logrus.WithError(err).Warn("failed to write partial ledger")
		return
	}

	fmt.Printf("Partial ledger written to %s\n", paths.ledger)
}

func printReport(rep report.Report, paths outputPaths) (err error) {
	format := report.Format(reportFormat)

	switch format {
	case report.Markdown:
		err = rep.WriteFile(paths.report, format)
		if err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", paths.report)
		err = rep.Write(os.Stdout, report.Text)
	case report.Text, "":
		fmt.Println()
		err = rep.Write(os.Stdout, report.Text)
	default:
		err = errors.Errorf("unknown report format %q (expected text or markdown)", reportFormat)
	}

	return err
}

// updateIndex refreshes the usage index. Failures are only logged.
func updateIndex(ctx context.Context, outDir string) {
	indexer, err := history.NewIndexer(outDir, logrus.StandardLogger())
	if err != nil {
		logrus.WithError(err).Warn("failed to update usage index")
		return
	}

	_, err = indexer.Index(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to update usage index")
		return
	}

	if getVerbose() {
		fmt.Printf("✓ Usage index updated: %s\n", indexer.IndexPath())
	}
}

func fetchAndLogJD(ctx context.Context, jdInput string) (jobDescription string, err error) {
	if jdInput == "-" {
		jobDescription, err = readJDFromStdin()
		return jobDescription, err
	}

	if getVerbose() {
		fmt.Printf("Loading job description from: %s\n", jdInput)
	}

	jobDescription, err = jd.Fetch(ctx, jdInput)
	if err != nil {
		// If fetching failed, offer to accept manual input
		fmt.Printf("\nWarning: Failed to fetch job description: %v\n", err)
		fmt.Println("This often happens with JavaScript-rendered pages (Lever, Workable, etc.)")
		fmt.Println("\nPlease paste the job description text below.")
		fmt.Println("When finished, press Ctrl+D (Unix/Mac) or Ctrl+Z then Enter (Windows):")
		fmt.Println()

		jobDescription, err = readJDFromStdin()
		return jobDescription, err
	}

	if getVerbose() {
		fmt.Printf("Job description loaded (%d characters)\n", len(jobDescription))
	}

	return jobDescription, err
}

func readJDFromStdin() (jobDescription string, err error) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if scanner.Err() != nil {
		err = errors.Wrap(scanner.Err(), "failed to read job description from stdin")
		return jobDescription, err
	}

	jobDescription = strings.TrimSpace(strings.Join(lines, "\n"))
	if jobDescription == "" {
		err = errors.New("no job description provided")
		return jobDescription, err
	}

	fmt.Printf("\nJob description received (%d characters)\n", len(jobDescription))
	return jobDescription, err
}

// getBaseOutputDir returns the base output directory from flag or config.
func getBaseOutputDir(cfg config.Config) (baseOutDir string) {
	baseOutDir = outputDir
	if baseOutDir == "" {
		baseOutDir = cfg.Defaults.OutputDir
	}
	return baseOutDir
}

func modelName(cfg config.Config) (model string) {
	model = cfg.Model
	if model == "" {
		model = llm.DefaultModel(cfg.Provider)
	}
	return model
}

func sanitizeFilename(name string) (sanitized string) {
	sanitized = strings.ToLower(strings.TrimSpace(name))

	// Replace spaces and special chars with hyphens
	sanitized = strings.Map(func(r rune) (result rune) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			result = r
			return result
		}
		result = '-'
		return result
	}, sanitized)

	// Remove consecutive hyphens
	for strings.Contains(sanitized, "--") {
		sanitized = strings.ReplaceAll(sanitized, "--", "-")
	}

	sanitized = strings.Trim(sanitized, "-")

	return sanitized
}

// spinner provides a simple text-based progress indicator.
type spinner struct {
	message string
	stop    chan bool
	done    chan bool
	mu      sync.Mutex
	active  bool
}

func newSpinner(message string) (s *spinner) {
	s = &spinner{
		message: message,
		stop:    make(chan bool),
		done:    make(chan bool),
	}
	return s
}

func (s *spinner) start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	go func() {
		chars := []string{"|", "/", "-", "\\"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		fmt.Printf("%s ", s.message)
		for {
			select {
			case <-s.stop:
				fmt.Printf("\r%s\r", strings.Repeat(" ", len(s.message)+2))
				s.done <- true
				return
			case <-ticker.C:
				fmt.Printf("\r%s %s", s.message, chars[i%len(chars)])
				i++
			}
		}
	}()
}

func (s *spinner) stopSpinner() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.stop <- true
	<-s.done

	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}
