package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/nikogura/cv-tailor/pkg/jd"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//nolint:gochecknoglobals // Cobra boilerplate
var parseOutput string

//nolint:gochecknoglobals // Cobra boilerplate
var parseCmd = &cobra.Command{
	Use:   "parse <jd-file-or-url>",
	Short: "Extract a structured job description",
	Long: `Fetches a job posting and extracts its title, summary, duties, skills
and ATS keywords with one model request.

The result can be reviewed, edited and passed to 'cv-tailor generate --job'.

Example:
  cv-tailor parse https://example.com/jobs/123 -o acme.job.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "", "Write the job description to a YAML file instead of stdout")
}

func runParse(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, gateway, prompts, err := setupGateway()
	if err != nil {
		return err
	}

	var text string
	text, err = fetchAndLogJD(ctx, args[0])
	if err != nil {
		return err
	}

	var job jd.Description
	job, err = runParsePhase(ctx, gateway, prompts, text)
	if err != nil {
		return err
	}

	if parseOutput != "" {
		err = jd.Save(parseOutput, job)
		if err != nil {
			return err
		}
		fmt.Printf("Job description written to %s\n", parseOutput)
		return err
	}

	encoder := yaml.NewEncoder(os.Stdout)
	encoder.SetIndent(2)
	err = encoder.Encode(job)
	if err != nil {
		err = errors.Wrap(err, "failed to encode job description")
		return err
	}

	err = encoder.Close()
	return err
}
