package cmd

import (
	"fmt"
	"os"

	"github.com/nikogura/cv-tailor/pkg/cv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var mergeOutput string

//nolint:gochecknoglobals // Cobra boilerplate
var mergeCmd = &cobra.Command{
	Use:   "merge <base.yaml> <version.yaml>",
	Short: "Overlay a CV version on a base CV",
	Long: `Replaces every section present in the version file with the version's
content and keeps the rest of the base CV. The result is validated.

Example:
  cv-tailor merge cv.yaml tailored/acme-sre.yaml -o acme-full.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "Write the merged CV to a file instead of stdout")
}

func runMerge(cmd *cobra.Command, args []string) (err error) {
	var base cv.Document
	base, err = cv.LoadPartial(args[0])
	if err != nil {
		return err
	}

	var version cv.Document
	version, err = cv.LoadPartial(args[1])
	if err != nil {
		return err
	}

	merged := cv.Merge(base, version)

	err = merged.Validate()
	if err != nil {
		err = errors.Wrap(err, "merged CV is invalid")
		return err
	}

	if mergeOutput != "" {
		err = cv.Save(mergeOutput, merged)
		if err != nil {
			return err
		}
		fmt.Printf("Merged CV written to %s\n", mergeOutput)
		return err
	}

	var data []byte
	data, err = cv.Marshal(merged)
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(data)
	if err != nil {
		err = errors.Wrap(err, "failed to write merged CV")
		return err
	}

	return err
}
