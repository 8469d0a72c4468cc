package cmd

import (
	"fmt"

	"github.com/nikogura/cv-tailor/pkg/cv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var validateCmd = &cobra.Command{
	Use:   "validate <cv.yaml>",
	Short: "Check that a CV file is complete",
	Long: `Loads a YAML CV and reports every missing or malformed field.

Example:
  cv-tailor validate ~/.cv-tailor/cv.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) (err error) {
	var doc cv.Document
	doc, err = cv.LoadPartial(args[0])
	if err != nil {
		return err
	}

	err = doc.Validate()
	if err != nil {
		err = errors.Wrapf(err, "%s is not a valid CV", args[0])
		return err
	}

	fmt.Printf("✓ %s is valid (%d experience entries, %d technical skills)\n",
		args[0], len(doc.Experience), len(doc.Skills.Technical))
	return err
}
