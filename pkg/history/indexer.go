package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nikogura/cv-tailor/pkg/generator"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Indexer indexes ledger files under an output directory.
type Indexer struct {
	outputPath string // e.g. ~/Documents/CVs
	indexPath  string // e.g. ~/Documents/CVs/.usage-index.json
	logger     *logrus.Logger
}

// NewIndexer creates a new indexer instance.
func NewIndexer(outputPath string, logger *logrus.Logger) (indexer *Indexer, err error) {
	if outputPath == "" {
		err = errors.New("output path is required")
		return indexer, err
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	indexer = &Indexer{
		outputPath: outputPath,
		indexPath:  filepath.Join(outputPath, IndexFileName),
		logger:     logger,
	}

	return indexer, err
}

// IndexPath returns where the index is written.
func (idx *Indexer) IndexPath() (path string) {
	path = idx.indexPath
	return path
}

// Index scans all ledger files, writes the index and returns it. Unreadable
// ledgers are skipped.
func (idx *Indexer) Index(ctx context.Context) (index UsageIndex, err error) {
	runs := []IndexedRun{}

	walkErr := filepath.WalkDir(idx.outputPath, func(path string, entry os.DirEntry, walkErr error) (walkFuncErr error) {
		if walkErr != nil {
			walkFuncErr = walkErr
			return walkFuncErr
		}

		walkFuncErr = ctx.Err()
		if walkFuncErr != nil {
			return walkFuncErr
		}

		if entry.IsDir() || !strings.HasSuffix(entry.Name(), LedgerSuffix) {
			return walkFuncErr
		}

		ledger, loadErr := generator.LoadLedger(path)
		if loadErr != nil {
			idx.logger.WithError(loadErr).WithField("path", path).Warn("skipping unreadable ledger")
			return walkFuncErr
		}

		runs = append(runs, indexRun(ledger, path))
		return walkFuncErr
	})

	if walkErr != nil {
		err = errors.Wrap(walkErr, "failed to walk output directory")
		return index, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})

	index = UsageIndex{
		Runs:      runs,
		UpdatedAt: time.Now(),
		Version:   IndexVersion,
	}

	err = idx.writeIndex(index)
	if err != nil {
		err = errors.Wrap(err, "failed to write index")
		return index, err
	}

	return index, err
}

func indexRun(ledger generator.Ledger, path string) (run IndexedRun) {
	sections := ledger.Sections()

	run = IndexedRun{
		RunID:           ledger.RunID,
		JobTitle:        ledger.JobDescription.Title,
		Provider:        ledger.Provider,
		Model:           ledger.Model,
		StartedAt:       ledger.StartedAt,
		Usage:           ledger.Total(),
		Recommendations: []string{},
		Path:            path,
	}

	for _, section := range sections {
		if section.Entry.Usage.TotalTokens > 0 {
			run.Sections++
		}
		run.Recommendations = append(run.Recommendations, section.Entry.Recommendations...)
	}

	return run
}

func (idx *Indexer) writeIndex(index UsageIndex) (err error) {
	var data []byte
	data, err = json.MarshalIndent(index, "", "  ")
	if err != nil {
		err = errors.Wrap(err, "failed to marshal index")
		return err
	}

	err = os.WriteFile(idx.indexPath, data, 0600)
	if err != nil {
		err = errors.Wrap(err, "failed to write index file")
		return err
	}

	return err
}

// LoadIndex loads the existing index from disk. A missing index is empty.
func (idx *Indexer) LoadIndex() (index UsageIndex, err error) {
	var data []byte
	data, err = os.ReadFile(idx.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			index = UsageIndex{
				Runs:      []IndexedRun{},
				UpdatedAt: time.Now(),
				Version:   IndexVersion,
			}
			err = nil
			return index, err
		}
		err = errors.Wrap(err, "failed to read index file")
		return index, err
	}

	err = json.Unmarshal(data, &index)
	if err != nil {
		err = errors.Wrap(err, "failed to parse index JSON")
		return index, err
	}

	return index, err
}
