package generator

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nikogura/cv-tailor/pkg/cv"
	"github.com/nikogura/cv-tailor/pkg/jd"
	"github.com/nikogura/cv-tailor/pkg/llm"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LogEntry records the outcome of one completed request.
type LogEntry struct {
	Changes         []string  `json:"changes" yaml:"changes"`
	Recommendations []string  `json:"recommendations" yaml:"recommendations"`
	Usage           llm.Usage `json:"usage" yaml:"usage"`
}

// NewLogEntry builds an entry that owns copies of its lists.
func NewLogEntry(changes, recommendations []string, usage llm.Usage) (entry LogEntry) {
	entry = LogEntry{
		Changes:         copyStrings(changes),
		Recommendations: copyStrings(recommendations),
		Usage:           usage,
	}
	return entry
}

// SkillsLog holds the entries of both skill categories.
type SkillsLog struct {
	Technical    LogEntry `json:"technical" yaml:"technical"`
	NonTechnical LogEntry `json:"nonTechnical" yaml:"nonTechnical"`
}

// Ledger is the usage and change log of one run. Its layout mirrors the
// document: one slot per generated section.
type Ledger struct {
	RunID          string         `json:"runId" yaml:"runId"`
	StartedAt      time.Time      `json:"startedAt" yaml:"startedAt"`
	Provider       string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model          string         `json:"model,omitempty" yaml:"model,omitempty"`
	JobDescription jd.Description `json:"jobDescription" yaml:"jobDescription"`
	Summary        LogEntry       `json:"summary" yaml:"summary"`
	Skills         SkillsLog      `json:"skills" yaml:"skills"`
	Experience     []LogEntry     `json:"experience" yaml:"experience"`
}

// SectionLog pairs a slot with its section name.
type SectionLog struct {
	Section string
	Entry   LogEntry
}

// NewLedger returns a ledger with a zero entry in every slot the base
// document can produce.
func NewLedger(base cv.Document, job jd.Description) (ledger Ledger) {
	ledger = Ledger{
		RunID:          uuid.NewString(),
		StartedAt:      time.Now().UTC(),
		JobDescription: job.Clone(),
		Summary:        NewLogEntry(nil, nil, llm.Usage{}),
		Skills: SkillsLog{
			Technical:    NewLogEntry(nil, nil, llm.Usage{}),
			NonTechnical: NewLogEntry(nil, nil, llm.Usage{}),
		},
		Experience: make([]LogEntry, len(base.Experience)),
	}

	for i := range ledger.Experience {
		ledger.Experience[i] = NewLogEntry(nil, nil, llm.Usage{})
	}

	return ledger
}

// Sections lists every slot in document order.
func (l Ledger) Sections() (sections []SectionLog) {
	sections = make([]SectionLog, 0, 3+len(l.Experience))
	sections = append(sections,
		SectionLog{Section: SectionSummary, Entry: l.Summary},
		SectionLog{Section: SectionTechnical, Entry: l.Skills.Technical},
		SectionLog{Section: SectionNonTechnical, Entry: l.Skills.NonTechnical},
	)

	for i, entry := range l.Experience {
		sections = append(sections, SectionLog{Section: ExperienceSection(i), Entry: entry})
	}

	return sections
}

// Total sums usage over every slot.
func (l Ledger) Total() (total llm.Usage) {
	for _, section := range l.Sections() {
		total = total.Add(section.Entry.Usage)
	}
	return total
}

// Clone returns a deep copy.
func (l Ledger) Clone() (clone Ledger) {
	clone = l
	clone.JobDescription = l.JobDescription.Clone()
	clone.Summary = l.Summary.clone()
	clone.Skills = SkillsLog{
		Technical:    l.Skills.Technical.clone(),
		NonTechnical: l.Skills.NonTechnical.clone(),
	}

	if l.Experience != nil {
		clone.Experience = make([]LogEntry, len(l.Experience))
		for i, entry := range l.Experience {
			clone.Experience[i] = entry.clone()
		}
	}

	return clone
}

func (e LogEntry) clone() (clone LogEntry) {
	clone = NewLogEntry(e.Changes, e.Recommendations, e.Usage)
	return clone
}

// SaveLedger writes a ledger as YAML.
func SaveLedger(path string, ledger Ledger) (err error) {
	var data []byte
	data, err = yaml.Marshal(ledger)
	if err != nil {
		err = errors.Wrap(err, "failed to encode ledger")
		return err
	}

	err = os.WriteFile(path, data, 0600)
	if err != nil {
		err = errors.Wrapf(err, "failed to write ledger: %s", path)
		return err
	}

	return err
}

// LoadLedger reads a ledger written by SaveLedger.
func LoadLedger(path string) (ledger Ledger, err error) {
	var data []byte
	data, err = os.ReadFile(path)
	if err != nil {
		err = errors.Wrapf(err, "failed to read ledger: %s", path)
		return ledger, err
	}

	err = yaml.Unmarshal(data, &ledger)
	if err != nil {
		err = errors.Wrapf(err, "failed to parse ledger: %s", path)
		return ledger, err
	}

	if ledger.RunID == "" {
		err = errors.Errorf("not a ledger (no run id): %s", path)
		return ledger, err
	}

	return ledger, err
}

func copyStrings(in []string) (out []string) {
	out = make([]string, len(in))
	copy(out, in)
	return out
}
