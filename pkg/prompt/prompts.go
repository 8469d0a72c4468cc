package prompt

import (
	"github.com/pkg/errors"
)

// Template names, also used as keys for config overrides.
const (
	NameSystem         = "system"
	NameSummary        = "summary"
	NameSkills         = "skills"
	NameExperience     = "experience"
	NameJobDescription = "job_description"
)

// Set holds the prompt templates used for one run.
type Set struct {
	System         string
	Summary        string
	Skills         string
	Experience     string
	JobDescription string
}

// DefaultSet returns the built-in prompt templates.
func DefaultSet() (set Set) {
	set = Set{
		System:         systemTemplate,
		Summary:        summaryTemplate,
		Skills:         skillsTemplate,
		Experience:     experienceTemplate,
		JobDescription: jobDescriptionTemplate,
	}
	return set
}

// WithOverrides returns a copy of the set with any non-empty overrides applied.
func (s Set) WithOverrides(overrides map[string]string) (set Set, err error) {
	set = s
	for name, tmpl := range overrides {
		if tmpl == "" {
			continue
		}
		switch name {
		case NameSystem:
			set.System = tmpl
		case NameSummary:
			set.Summary = tmpl
		case NameSkills:
			set.Skills = tmpl
		case NameExperience:
			set.Experience = tmpl
		case NameJobDescription:
			set.JobDescription = tmpl
		default:
			err = errors.Errorf("unknown prompt template %q", name)
			return set, err
		}
	}

	return set, err
}

// Validate tokenizes every template and names the first malformed one.
func (s Set) Validate() (err error) {
	templates := []struct {
		name string
		text string
	}{
		{NameSystem, s.System},
		{NameSummary, s.Summary},
		{NameSkills, s.Skills},
		{NameExperience, s.Experience},
		{NameJobDescription, s.JobDescription},
	}

	for _, t := range templates {
		err = Validate(t.text)
		if err != nil {
			err = errors.Wrapf(err, "prompt template %q", t.name)
			return err
		}
	}

	return err
}

const systemTemplate = `You are an expert CV writer specializing in aligning CVs with job descriptions to highlight relevant skills and experiences.
Each request focuses on one CV section and includes only the relevant CV and job description details.
The target role is: {job.title}

Rules:
- Do not invent employers, dates, metrics, tools or skills the candidate does not mention.
- Prioritize the skills and achievements most relevant to the job, optimizing for ATS keywords where it reads naturally.
- "changes" lists what you changed and why, one short sentence each.
- "recommendations" lists up to three things the candidate could add or clarify that you could not do without inventing content.

Respond only with a JSON object, for example {{"result": ..., "changes": [...], "recommendations": [...]}}.`

const summaryTemplate = `Rewrite the CV summary for the job description below in 3-4 sentences. Avoid first person.

JOB DESCRIPTION:
  Job title: {job.title}
  Summary: {job.summary}
  Skills: {job.skills}
  ATS keywords: {job.atsKeywords}

CURRENT CV:
  Summary: {cv.summary}
  Skills: {cv.skills}
  Experience: {cv.experience}

Return the rewritten summary as a single string in "result".`

const skillsTemplate = `Revise the candidate's {skillType} skills for the job description below.
Keep only skills the candidate has, add relevant ones evidenced by the experience, and order them by relevance to the job skills and ATS keywords.

JOB DESCRIPTION:
  Skills: {job.skills}
  ATS keywords: {job.atsKeywords}

CURRENT CV:
  {skillType} skills: {cv.skills}
  Experience: {cv.experience}

Return the revised list of skills in "result".`

const experienceTemplate = `Optimize the responsibilities of one CV experience item for the job description below.
Do not extend a bullet with an outcome it does not already state.

JOB DESCRIPTION:
  Summary: {job.summary}
  Duties: {job.duties}
  Qualifications: {job.skills}
  ATS keywords: {job.atsKeywords}

CURRENT CV:
  Role: {entry.title} at {entry.company} ({entry.dates})
  Responsibilities: {entry.responsibilities}

Return the revised responsibilities, in order of relevance, in "result".`

const jobDescriptionTemplate = `Parse the job description below into the required JSON structure.
"title" is the job title, "summary" a two-sentence summary, "duties" the listed duties, "skills" the required skills and qualifications, and "atsKeywords" the terms an applicant tracking system would match on.

JOB DESCRIPTION:
{text}`
