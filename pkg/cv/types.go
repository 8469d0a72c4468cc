package cv

// Document is a complete CV.
type Document struct {
	Header       Header        `json:"header" yaml:"header"`
	Summary      string        `json:"summary" yaml:"summary"`
	Skills       Skills        `json:"skills" yaml:"skills"`
	Experience   []Job         `json:"experience" yaml:"experience" validate:"required,dive"`
	Education    []Education   `json:"education" yaml:"education" validate:"required,dive"`
	Certificates []Certificate `json:"certificates" yaml:"certificates" validate:"required,dive"`
	Languages    []Language    `json:"languages" yaml:"languages" validate:"required,dive"`
}

// Header identifies the candidate.
type Header struct {
	Name    string  `json:"name" yaml:"name" validate:"required"`
	Title   string  `json:"title" yaml:"title" validate:"required"`
	Contact Contact `json:"contact" yaml:"contact"`
}

// Contact holds contact details.
type Contact struct {
	Email    string `json:"email" yaml:"email" validate:"required,email"`
	Website  string `json:"website,omitempty" yaml:"website,omitempty" validate:"omitempty,url"`
	LinkedIn string `json:"linkedin,omitempty" yaml:"linkedin,omitempty" validate:"omitempty,url"`
	Phone    string `json:"phone,omitempty" yaml:"phone,omitempty"`
}

// Skills groups skills by category. Either list may be absent.
type Skills struct {
	Technical    []string `json:"technical,omitempty" yaml:"technical,omitempty"`
	NonTechnical []string `json:"nonTechnical,omitempty" yaml:"nonTechnical,omitempty"`
}

// Job is one experience entry.
type Job struct {
	Title            string   `json:"title" yaml:"title" validate:"required"`
	Company          string   `json:"company" yaml:"company" validate:"required"`
	Location         string   `json:"location" yaml:"location" validate:"required"`
	Dates            string   `json:"dates" yaml:"dates" validate:"required"`
	Responsibilities []string `json:"responsibilities" yaml:"responsibilities" validate:"required"`
}

// Education is one education entry.
type Education struct {
	Degree      string `json:"degree" yaml:"degree" validate:"required"`
	Institution string `json:"institution" yaml:"institution" validate:"required"`
	Location    string `json:"location" yaml:"location"`
	Dates       string `json:"dates" yaml:"dates"`
}

// Certificate is one certification.
type Certificate struct {
	Title  string `json:"title" yaml:"title" validate:"required"`
	Issuer string `json:"issuer" yaml:"issuer" validate:"required"`
	Link   string `json:"link,omitempty" yaml:"link,omitempty" validate:"omitempty,url"`
}

// Language is one spoken language.
type Language struct {
	Language    string `json:"language" yaml:"language" validate:"required"`
	Proficiency string `json:"proficiency" yaml:"proficiency" validate:"required"`
	Rating      int    `json:"rating,omitempty" yaml:"rating,omitempty" validate:"omitempty,min=1,max=5"`
}

// SkillCategory names one of the two skill lists.
type SkillCategory string

const (
	// Technical selects Skills.Technical.
	Technical SkillCategory = "technical"
	// NonTechnical selects Skills.NonTechnical.
	NonTechnical SkillCategory = "nonTechnical"
)

// Categories lists skill categories in generation order.
func Categories() (categories []SkillCategory) {
	categories = []SkillCategory{Technical, NonTechnical}
	return categories
}

// Get returns the list for a category.
func (s Skills) Get(category SkillCategory) (skills []string) {
	switch category {
	case Technical:
		skills = s.Technical
	case NonTechnical:
		skills = s.NonTechnical
	}
	return skills
}

// Set replaces the list for a category.
func (s *Skills) Set(category SkillCategory, skills []string) {
	switch category {
	case Technical:
		s.Technical = skills
	case NonTechnical:
		s.NonTechnical = skills
	}
}

// Valid reports whether the category is known.
func (c SkillCategory) Valid() (ok bool) {
	ok = c == Technical || c == NonTechnical
	return ok
}
