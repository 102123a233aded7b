package relevance

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/models"
)

var urlPattern = regexp.MustCompile(`http\S+|www\.\S+`)

const codeFence = "```"

// Stage is one predicate of the relevance pipeline
type Stage interface {
	Name() string
	Keep(unit models.ContentUnit) bool
}

// Options configures the standard pipeline
type Options struct {
	AllowedTypes  []string
	MinLength     int
	Keywords      []string
	PromptMarkers []string
	MaxCodeFences int
}

// StageReport is the number of units a stage removed
type StageReport struct {
	Stage   string
	Removed int
}

// Pipeline applies stages in order; a unit survives iff every stage keeps it
type Pipeline struct {
	stages []Stage
}

// NewPipeline builds a pipeline from explicit stages
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Standard builds the type, length, keyword and structure stages, cheapest first
func Standard(opts Options) *Pipeline {
	return NewPipeline(
		ContentTypeStage{Allowed: opts.AllowedTypes},
		LengthStage{Min: opts.MinLength},
		KeywordStage{Keywords: opts.Keywords},
		StructureStage{Markers: opts.PromptMarkers, MaxCodeFences: opts.MaxCodeFences},
	)
}

// Apply runs the pipeline and returns survivors with a per-stage removal report
func (p *Pipeline) Apply(units []models.ContentUnit) ([]models.ContentUnit, []StageReport) {
	reports := make([]StageReport, 0, len(p.stages))
	current := units

	for _, stage := range p.stages {
		kept := make([]models.ContentUnit, 0, len(current))
		for _, u := range current {
			if stage.Keep(u) {
				kept = append(kept, u)
			}
		}

		removed := len(current) - len(kept)
		reports = append(reports, StageReport{Stage: stage.Name(), Removed: removed})
		logrus.Infof("Relevance stage %s removed %d of %d units", stage.Name(), removed, len(current))
		current = kept
	}

	logrus.Infof("Filtered down to %d units meeting all criteria", len(current))
	return current, reports
}

// ContentTypeStage keeps units whose content type is allow-listed
type ContentTypeStage struct {
	Allowed []string
}

func (ContentTypeStage) Name() string { return "content_type" }

func (s ContentTypeStage) Keep(u models.ContentUnit) bool {
	for _, t := range s.Allowed {
		if u.ContentType == t {
			return true
		}
	}
	return false
}

// LengthStage keeps units whose normalized text has at least Min characters
type LengthStage struct {
	Min int
}

func (LengthStage) Name() string { return "length" }

func (s LengthStage) Keep(u models.ContentUnit) bool {
	return utf8.RuneCountInString(NormalizeText(u.CombinedText)) >= s.Min
}

// KeywordStage keeps units whose raw text contains any keyword, case-insensitively
type KeywordStage struct {
	Keywords []string
}

func (KeywordStage) Name() string { return "keyword" }

func (s KeywordStage) Keep(u models.ContentUnit) bool {
	text := strings.ToLower(u.CombinedText)
	for _, k := range s.Keywords {
		if k != "" && strings.Contains(text, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// StructureStage rejects embedded prompts and code dumps
type StructureStage struct {
	Markers       []string
	MaxCodeFences int
}

func (StructureStage) Name() string { return "structure" }

func (s StructureStage) Keep(u models.ContentUnit) bool {
	text := strings.ToLower(u.CombinedText)
	for _, m := range s.Markers {
		if m != "" && strings.Contains(text, strings.ToLower(m)) {
			return false
		}
	}
	return strings.Count(u.CombinedText, codeFence) <= s.MaxCodeFences
}

// NormalizeText strips URLs and thread separators and collapses whitespace
func NormalizeText(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "---", "")
	return strings.Join(strings.Fields(text), " ")
}
