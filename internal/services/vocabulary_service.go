package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/meetlens/meetlens/internal/cache"
	"github.com/meetlens/meetlens/internal/models"
	pgrepo "github.com/meetlens/meetlens/internal/repositories/postgres"
	"github.com/meetlens/meetlens/internal/utils"
)

const (
	vocabCacheTTL       = 5 * time.Minute
	contextWindowRunes  = 50
	maxPromptTerms      = 40
	confidenceThreshold = 0.3
)

// VocabularyService owns the organization vocabularies: CRUD, prompt
// building for the speech engine, and post-transcription substitution of
// known term variations.
type VocabularyService interface {
	Upsert(ctx context.Context, t *models.VocabularyTerm) error
	Delete(ctx context.Context, organizationID string, id uint) error
	List(ctx context.Context, organizationID string) ([]models.VocabularyTerm, error)

	BuildPromptVocabulary(ctx context.Context, organizationID, format string) (string, error)
	Enhance(ctx context.Context, organizationID, language, text string) (string, int, error)
	MatchRate(ctx context.Context, organizationID, text string) (float64, error)
}

type vocabularyService struct {
	terms pgrepo.VocabularyRepository
	cache cache.Cache
}

func NewVocabularyService(terms pgrepo.VocabularyRepository, c cache.Cache) VocabularyService {
	return &vocabularyService{terms: terms, cache: c}
}

func vocabCacheKey(organizationID string) string {
	return "vocab:" + organizationID
}

func (s *vocabularyService) Upsert(ctx context.Context, t *models.VocabularyTerm) error {
	const op = "VocabularyService.Upsert"

	if t == nil || t.OrganizationID == "" || strings.TrimSpace(t.Term) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "organization_id and term are required", nil)
	}
	t.Term = strings.TrimSpace(t.Term)
	if t.ConfidenceScore == 0 {
		t.ConfidenceScore = 0.5
	}
	t.UpdatedAt = time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}

	if err := s.terms.Upsert(ctx, t); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to upsert vocabulary term", err)
	}
	s.invalidate(ctx, t.OrganizationID)
	return nil
}

func (s *vocabularyService) Delete(ctx context.Context, organizationID string, id uint) error {
	const op = "VocabularyService.Delete"

	if err := s.terms.Delete(ctx, organizationID, id); err != nil {
		if err == utils.ErrNotFound {
			return utils.E(utils.CodeNotFound, op, "vocabulary term not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to delete vocabulary term", err)
	}
	s.invalidate(ctx, organizationID)
	return nil
}

func (s *vocabularyService) List(ctx context.Context, organizationID string) ([]models.VocabularyTerm, error) {
	const op = "VocabularyService.List"

	terms, err := s.load(ctx, organizationID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load vocabulary", err)
	}
	return terms, nil
}

// load returns the organization vocabulary, cache first, ranked by
// confidence*log(usage+1) descending with the term text breaking ties.
func (s *vocabularyService) load(ctx context.Context, organizationID string) ([]models.VocabularyTerm, error) {
	key := vocabCacheKey(organizationID)

	if s.cache != nil {
		var cached []models.VocabularyTerm
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	terms, err := s.terms.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(terms, func(i, j int) bool {
		ri := rankScore(&terms[i])
		rj := rankScore(&terms[j])
		if ri != rj {
			return ri > rj
		}
		return terms[i].Term < terms[j].Term
	})

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, terms, vocabCacheTTL)
	}
	return terms, nil
}

func (s *vocabularyService) invalidate(ctx context.Context, organizationID string) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, vocabCacheKey(organizationID))
	}
}

// rankScore orders terms by confidence weighted with usage. Unused terms
// all rank 0 and fall back to alphabetical order.
func rankScore(t *models.VocabularyTerm) float64 {
	return t.ConfidenceScore * math.Log(float64(t.UsageCount)+1)
}

// BuildPromptVocabulary renders the highest-ranked terms into the prompt
// shape the speech engine expects. Low-confidence terms are left out so a
// mislearned term cannot keep reinforcing itself.
func (s *vocabularyService) BuildPromptVocabulary(ctx context.Context, organizationID, format string) (string, error) {
	const op = "VocabularyService.BuildPromptVocabulary"

	terms, err := s.load(ctx, organizationID)
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to load vocabulary", err)
	}

	picked := make([]models.VocabularyTerm, 0, maxPromptTerms)
	for _, t := range terms {
		if t.ConfidenceScore < confidenceThreshold {
			continue
		}
		picked = append(picked, t)
		if len(picked) == maxPromptTerms {
			break
		}
	}
	if len(picked) == 0 {
		return "", nil
	}

	switch format {
	case "phrases":
		var b strings.Builder
		for i, t := range picked {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(t.Term)
			for _, v := range t.Variations {
				b.WriteString("\n")
				b.WriteString(v)
			}
		}
		return b.String(), nil
	default: // "whisper": one comma-separated glossary line
		names := make([]string, 0, len(picked))
		for _, t := range picked {
			names = append(names, t.Term)
		}
		return fmt.Sprintf("Glossary: %s.", strings.Join(names, ", ")), nil
	}
}

// Enhance replaces recognized variations with their canonical terms and
// returns the rewritten text plus the substitution count. Matching is
// whole-word and case-insensitive; the canonical form adopts the case shape
// of the matched text. Substitution never mutates the stored terms: usage
// and confidence move only when a reviewer confirms a correction.
func (s *vocabularyService) Enhance(ctx context.Context, organizationID, language, text string) (string, int, error) {
	const op = "VocabularyService.Enhance"

	if text == "" {
		return text, 0, nil
	}
	terms, err := s.load(ctx, organizationID)
	if err != nil {
		return "", 0, utils.E(utils.CodeInternal, op, "failed to load vocabulary", err)
	}

	total := 0
	for i := range terms {
		t := &terms[i]
		if t.ConfidenceScore < confidenceThreshold {
			continue
		}
		for _, variation := range t.Variations {
			if strings.EqualFold(variation, t.Term) {
				continue
			}
			var replaced int
			text, replaced = substituteTerm(text, variation, t.Term, t.ContextHints)
			total += replaced
		}
	}
	return text, total, nil
}

// MatchRate reports the share of vocabulary terms whose canonical form
// appears in the text. It only looks at terms, not variations: a variation
// hit means the engine got it wrong.
func (s *vocabularyService) MatchRate(ctx context.Context, organizationID, text string) (float64, error) {
	const op = "VocabularyService.MatchRate"

	terms, err := s.load(ctx, organizationID)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to load vocabulary", err)
	}
	if len(terms) == 0 {
		return 0, nil
	}

	matched := 0
	for i := range terms {
		if len(wholeWordMatches(text, terms[i].Term)) > 0 {
			matched++
		}
	}
	return float64(matched) / float64(len(terms)), nil
}

// substituteTerm rewrites every whole-word occurrence of variation into
// canonical. When context hints exist, an occurrence is only rewritten if
// one of the hints appears within the surrounding window.
func substituteTerm(text, variation, canonical string, hints []string) (string, int) {
	matches := wholeWordMatches(text, variation)
	if len(matches) == 0 {
		return text, 0
	}

	var b strings.Builder
	b.Grow(len(text))
	count := 0
	prev := 0
	for _, m := range matches {
		if len(hints) > 0 && !hintNearby(text, m[0], m[1]-m[0], hints) {
			continue
		}
		b.WriteString(text[prev:m[0]])
		b.WriteString(matchCaseShape(canonical, text[m[0]:m[1]]))
		prev = m[1]
		count++
	}
	b.WriteString(text[prev:])
	return b.String(), count
}

// wholeWordMatches returns the [start, end) byte spans of every
// case-insensitive whole-word occurrence of term. \b is ASCII-only in Go
// regexps and breaks on accented letters, so the word boundaries are
// checked as runes instead.
func wholeWordMatches(text, term string) [][]int {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(term))
	if err != nil {
		return nil
	}

	var out [][]int
	for _, m := range re.FindAllStringIndex(text, -1) {
		if isWordRune(text, m[0], true) || isWordRune(text, m[1], false) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// isWordRune reports whether the rune adjacent to position idx (before it
// when before is true, at it otherwise) is a letter or digit.
func isWordRune(text string, idx int, before bool) bool {
	var r rune
	if before {
		if idx == 0 {
			return false
		}
		r, _ = utf8.DecodeLastRuneInString(text[:idx])
	} else {
		if idx >= len(text) {
			return false
		}
		r, _ = utf8.DecodeRuneInString(text[idx:])
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// hintNearby reports whether any hint occurs within the context window
// around the match at [idx, idx+matchLen).
func hintNearby(text string, idx, matchLen int, hints []string) bool {
	lo := idx
	for n := 0; n < contextWindowRunes && lo > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:lo])
		lo -= size
	}
	hi := idx + matchLen
	for n := 0; n < contextWindowRunes && hi < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[hi:])
		hi += size
	}
	window := strings.ToLower(text[lo:hi])
	for _, h := range hints {
		if h != "" && strings.Contains(window, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

// matchCaseShape maps canonical onto the case shape of matched: all-caps
// stays all-caps, a leading capital is preserved, anything else keeps the
// canonical form as stored.
func matchCaseShape(canonical, matched string) string {
	if matched == strings.ToUpper(matched) && strings.IndexFunc(matched, unicode.IsLetter) >= 0 {
		return strings.ToUpper(canonical)
	}
	first, _ := utf8.DecodeRuneInString(matched)
	if unicode.IsUpper(first) {
		c, size := utf8.DecodeRuneInString(canonical)
		return string(unicode.ToUpper(c)) + canonical[size:]
	}
	return canonical
}
