package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/BTreeMap/precare/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Phone digit bounds, counted after stripping non-digits.
const (
	// MinPhoneDigits is the shortest accepted phone number. The positional
	// extraction strategies also use it as the "phone-shaped" threshold, so any
	// number they find is long enough to validate.
	MinPhoneDigits = 8
	// MaxPhoneDigits is the E.164 maximum.
	MaxPhoneDigits = 15
	// MaxAge bounds today.year - birth.year.
	MaxAge = 120
)

const patientInfoHint = "Please share your full name, date of birth, and phone number together, for example: John Smith, 01/15/1985, 555-123-4567."

var (
	namePattern = regexp.MustCompile(`^[A-Za-z ]+$`)
	spaceRun    = regexp.MustCompile(`\s+`)
	nameCutoff  = regexp.MustCompile(`(?i)[,;\n]|\s+(?:and|my|born|phone|dob)\b`)
	trailing    = regexp.MustCompile(`(?i)(?:[\s,;.]+|\s+and)+$`)
	phoneRun    = regexp.MustCompile(`^\+?[\d\s().-]+`)
)

// patientField identifies one sub-field of patient_info.
type patientField int

const (
	fieldName patientField = iota
	fieldDOB
	fieldPhone
)

// partialPatient is what one extraction strategy managed to find. Values are raw
// text; normalization happens after the cascade.
type partialPatient struct {
	name, dob, phone string
}

func (p partialPatient) complete() bool {
	return p.name != "" && p.dob != "" && p.phone != ""
}

// merge fills fields that are still empty from other. First success per field wins.
func (p *partialPatient) merge(other partialPatient) {
	if p.name == "" {
		p.name = other.name
	}
	if p.dob == "" {
		p.dob = other.dob
	}
	if p.phone == "" {
		p.phone = other.phone
	}
}

// extractionStrategy attempts to pull patient fields out of a free-form utterance.
type extractionStrategy struct {
	name    string
	attempt func(text string) (partialPatient, bool)
}

// patientStrategies are attempted in order until every field has been found.
var patientStrategies = []extractionStrategy{
	{name: "labeled", attempt: labeledRules.attempt},
	{name: "narrative", attempt: narrativeRules.attempt},
	{name: "comma-positional", attempt: commaPositional},
	{name: "space-positional", attempt: spacePositional},
}

// extractPatient runs the strategy cascade and returns whatever was found.
func extractPatient(text string) partialPatient {
	var found partialPatient
	for _, s := range patientStrategies {
		if p, ok := s.attempt(text); ok {
			found.merge(p)
		}
		if found.complete() {
			break
		}
	}
	return found
}

// labelRule marks where a field's value starts. Strict rules only accept values
// that look like the field (used for loose phrasings such as "I'm ...").
type labelRule struct {
	field  patientField
	re     *regexp.Regexp
	strict bool
}

type labelRuleSet []labelRule

var labeledRules = labelRuleSet{
	{field: fieldName, re: regexp.MustCompile(`(?i)\b(?:full\s+)?name\s*[:=]\s*`)},
	{field: fieldDOB, re: regexp.MustCompile(`(?i)\b(?:date\s+of\s+birth|d\.?o\.?b\.?|birth\s*date|birthday)\s*[:=]\s*`)},
	{field: fieldPhone, re: regexp.MustCompile(`(?i)\b(?:phone(?:\s+number)?|mobile|cell|tel(?:ephone)?)\s*[:=]\s*`)},
}

var narrativeRules = labelRuleSet{
	{field: fieldName, re: regexp.MustCompile(`(?i)\b(?:my\s+)?(?:full\s+)?name\s+is\s+`)},
	{field: fieldName, re: regexp.MustCompile(`(?i)\b(?:i\s+am|i'm|this\s+is)\s+`), strict: true},
	{field: fieldDOB, re: regexp.MustCompile(`(?i)\b(?:my\s+)?(?:date\s+of\s+birth|dob|birth\s*date|birthday)(?:\s+is)?\s+`)},
	{field: fieldDOB, re: regexp.MustCompile(`(?i)\b(?:i\s+was\s+)?born(?:\s+on)?\s+`)},
	{field: fieldPhone, re: regexp.MustCompile(`(?i)\b(?:my\s+)?(?:phone|mobile|cell)(?:\s+number)?(?:\s+is)?\s+`)},
	{field: fieldPhone, re: regexp.MustCompile(`(?i)\b(?:my\s+)?number\s+is\s+|\breach\s+me\s+at\s+`)},
}

type labelSpan struct {
	start, end int
	rule       labelRule
}

// attempt segments text at every label occurrence; each value runs from the end of
// its label to the start of the next one.
func (rules labelRuleSet) attempt(text string) (partialPatient, bool) {
	var spans []labelSpan
	for _, r := range rules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			spans = append(spans, labelSpan{start: loc[0], end: loc[1], rule: r})
		}
	}
	if len(spans) == 0 {
		return partialPatient{}, false
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	// Drop labels nested inside an earlier one ("my phone number is" vs "number is").
	kept := spans[:0]
	for _, sp := range spans {
		if len(kept) > 0 && sp.start < kept[len(kept)-1].end {
			continue
		}
		kept = append(kept, sp)
	}

	var p partialPatient
	for i, sp := range kept {
		end := len(text)
		if i+1 < len(kept) {
			end = kept[i+1].start
		}
		value := text[sp.end:end]
		switch sp.rule.field {
		case fieldName:
			if p.name == "" {
				name := cleanName(value)
				if sp.rule.strict && !looksLikeName(name) {
					continue
				}
				p.name = name
			}
		case fieldDOB:
			if p.dob == "" {
				p.dob = cleanDOB(value)
			}
		case fieldPhone:
			if p.phone == "" {
				p.phone = cleanPhone(value)
			}
		}
	}
	return p, p.name != "" || p.dob != "" || p.phone != ""
}

// commaPositional handles "Name, date, phone" with the date and phone in any of the
// remaining parts.
func commaPositional(text string) (partialPatient, bool) {
	raw := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ';' })
	var parts []string
	for _, r := range raw {
		if t := strings.TrimSpace(r); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) < 2 {
		return partialPatient{}, false
	}

	var p partialPatient
	used := make([]bool, len(parts))
	if looksLikeName(parts[0]) {
		p.name = parts[0]
		used[0] = true
	}

	// A written date such as "October 10th, 1994" spans two comma parts.
	for i := 1; i < len(parts) && p.dob == ""; i++ {
		if raw, _, ok := findDate(parts[i]); ok {
			p.dob = raw
			used[i] = true
		} else if i+1 < len(parts) {
			if raw, _, ok := findDate(parts[i] + ", " + parts[i+1]); ok {
				p.dob = raw
				used[i], used[i+1] = true, true
			}
		}
	}

	for i := 1; i < len(parts); i++ {
		if !used[i] && countDigits(parts[i]) >= MinPhoneDigits {
			p.phone = cleanPhone(parts[i])
			break
		}
	}
	return p, p.name != "" || p.dob != "" || p.phone != ""
}

// spacePositional handles "Name date phone" separated only by whitespace, including
// "YYYY MMDD" and written month dates.
func spacePositional(text string) (partialPatient, bool) {
	tokens := strings.Fields(strings.NewReplacer(",", " ", ";", " ").Replace(text))
	if len(tokens) < 2 {
		return partialPatient{}, false
	}

	var p partialPatient
	i := 0
	var nameTokens []string
	for ; i < len(tokens); i++ {
		tok := tokens[i]
		if !isAlphaToken(tok) {
			break
		}
		// A month followed by a number starts the date, not the name.
		if isMonthWord(tok) && i+1 < len(tokens) && startsWithDigit(tokens[i+1]) {
			break
		}
		nameTokens = append(nameTokens, tok)
	}
	if len(nameTokens) > 0 {
		p.name = strings.Join(nameTokens, " ")
	}

	rest := tokens[i:]
	dateFrom, dateTo := -1, -1
	for j := 0; j < len(rest) && dateFrom < 0; j++ {
		for w := 3; w >= 1; w-- {
			if j+w > len(rest) {
				continue
			}
			candidate := strings.Join(rest[j:j+w], " ")
			if _, ok := exactDate(candidate); ok {
				p.dob = strings.Trim(candidate, ",;")
				dateFrom, dateTo = j, j+w
				break
			}
		}
	}

	var run []string
	flush := func() bool {
		joined := strings.Join(run, " ")
		run = run[:0]
		if countDigits(joined) >= MinPhoneDigits {
			p.phone = joined
			return true
		}
		return false
	}
	for j, tok := range rest {
		inDate := j >= dateFrom && j < dateTo
		if !inDate && isPhoneToken(tok) {
			run = append(run, tok)
			continue
		}
		if len(run) > 0 && flush() {
			break
		}
	}
	if p.phone == "" && len(run) > 0 {
		flush()
	}
	return p, p.name != "" || p.dob != "" || p.phone != ""
}

// ValidatePatientInfo extracts and validates name, date of birth and phone number
// from one utterance.
func (v *Validator) ValidatePatientInfo(raw string) (models.PatientInfo, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return models.PatientInfo{}, reject(models.CodeEmpty, patientInfoHint)
	}

	found := extractPatient(text)
	switch {
	case found.name == "":
		return models.PatientInfo{}, reject(models.CodeMissingName, patientInfoHint)
	case found.dob == "":
		return models.PatientInfo{}, reject(models.CodeMissingDOB, patientInfoHint)
	case found.phone == "":
		return models.PatientInfo{}, reject(models.CodeMissingPhone, patientInfoHint)
	}

	name, err := normalizeName(found.name)
	if err != nil {
		return models.PatientInfo{}, err
	}
	dob, err := v.normalizeDOB(found.dob)
	if err != nil {
		return models.PatientInfo{}, err
	}
	phone, err := normalizePhone(found.phone)
	if err != nil {
		return models.PatientInfo{}, err
	}
	return models.PatientInfo{FullName: name, DOB: dob, Phone: phone}, nil
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(spaceRun.ReplaceAllString(raw, " "))
	if !namePattern.MatchString(name) {
		return "", reject(models.CodeInvalidName, "Your name should contain only letters and spaces.")
	}
	// Casers keep state, so one is built per call.
	return cases.Title(language.English, cases.NoLower).String(name), nil
}

func (v *Validator) normalizeDOB(raw string) (string, error) {
	_, parts, ok := findDate(raw)
	if !ok {
		return "", reject(models.CodeInvalidDOB, "Please give your date of birth as MM/DD/YYYY or YYYY-MM-DD.")
	}
	birth, ok := toDate(parts)
	if !ok {
		return "", reject(models.CodeInvalidDOB, "That date does not exist. Please check the day and month of your date of birth.")
	}
	age := v.now().Year() - birth.Year()
	if age < 0 || age > MaxAge {
		return "", reject(models.CodeDOBOutOfRange, fmt.Sprintf("Please check the year of your date of birth; it should be within the last %d years.", MaxAge))
	}
	return birth.Format("2006-01-02"), nil
}

func normalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < MinPhoneDigits {
		return "", reject(models.CodeInvalidPhone, fmt.Sprintf("Your phone number looks too short; please include at least %d digits.", MinPhoneDigits))
	}
	if len(digits) > MaxPhoneDigits {
		return "", reject(models.CodeInvalidPhone, fmt.Sprintf("Your phone number looks too long; it can have at most %d digits.", MaxPhoneDigits))
	}
	return digits, nil
}

func cleanName(value string) string {
	if loc := nameCutoff.FindStringIndex(value); loc != nil {
		value = value[:loc[0]]
	}
	return strings.TrimSpace(trailing.ReplaceAllString(value, ""))
}

func cleanDOB(value string) string {
	if raw, _, ok := findDate(value); ok {
		return raw
	}
	if i := strings.IndexAny(value, ",;\n"); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(trailing.ReplaceAllString(value, ""))
}

func cleanPhone(value string) string {
	value = strings.TrimSpace(value)
	if m := phoneRun.FindString(value); countDigits(m) > 0 {
		return strings.TrimSpace(m)
	}
	if i := strings.IndexAny(value, ",;\n"); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(trailing.ReplaceAllString(value, ""))
}

func looksLikeName(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && namePattern.MatchString(s) && strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func isAlphaToken(tok string) bool {
	tok = strings.TrimRight(tok, ".")
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func isPhoneToken(tok string) bool {
	if countDigits(tok) == 0 {
		return false
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) && !strings.ContainsRune("+()-.", r) {
			return false
		}
	}
	return true
}

func startsWithDigit(tok string) bool {
	return tok != "" && unicode.IsDigit(rune(tok[0]))
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
