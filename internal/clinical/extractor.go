package clinical

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/novahealth/nova/pkg/transcript"
)

// numericPattern binds a compiled regex to the value it extracts. The first
// capture group is the value; blood pressure patterns carry a second group
// for the diastolic reading, weight and dosage patterns a second group for
// a spoken unit.
type numericPattern struct {
	re       *regexp.Regexp
	label    string
	category NumericCategory
	unit     string
}

var numericPatterns = []numericPattern{
	// Blood pressure
	{regexp.MustCompile(`blood pressure[:\s]+(\d{2,3})[/\\](\d{2,3})`), "blood_pressure", NumericVital, "mmHg"},
	{regexp.MustCompile(`bp[:\s]+(\d{2,3})[/\\](\d{2,3})`), "blood_pressure", NumericVital, "mmHg"},
	{regexp.MustCompile(`(\d{2,3})[/\\](\d{2,3})(?:\s*mm\s*hg|\s*millimeters)`), "blood_pressure", NumericVital, "mmHg"},

	// Heart rate
	{regexp.MustCompile(`heart rate[:\s]+(\d{2,3})`), "heart_rate", NumericVital, "bpm"},
	{regexp.MustCompile(`pulse[:\s]+(\d{2,3})`), "pulse", NumericVital, "bpm"},
	{regexp.MustCompile(`hr[:\s]+(\d{2,3})`), "heart_rate", NumericVital, "bpm"},

	// Temperature
	{regexp.MustCompile(`temperature[:\s]+(\d{2,3}\.?\d?)`), "temperature", NumericVital, "°F"},
	{regexp.MustCompile(`temp[:\s]+(\d{2,3}\.?\d?)`), "temperature", NumericVital, "°F"},
	{regexp.MustCompile(`(\d{2,3}\.?\d?)(?:\s*degrees|\s*fahrenheit|\s*celsius)`), "temperature", NumericVital, "°"},

	// Weight
	{regexp.MustCompile(`weight[:\s]+(\d{2,3})\s*(lbs?|pounds?|kg|kilograms?)?`), "weight", NumericMeasurement, ""},
	{regexp.MustCompile(`weighs?\s+(\d{2,3})\s*(lbs?|pounds?|kg|kilograms?)?`), "weight", NumericMeasurement, ""},

	// Labs
	{regexp.MustCompile(`a1c[:\s]+(\d\.?\d?)\s*%?`), "a1c", NumericLab, "%"},
	{regexp.MustCompile(`hemoglobin a1c[:\s]+(\d\.?\d?)`), "a1c", NumericLab, "%"},
	{regexp.MustCompile(`hba1c[:\s]+(\d\.?\d?)`), "a1c", NumericLab, "%"},
	{regexp.MustCompile(`cholesterol[:\s]+(\d{2,3})`), "cholesterol", NumericLab, "mg/dL"},
	{regexp.MustCompile(`glucose[:\s]+(\d{2,3})`), "glucose", NumericLab, "mg/dL"},
	{regexp.MustCompile(`blood sugar[:\s]+(\d{2,3})`), "blood_sugar", NumericLab, "mg/dL"},
	{regexp.MustCompile(`creatinine[:\s]+(\d\.?\d{1,2})`), "creatinine", NumericLab, "mg/dL"},

	// Oxygen saturation
	{regexp.MustCompile(`oxygen[:\s]+(\d{2,3})\s*%?`), "oxygen_saturation", NumericVital, "%"},
	{regexp.MustCompile(`o2[:\s]+(\d{2,3})\s*%?`), "oxygen_saturation", NumericVital, "%"},
	{regexp.MustCompile(`sat[:\s]+(\d{2,3})\s*%?`), "oxygen_saturation", NumericVital, "%"},
	{regexp.MustCompile(`spo2[:\s]+(\d{2,3})`), "oxygen_saturation", NumericVital, "%"},

	// Dosages
	{regexp.MustCompile(`(\d+)\s*(?:mg|milligrams?)`), "dosage", NumericDosage, "mg"},
	{regexp.MustCompile(`(\d+)\s*(?:ml|milliliters?)`), "dosage", NumericDosage, "ml"},
	{regexp.MustCompile(`(\d+)\s*(?:mcg|micrograms?)`), "dosage", NumericDosage, "mcg"},
	{regexp.MustCompile(`(\d+)\s*(?:units?)`), "dosage", NumericDosage, "units"},
}

// actionCategories fixes the evaluation order so extraction is deterministic.
var actionCategories = []ActionCategory{
	CategoryPrescription,
	CategoryFollowUp,
	CategoryReferral,
	CategoryTest,
}

var actionKeywords = map[ActionCategory][]string{
	CategoryPrescription: {
		"prescribe", "prescription", "rx", "medication", "refill",
		"start", "continue", "discontinue", "increase", "decrease",
		"titrate", "taper", "drug", "medicine",
	},
	CategoryFollowUp: {
		"follow up", "follow-up", "return", "schedule", "appointment",
		"come back", "see me", "weeks", "months", "check in",
		"revisit", "recheck",
	},
	CategoryReferral: {
		"refer", "referral", "specialist", "consult", "consultation",
		"see a", "cardiologist", "neurologist", "dermatologist",
		"orthopedic", "oncologist", "psychiatrist", "surgeon",
	},
	CategoryTest: {
		"test", "lab", "labs", "bloodwork", "imaging", "x-ray",
		"xray", "mri", "ct scan", "ct", "ultrasound", "ecg", "ekg",
		"echocardiogram", "biopsy", "culture", "panel", "screening",
	},
}

var medicalTerms = []string{
	"hypertension", "hypotension", "diabetes", "diabetic", "mellitus",
	"cardiovascular", "coronary", "arrhythmia", "tachycardia", "bradycardia",
	"pneumonia", "bronchitis", "asthma", "copd", "emphysema",
	"arthritis", "osteoporosis", "fracture", "inflammation",
	"infection", "antibiotic", "viral", "bacterial",
	"diagnosis", "prognosis", "symptom", "syndrome", "chronic", "acute",
	"benign", "malignant", "metastatic", "tumor", "lesion",
	"edema", "anemia", "neuropathy", "nephropathy", "retinopathy",
	"hypothyroid", "hyperthyroid", "thyroid",
	"cholesterol", "triglycerides", "ldl", "hdl",
	"insulin", "metformin", "lisinopril", "atorvastatin",
	"amlodipine", "omeprazole", "levothyroxine", "gabapentin",
}

var importantPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)patient (?:reports?|states?|complains? of|presents? with) .{10,100}`),
	regexp.MustCompile(`(?i)diagnosed with .{5,50}`),
	regexp.MustCompile(`(?i)history of .{5,50}`),
	regexp.MustCompile(`(?i)allergic to .{5,50}`),
	regexp.MustCompile(`(?i)no known .{5,30}`),
	regexp.MustCompile(`(?i)family history .{5,50}`),
	regexp.MustCompile(`(?i)recommend(?:s|ed|ing)? .{5,100}`),
	regexp.MustCompile(`(?i)concern(?:s|ed)? (?:about|for|regarding) .{5,50}`),
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

const maxImportantPhrases = 20

var highPriorityTerms = []string{
	"urgent", "immediately", "emergency", "asap", "critical",
	"today", "right away", "stat", "concerning", "worrisome",
}

var lowPriorityTerms = []string{
	"optional", "consider", "if possible", "when convenient",
	"routine", "annual", "yearly",
}

// Extractor finds clinically relevant information in a transcript using
// keyword and regex matching. The zero value is ready to use.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor { return &Extractor{} }

// Extract runs all extraction passes over the transcript.
func (e *Extractor) Extract(res *transcript.Result) Extraction {
	return Extraction{
		ActionItems:      e.extractActionItems(res),
		NumericValues:    e.extractNumericValues(res),
		ImportantPhrases: e.extractImportantPhrases(res.FullText),
		MedicalTerms:     e.extractMedicalTerms(res.FullText),
	}
}

func (e *Extractor) extractNumericValues(res *transcript.Result) []NumericValue {
	fullText := strings.ToLower(res.FullText)
	seen := make(map[string]bool)
	var values []NumericValue

	for _, p := range numericPatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(fullText, -1) {
			groups := groupTexts(fullText, m)
			value := groups[1]

			// Blood pressure combines systolic and diastolic readings.
			if p.label == "blood_pressure" && len(groups) > 2 && groups[2] != "" {
				value = groups[1] + "/" + groups[2]
			}

			unit := p.unit
			if (p.label == "weight" || p.label == "dosage") && len(groups) > 2 && groups[2] != "" {
				unit = strings.ToLower(groups[2])
			}

			ts := timestampForPosition(res, m[0])

			key := fmt.Sprintf("%s:%s:%d", p.label, value, ts)
			if seen[key] {
				continue
			}
			seen[key] = true

			values = append(values, NumericValue{
				Value:       value,
				Unit:        unit,
				Category:    p.category,
				Label:       titleLabel(p.label),
				TimestampMs: ts,
				RawText:     groups[0],
			})
		}
	}
	return values
}

func (e *Extractor) extractActionItems(res *transcript.Result) []ActionItem {
	fullText := strings.ToLower(res.FullText)
	var items []ActionItem

	for _, sentence := range sentenceSplit.Split(res.FullText, -1) {
		trimmed := strings.TrimSpace(sentence)
		lower := strings.ToLower(trimmed)
		if lower == "" {
			continue
		}

		for _, category := range actionCategories {
			for _, keyword := range actionKeywords[category] {
				if !strings.Contains(lower, keyword) {
					continue
				}
				prefix := lower
				if len(prefix) > 20 {
					prefix = prefix[:20]
				}
				pos := strings.Index(fullText, prefix)
				if pos < 0 {
					pos = 0
				}

				items = append(items, ActionItem{
					Text:        trimmed,
					Category:    category,
					Priority:    determinePriority(lower),
					TimestampMs: timestampForPosition(res, pos),
					Keywords:    []string{keyword},
				})
				// One item per sentence per category.
				break
			}
		}
	}

	// Dedupe sentences that triggered in multiple categories on the same text.
	seen := make(map[string]bool)
	unique := items[:0]
	for _, item := range items {
		key := item.Text
		if len(key) > 50 {
			key = key[:50]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, item)
	}
	return unique
}

func (e *Extractor) extractMedicalTerms(fullText string) []string {
	lower := strings.ToLower(fullText)
	var found []string
	for _, term := range medicalTerms {
		if strings.Contains(lower, term) {
			found = append(found, term)
		}
	}
	sort.Strings(found)
	return found
}

func (e *Extractor) extractImportantPhrases(fullText string) []string {
	var phrases []string
	for _, re := range importantPhrasePatterns {
		for _, m := range re.FindAllString(fullText, -1) {
			phrase := strings.TrimSpace(m)
			if len(phrase) > 10 {
				phrases = append(phrases, phrase)
			}
		}
	}
	if len(phrases) > maxImportantPhrases {
		phrases = phrases[:maxImportantPhrases]
	}
	return phrases
}

// timestampForPosition maps a character offset in FullText to the start time
// of the word covering that offset. FullText is the single-space join of the
// word texts, so offsets accumulate as len(text)+1 per word.
func timestampForPosition(res *transcript.Result, charPos int) int64 {
	if len(res.Words) == 0 {
		return 0
	}
	pos := 0
	for _, w := range res.Words {
		end := pos + len(w.Text) + 1
		if charPos <= end {
			return w.StartMs
		}
		pos = end
	}
	return res.Words[len(res.Words)-1].StartMs
}

// determinePriority scans the sentence for urgency markers. High-priority
// terms win over low-priority terms; the default is medium.
func determinePriority(sentence string) Priority {
	for _, term := range highPriorityTerms {
		if strings.Contains(sentence, term) {
			return PriorityHigh
		}
	}
	for _, term := range lowPriorityTerms {
		if strings.Contains(sentence, term) {
			return PriorityLow
		}
	}
	return PriorityMedium
}

// groupTexts resolves FindAllStringSubmatchIndex pairs into substrings. An
// unmatched optional group yields "".
func groupTexts(s string, idx []int) []string {
	out := make([]string, len(idx)/2)
	for i := 0; i < len(idx); i += 2 {
		if idx[i] < 0 {
			out[i/2] = ""
			continue
		}
		out[i/2] = s[idx[i]:idx[i+1]]
	}
	return out
}

// titleLabel converts a snake_case label into a display name.
func titleLabel(label string) string {
	parts := strings.Split(label, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
