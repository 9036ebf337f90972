package intervene

import "strings"

// scamTypeKeywords maps each scam type to the phrases that indicate it.
// Order matters: on a tie the earlier entry wins, so the more specific and
// more damaging types come first.
var scamTypeKeywords = []struct {
	Type     string
	Keywords []string
}{
	{"gift_card", []string{"gift card", "itunes", "google play", "redemption", "scratch", "codes"}},
	{"government", []string{"irs", "warrant", "arrest", "police", "jail", "back taxes", "fine"}},
	{"grandparent", []string{"grandson", "granddaughter", "grandchild", "bail", "lawyer", "emergency"}},
	{"tech_support", []string{"computer", "virus", "remote access", "teamviewer", "anydesk", "microsoft", "software"}},
	{"crypto", []string{"bitcoin", "crypto", "coin atm", "bitcoin atm"}},
	{"romance", []string{"met online", "love you", "boyfriend", "girlfriend", "stranded"}},
	{"bank_fraud", []string{"bank account", "suspicious activity", "verify your account", "security department", "fraud department"}},
	{"verification", []string{"verification code", "social security", "ssn", "account number", "pin number"}},
}

// ClassifyScamType picks the scam type whose keywords appear most often in
// the transcript; "generic" when nothing matches.
func ClassifyScamType(transcript string) string {
	lower := strings.ToLower(transcript)
	best := "generic"
	bestCount := 0
	for _, entry := range scamTypeKeywords {
		count := 0
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				count++
			}
		}
		if count > bestCount {
			best = entry.Type
			bestCount = count
		}
	}
	return best
}

// ExtractEntities pulls concrete nouns out of the transcript for warning
// templates, with safe defaults when nothing specific is present.
func ExtractEntities(transcript string) map[string]string {
	lower := strings.ToLower(transcript)
	entities := map[string]string{
		"payment_method": "gift cards",
		"authority":      "government",
	}

	switch {
	case strings.Contains(lower, "itunes"):
		entities["payment_method"] = "iTunes cards"
	case strings.Contains(lower, "google play"):
		entities["payment_method"] = "Google Play cards"
	case strings.Contains(lower, "bitcoin"):
		entities["payment_method"] = "Bitcoin"
	case strings.Contains(lower, "wire"):
		entities["payment_method"] = "a wire transfer"
	}

	switch {
	case strings.Contains(lower, "irs"):
		entities["authority"] = "The IRS"
	case strings.Contains(lower, "social security"):
		entities["authority"] = "The Social Security Administration"
	case strings.Contains(lower, "medicare"):
		entities["authority"] = "Medicare"
	case strings.Contains(lower, "police"), strings.Contains(lower, "sheriff"):
		entities["authority"] = "The police"
	case strings.Contains(lower, "bank"):
		entities["authority"] = "Your bank"
	}
	return entities
}
