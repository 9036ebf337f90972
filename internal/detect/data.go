package detect

import "regexp"

// Tier 1: unambiguous compliance phrases with essentially zero legitimate
// use. Matched case-insensitively as substrings; any hit forces a high risk
// floor.
var tier1Phrases = []string{
	// Reading gift card numbers/codes to the caller
	"read you the numbers on the back",
	"read you the numbers",
	"read the numbers on the back",
	"read you the code",
	"read the code to you",
	"call you back with the codes",
	"call back with the codes",
	"give you the numbers on the back",
	"scratch off the code",
	"scratch off the numbers",
	// Not telling family
	"won't tell my family",
	"wont tell my family",
	"will not tell my family",
	"won't tell anyone",
	"wont tell anyone",
	"don't tell my family",
	"dont tell my family",
	"keep this between us",
	"promise not to tell",
	// Giving SSN
	"my social security number is",
	"give you my social security",
	"my ssn is",
	// Wiring/paying to avoid arrest
	"wire the money to avoid",
	"pay to clear the warrant",
	"pay the fine to avoid arrest",
	"how much to avoid arrest",
	"going to the bitcoin atm",
	"at the bitcoin atm",
	// Remote access
	"download that software for you",
	"installing the program you sent",
	"give you remote access",
	"downloading the software now",
	"teamviewer",
	"anydesk",
	"logmein",
}

// scenario is one Tier 2 scam-scenario description with the tactic category
// it maps onto.
type scenario struct {
	Text     string
	Category string
}

// Tier 2: scam scenario descriptions compared by embedding similarity.
var scamScenarios = []scenario{
	{"The elderly person agrees to purchase gift cards and read the redemption codes to the caller", "financial"},
	{"The victim is buying iTunes or Google Play cards and will read the codes over the phone", "financial"},
	{"Someone is instructing the elder to buy gift cards and scratch off the codes", "financial"},
	{"The person is at a store purchasing gift cards for someone on the phone", "financial"},
	{"The victim is being threatened with arrest if they don't pay immediately", "fear"},
	{"The caller claims there is a warrant and the person must pay to avoid jail", "authority"},
	{"Someone claiming to be from the IRS is demanding immediate payment", "authority"},
	{"The person is being told they will be arrested unless they wire money", "fear"},
	{"A grandchild or family member is urgently asking for bail money", "urgency"},
	{"Someone claiming to be a grandchild in jail needs money for a lawyer", "financial"},
	{"The victim is being asked to send money to help a family member in trouble", "financial"},
	{"The caller is requesting remote access to the victim's computer", "isolation"},
	{"Someone is guiding the victim to download software to fix their computer", "isolation"},
	{"The victim is being told their computer has a virus and needs remote access", "authority"},
	{"The person is being directed to install TeamViewer or AnyDesk", "isolation"},
	{"The victim is being told to keep this call secret from family members", "isolation"},
	{"The caller insists the victim must not tell anyone about this", "isolation"},
	{"The person is promising not to tell their family about the call", "isolation"},
	{"The victim is being directed to withdraw cash and deposit it at a cryptocurrency ATM", "financial"},
	{"Someone is instructing the elder to buy Bitcoin and send it", "financial"},
	{"The person is going to a Bitcoin ATM to send money", "financial"},
	{"The victim is being told to wire money through Western Union", "financial"},
	{"Someone is directing the elder to transfer money or send a wire", "financial"},
	{"The victim is providing their social security number to the caller", "authority"},
	{"The person is giving their bank account number to someone on the phone", "financial"},
	{"The elder is reading a verification code from their phone to the caller", "financial"},
	{"The victim is providing sensitive personal information to stop a supposed fraud", "authority"},
	{"Someone the victim met online is asking for money to get home", "financial"},
	{"A romantic interest online needs money for an emergency", "financial"},
	{"The person is sending money to someone they care about online", "financial"},
	{"The victim is being told their bank account has fraud and must verify", "authority"},
	{"Someone claims to be from the bank and needs account verification", "authority"},
	{"The elder is being directed to move money to protect it from fraud", "financial"},
	{"The victim won a prize but must pay fees to claim it", "financial"},
	{"Someone is telling the person they need to pay taxes on winnings", "authority"},
	{"The victim is picking up gift cards at a store and will provide the codes to the caller", "financial"},
	{"The person is getting cards from the store and will call back with the redemption codes", "financial"},
}

// benignPattern is a context match that forces risk to zero. The override
// beats Tier 1: fewer false positives in ambiguous family contexts is worth
// some false negatives.
type benignPattern struct {
	Label string
	re    *regexp.Regexp
}

var benignPatterns = []benignPattern{
	{"medical context", regexp.MustCompile(`(?i)\b(doctor|physician|hospital|pharmacy|prescription|appointment|checkup)\b`)},
	{"trusted advisor", regexp.MustCompile(`(?i)\b(tax preparer|accountant|financial advisor|my banker)\b`)},
	{"family occasion", regexp.MustCompile(`(?i)\b(birthday|nephew|niece|grandchild.*visit|family dinner)\b`)},
	{"family gift", regexp.MustCompile(`(?i)\b(gift card.*birthday|gift.*nephew|gift.*niece)\b`)},
	{"social call", regexp.MustCompile(`(?i)\b(just checking in|how are you|good to hear|catch up)\b`)},
	{"routine plans", regexp.MustCompile(`(?i)\b(lunch plans|dinner plans|coffee|visiting)\b`)},
}

// TacticKeys is the canonical ordering of the five manipulation tactics.
var TacticKeys = []string{"urgency", "authority", "fear", "isolation", "financial"}
