package patterns

import "chat-moderation-engine/internal/models"

type tierDefinition struct {
	severity  models.Severity
	base      float64
	countOnce bool
	defs      []definition
}

// Base scores: extreme=200, critical=100, high=50, medium=25, low=10.
var toxicTiers = []tierDefinition{
	{
		severity:  models.SeverityExtreme,
		base:      200,
		countOnce: true,
		defs: []definition{
			{name: "self_harm_incitement", expr: `\b(?:go\s+)?kill\s+(?:your\s*self|urself|yourselves)\b`},
			{name: "kys", expr: `\bk+\s*y+\s*s+\b`},
			{name: "death_threat", expr: `\bi(?:'?ll|\s+will|\s+am\s+going\s+to|'?m\s+gonna|\s+gonna)\s+(?:kill|murder|shoot|stab)\s+(?:you|u|ur\s+family)\b`},
			{name: "violence_threat", expr: `\b(?:bomb|shoot\s+up)\s+(?:the|your|this)\s+(?:school|office|house|place)\b`},
			{name: "csam", expr: `\bchild\s+(?:porn|abuse\s+material)\b|\bcsam\b`},
		},
	},
	{
		severity: models.SeverityCritical,
		base:     100,
		defs: []definition{
			{name: "intimidation", expr: `\bi\s+know\s+where\s+(?:you|u)\s+live\b`},
			{name: "wish_harm", expr: `\b(?:hope|wish)\s+(?:you|u)\s+(?:die|get\s+cancer|get\s+hurt)\b`},
			{name: "doxxing", expr: `\byour\s+(?:home\s+)?address\s+is\b`},
			{name: "hate_speech", expr: `\b(?:heil\s+hitler|sieg\s+heil|white\s+power|gas\s+the\s+\w+)\b`},
			{name: "xenophobia", expr: `\bgo\s+back\s+to\s+your\s+(?:own\s+)?country\b`},
		},
	},
	{
		severity: models.SeverityHigh,
		base:     50,
		defs: []definition{
			{name: "fuck", expr: `\bf+u+c+k+(?:ing|er|ers|ed|s)?\b`},
			{name: "motherfucker", expr: `\bmother\s*f+u*c*k+\w*`},
			{name: "cunt", expr: `\bc+u+n+t+s?\b`},
			{name: "stfu", expr: `\bs+t+f+u+\b`},
			{name: "piece_of_shit", expr: `\bpiece\s+of\s+sh[i1]t\b`},
		},
	},
	{
		severity: models.SeverityMedium,
		base:     25,
		defs: []definition{
			{name: "bitch", expr: `\bb+[i1!]+t+c+h+(?:es|y)?\b`},
			{name: "asshole", expr: `\ba+s+s+h+o+l+e+s?\b`},
			{name: "bastard", expr: `\bbastards?\b`},
			{name: "dickhead", expr: `\bdick\s*head\b`},
			{name: "shit", expr: `\bsh[i1]t(?:ty|head)?\b`},
			{name: "whore", expr: `\bwh[o0]re\b`},
		},
	},
	{
		severity: models.SeverityLow,
		base:     10,
		defs: []definition{
			{name: "damn", expr: `\bdamn(?:it)?\b`},
			{name: "crap", expr: `\bcrap(?:py)?\b`},
			{name: "stupid", expr: `\bstupid\b`},
			{name: "idiot", expr: `\bidiots?\b`},
			{name: "moron", expr: `\bmorons?\b`},
			{name: "dumb", expr: `\bdumb(?:ass)?\b`},
			{name: "shut_up", expr: `\bshut\s+up\b`},
		},
	},
}

var spamDefs = []definition{
	{name: "repeated_chars", expr: `(.)\1{4,}`, weight: 15, kind: kindBackref},
	{name: "repeated_words", expr: `\b(\w+)\b(?:\s+\1\b){2,}`, weight: 20, kind: kindBackref},
	{name: "all_caps", expr: `^(?:[^\p{Ll}]*\p{Lu}){5,}[^\p{Ll}]*$`, weight: 20, kind: kindRE2Sensitive},
	{name: "excessive_punctuation", expr: `[!?]{3,}|\.{4,}`, weight: 15},
	{name: "link", expr: `https?://\S+|\bwww\.\S+|\b[a-z0-9-]+\.(?:com|net|org|io|co|xyz|info|biz|ru|gg|ly)(?:/\S*)?\b`, weight: 25},
	{name: "commercial", expr: `\b(?:buy\s+now|free\s+money|click\s+here|limited\s+(?:time\s+)?offer|act\s+now|discount\s+code|earn\s+\$?\d+|work\s+from\s+home)\b`, weight: 25},
	{name: "crypto", expr: `\b(?:bitcoin|btc|ethereum|eth|crypto|nft|airdrop|usdt|doge(?:coin)?)\b|\b0x[0-9a-f]{40}\b`, weight: 30},
	{name: "phone", expr: `(?:\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`, weight: 25},
	{name: "email", expr: `\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`, weight: 20},
}

var evasionDefs = []definition{
	{name: "spaced_letters", expr: `(?:^|\s)(?:\pL\s+){3,}\pL(?:\s|$)`, weight: 20},
	{name: "dotted_letters", expr: `\pL(?:[.\-_*]\pL){3,}`, weight: 20},
	{name: "zero_width", expr: `[\x{200B}-\x{200D}\x{2060}\x{FEFF}\x{00AD}]`, weight: 30},
	{name: "homoglyphs", weight: 25, kind: kindFunc, fn: hasHomoglyphs},
	{name: "bidi_control", expr: `[\x{202A}-\x{202E}\x{2066}-\x{2069}\x{200E}\x{200F}\x{061C}]`, weight: 30},
	{name: "leetspeak", weight: 20, kind: kindFunc, fn: isLeetHeavy},
}
