package features

// confusedPhrases are common substitutions of similar-sounding words and
// stock phrasings seen in templated spam. Matched against normalized,
// space-joined tokens.
var confusedPhrases = []string{
	"peaked my interest",
	"peaked my curiosity",
	"peaked their interest",
	"loosing",
	"could of",
	"would of",
	"should of",
	"must of",
	"alot",
	"payed for",
	"your welcome",
	"definately",
	"seperate",
	"irregardless",
	"for all intensive purposes",
	"tow the line",
	"wreck havoc",
	"sneak peak",
	"baited breath",
	"leek in",
	"do the needful",
	"revert back",
	"prepone",
	"discuss about",
	"same to you my friend",
	"each and every",
}

var formalMarkers = map[string]bool{
	"kindly":       true,
	"therefore":    true,
	"furthermore":  true,
	"moreover":     true,
	"regards":      true,
	"sincerely":    true,
	"hereby":       true,
	"please":       true,
	"however":      true,
	"thus":         true,
	"henceforth":   true,
	"pertaining":   true,
	"utilize":      true,
	"assist":       true,
	"inquire":      true,
	"additionally": true,
	"consequently": true,
	"regarding":    true,
	"esteemed":     true,
	"greetings":    true,
}

var informalMarkers = map[string]bool{
	"lol":   true,
	"lmao":  true,
	"lmfao": true,
	"gonna": true,
	"wanna": true,
	"gotta": true,
	"tbh":   true,
	"imo":   true,
	"imho":  true,
	"idk":   true,
	"yeah":  true,
	"nah":   true,
	"dude":  true,
	"omg":   true,
	"btw":   true,
	"kinda": true,
	"sorta": true,
	"y'all": true,
	"haha":  true,
	"ngl":   true,
	"af":    true,
	"bruh":  true,
	"yep":   true,
	"nope":  true,
}

// Words starting with a vowel letter but a consonant sound ("a university").
var consonantSoundPrefixes = []string{"uni", "use", "usu", "uti", "ure", "eu", "ewe", "one", "once", "ubiq"}

// Words starting with a silent h ("an hour").
var silentH = []string{"hour", "honest", "honor", "honour", "heir", "herb"}

var determiners = map[string]bool{"a": true, "an": true, "the": true}

var bareNounPrepositions = map[string]bool{"in": true, "at": true, "to": true, "on": true, "from": true, "into": true}

// Singular nouns that normally take a determiner after a preposition
// ("in the system", not "in system").
var determinerNouns = map[string]bool{
	"system":  true,
	"meeting": true,
	"link":    true,
	"post":    true,
	"comment": true,
	"video":   true,
	"thread":  true,
	"website": true,
	"office":  true,
	"group":   true,
	"market":  true,
}
