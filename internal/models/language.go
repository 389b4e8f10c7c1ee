package models

import "sort"

// Language is one catalog entry.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var languageCatalog = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"bn": "Bengali",
	"ta": "Tamil",
	"te": "Telugu",
	"mr": "Marathi",
	"gu": "Gujarati",
	"kn": "Kannada",
	"ml": "Malayalam",
	"pa": "Punjabi",
	"or": "Odia",
	"as": "Assamese",
	"ur": "Urdu",
}

// LookupLanguage returns the catalog entry for code.
func LookupLanguage(code string) (Language, bool) {
	name, ok := languageCatalog[code]
	return Language{Code: code, Name: name}, ok
}

// Languages lists the catalog ordered by code.
func Languages() []Language {
	out := make([]Language, 0, len(languageCatalog))
	for code, name := range languageCatalog {
		out = append(out, Language{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
