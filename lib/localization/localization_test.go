package localization

import (
	"encoding/json"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/nicksnyder/go-i18n/v2/i18n"
)

func TestLocalizationService(t *testing.T) {
	service := NewLocalizationService()

	for _, tt := range []struct {
		lang string
		want string
	}{
		{lang: "en", want: "Challenge already used. Request a new one."},
		{lang: "de", want: "Aufgabe wurde bereits verwendet. Fordere eine neue an."},
		{lang: "fr", want: "Défi déjà utilisé. Demandez-en un nouveau."},
	} {
		t.Run(tt.lang, func(t *testing.T) {
			localizer := service.GetLocalizer(tt.lang)
			result := localizer.MustLocalize(&i18n.LocalizeConfig{MessageID: "challenge_already_used"})
			if result != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, result)
			}
		})
	}
}

func TestEnglishWording(t *testing.T) {
	sl := SimpleLocalizer{Localizer: NewLocalizationService().GetLocalizer("en")}

	for key, fragment := range map[string]string{
		"challenge_not_found":    "expired",
		"challenge_expired":      "expired",
		"challenge_already_used": "already used",
		"wrong_answer":           "Wrong answer",
	} {
		if got := sl.T(key); !strings.Contains(got, fragment) {
			t.Errorf("%s: %q does not contain %q", key, got, fragment)
		}
	}
}

func TestTemplateData(t *testing.T) {
	sl := SimpleLocalizer{Localizer: NewLocalizationService().GetLocalizer("en")}

	got := sl.TData("cooldown_active", map[string]any{"Seconds": 17})
	if !strings.Contains(got, "17 seconds") {
		t.Errorf("template data not applied: %q", got)
	}
}

func TestGetLocalizerFallback(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Language", "xx-YY")

	if got := GetLocalizer(req).T("wrong_answer"); got != "Wrong answer. Request a new challenge and try again." {
		t.Errorf("unknown language did not fall back to English: %q", got)
	}

	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
	if got := GetLocalizer(req).T("wrong_answer"); !strings.HasPrefix(got, "Falsche Antwort") {
		t.Errorf("Accept-Language ignored: %q", got)
	}
}

type manifest struct {
	SupportedLanguages []string `json:"supported_languages"`
}

func loadManifest(t *testing.T) manifest {
	t.Helper()

	fin, err := localeFS.Open("locales/manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	var result manifest
	if err := json.NewDecoder(fin).Decode(&result); err != nil {
		t.Fatal(err)
	}

	return result
}

func TestComprehensiveTranslations(t *testing.T) {
	var translations = map[string]any{}
	fin, err := localeFS.Open("locales/en.json")
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	if err := json.NewDecoder(fin).Decode(&translations); err != nil {
		t.Fatal(err)
	}

	var keys []string
	for k := range translations {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, lang := range loadManifest(t).SupportedLanguages {
		t.Run(lang, func(t *testing.T) {
			fin, err := localeFS.Open("locales/" + lang + ".json")
			if err != nil {
				t.Fatal(err)
			}
			defer fin.Close()

			var got map[string]any
			if err := json.NewDecoder(fin).Decode(&got); err != nil {
				t.Fatal(err)
			}

			for _, key := range keys {
				t.Run(key, func(t *testing.T) {
					if v, ok := got[key].(string); !ok || v == "" {
						t.Error("key not defined")
					}
				})
			}
		})
	}
}
