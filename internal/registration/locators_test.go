package registration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/registrar/internal/browser"
	"github.com/xkilldash9x/registrar/internal/config"
)

func TestDefaultLocatorsComplete(t *testing.T) {
	table := DefaultLocators()
	for _, name := range []string{
		LocLanguageToggle, LocEnglishOption, LocGuestType, LocVisaInput, LocNationalityOpen,
		LocNationalityFilter, LocPassportInput, LocNextButton, LocDOBInput, LocGenderMale,
		LocGenderFemale, LocMobileInput, LocNoAssistance, LocEmailInput, LocAccountSuccess,
		LocOTPInput, LocVerifyButton, LocVerificationResult,
	} {
		loc, ok := table[name]
		require.True(t, ok, name)
		assert.Equal(t, name, loc.Name)
		assert.NotEmpty(t, loc.Strategies, name)
	}
	assert.Equal(t, browser.ID("type3"), table[LocGuestType].Strategies[0])
}

func TestNewLocatorsOverride(t *testing.T) {
	l, err := NewLocators(map[string][]config.LocatorSpec{
		LocGuestType: {{Kind: "css", Expr: "#guest"}},
		"extra":      {{Kind: "xpath", Expr: "//div"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []browser.Strategy{browser.CSS("#guest")}, l.Get(LocGuestType).Strategies)
	assert.Equal(t, []browser.Strategy{browser.XPath("//div")}, l.Get("extra").Strategies)
	assert.NotEmpty(t, l.Get(LocVisaInput).Strategies)
	assert.Empty(t, l.Get("unknown").Strategies)

	_, err = NewLocators(map[string][]config.LocatorSpec{"bad": {{Kind: "regex", Expr: "x"}}})
	assert.Error(t, err)
}

func TestNationalityOption(t *testing.T) {
	loc := nationalityOption(" India ")
	require.Len(t, loc.Strategies, 5)
	assert.Equal(t,
		"//li[contains(@class, 'p-dropdown-item')][translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz')='india']",
		loc.Strategies[0].Expr)
	assert.Contains(t, loc.Strategies[2].Expr, "contains(translate(normalize-space(.), ")
	assert.True(t, strings.HasSuffix(loc.Strategies[2].Expr, ", 'india')]"))

	t.Run("sheet casing does not matter", func(t *testing.T) {
		want := nationalityOption("India")
		for _, v := range []string{"INDIA", "india", " iNdIa"} {
			assert.Equal(t, want, nationalityOption(v), v)
		}
	})
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, "'India'", xpathLiteral("India"))
	assert.Equal(t, `"Cote d'Ivoire"`, xpathLiteral("Cote d'Ivoire"))
	assert.Equal(t, `concat('a"b', "'", 'c')`, xpathLiteral(`a"b'c`))
}

func TestGenderLocator(t *testing.T) {
	assert.Equal(t, LocGenderMale, genderLocator("M"))
	assert.Equal(t, LocGenderMale, genderLocator("male"))
	assert.Equal(t, LocGenderFemale, genderLocator(" F "))
	assert.Equal(t, LocGenderFemale, genderLocator("FEMALE"))
	assert.Equal(t, LocGenderMale, genderLocator(""))
	assert.Equal(t, LocGenderMale, genderLocator("X"))
}
