package registration

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/registrar/internal/browser"
	"github.com/xkilldash9x/registrar/internal/config"
)

// Locator names. Config overrides use the same keys.
const (
	LocLanguageToggle     = "language-toggle"
	LocEnglishOption      = "english-option"
	LocGuestType          = "guest-type"
	LocVisaInput          = "visa-input"
	LocNationalityOpen    = "nationality-dropdown"
	LocNationalityFilter  = "nationality-filter"
	LocPassportInput      = "passport-input"
	LocNextButton         = "next-button"
	LocDOBInput           = "dob-input"
	LocGenderMale         = "gender-male"
	LocGenderFemale       = "gender-female"
	LocMobileInput        = "mobile-input"
	LocNoAssistance       = "no-assistance"
	LocEmailInput         = "email-input"
	LocAccountSuccess     = "account-success"
	LocOTPInput           = "otp-input"
	LocVerifyButton       = "verify-button"
	LocVerificationResult = "verification-success"
)

// DefaultLocators is the locator table for the registration site, most
// specific strategy first.
func DefaultLocators() map[string]browser.Locator {
	x := browser.XPath
	table := map[string][]browser.Strategy{
		LocLanguageToggle: {
			browser.ID("dropdownMenuLink"),
			x("//a[contains(text(), 'AR') or contains(text(), 'Ar')]"),
			x("//span[contains(text(), 'AR') or contains(text(), 'Ar')]"),
			x("//button[contains(text(), 'AR') or contains(text(), 'Ar')]"),
			x("//div[contains(text(), 'AR') or contains(text(), 'Ar')]"),
		},
		LocEnglishOption: {
			x("//a[contains(text(), 'En') or contains(text(), 'EN') or contains(text(), 'English')]"),
			x("//li[contains(text(), 'En') or contains(text(), 'EN') or contains(text(), 'English')]"),
			x("//div[contains(text(), 'En') or contains(text(), 'EN') or contains(text(), 'English')]"),
		},
		LocGuestType: {
			browser.ID("type3"),
			x("//p-radiobutton[@id='type3']"),
			x("//input[@type='radio'][@id='type3']"),
			x("//label[contains(text(), 'Foreign Guest')]"),
			x("//div[contains(text(), 'Foreign Guest')]"),
			x("//span[contains(text(), 'Foreign Guest')]"),
			x("//label[contains(text(), 'زائر دولي')]"),
			x("//div[contains(text(), 'زائر دولي')]"),
		},
		LocVisaInput: {
			x("//input[@placeholder='Visa Number']"),
			x("//input[contains(@placeholder, 'Visa')]"),
			x("//input[@name='visa']"),
			x("//input[@id='visa']"),
		},
		LocNationalityOpen: {
			x("//span[@role='combobox' and contains(@aria-label, 'Select Nationality')]"),
			x("//span[contains(@class, 'p-dropdown-label') and contains(text(), 'Select Nationality')]"),
			x("//input[contains(@placeholder, 'Nationality')]"),
			x("//span[contains(@class, 'p-dropdown-label')]"),
			x("//span[@role='combobox']"),
		},
		LocNationalityFilter: {
			browser.CSS("input.p-dropdown-filter"),
			x("//input[@placeholder='Search']"),
		},
		LocPassportInput: {
			x("//input[@placeholder='Passport Number']"),
			x("//input[contains(@placeholder, 'Passport')]"),
			x("//input[@name='passport']"),
			x("//input[@id='passport']"),
		},
		LocNextButton: {
			x("//button[.//span[contains(text(), 'Next')]]"),
			x("//button[contains(@class, 'btn') and contains(@class, 'login-btn')]"),
			x("//button[contains(@class, 'p-button')]"),
			x("//button[@type='submit']"),
		},
		LocDOBInput: {
			x("//input[@placeholder='Specify date of birth']"),
			x("//input[contains(@placeholder, 'date of birth')]"),
			x("//input[contains(@class, 'p-calendar')]"),
			x("//p-calendar//input"),
		},
		LocGenderMale: {
			x("//p-radiobutton[@formcontrolname='gender' and @value='1']//div[contains(@class, 'p-radiobutton-box')]"),
			x("//p-radiobutton[@id='gender1']//div[contains(@class, 'p-radiobutton-box')]"),
			x("//label[contains(text(), 'Male') and not(contains(text(), 'Female'))]"),
			browser.ID("gender1"),
		},
		LocGenderFemale: {
			x("//p-radiobutton[@formcontrolname='gender' and @value='2']//div[contains(@class, 'p-radiobutton-box')]"),
			x("//p-radiobutton[@id='gender2']//div[contains(@class, 'p-radiobutton-box')]"),
			x("//label[contains(text(), 'Female')]"),
			browser.ID("gender2"),
		},
		LocMobileInput: {
			browser.ID("mobile"),
			x("//input[@placeholder='Phone Number']"),
			x("//input[contains(@placeholder, 'Phone')]"),
		},
		LocNoAssistance: {
			x("//p-radiobutton[@formcontrolname='needAssistance' and @value='0']//div[contains(@class, 'p-radiobutton-box')]"),
			x("//p-radiobutton[@id='type2']//div[contains(@class, 'p-radiobutton-box')]"),
			x("//label[contains(text(), 'No') and contains(@for, 'type2')]"),
			x("//span[contains(text(), 'No') and ancestor::p-radiobutton]"),
		},
		LocEmailInput: {
			x("//input[@type='email']"),
			x("//input[@name='email']"),
			x("//input[contains(@placeholder, 'mail')]"),
			browser.ID("email"),
		},
		LocAccountSuccess: {
			x("//input[@name='otp']"),
			x("//input[contains(@placeholder, 'OTP')]"),
			x("//input[contains(@placeholder, 'verification')]"),
			x("//div[contains(text(), 'Account created')]"),
			x("//div[contains(text(), 'verification code')]"),
			x("//div[contains(text(), 'Verification')]"),
		},
		LocOTPInput: {
			x("//input[@name='otp']"),
			x("//input[@name='verification_code']"),
			x("//input[@name='code']"),
			browser.ID("otp"),
			browser.ID("verification_code"),
			browser.CSS("[data-field='otp']"),
		},
		LocVerifyButton: {
			x("//button[.//span[contains(text(), 'Verify')]]"),
			x("//button[contains(text(), 'Verify')]"),
			x("//button[@type='submit']"),
		},
		LocVerificationResult: {
			x("//div[contains(text(), 'Verification successful')]"),
			x("//div[contains(text(), 'Account activated')]"),
			x("//div[contains(text(), 'verified')]"),
			x("//button[contains(text(), 'Continue')]"),
			x("//a[contains(text(), 'Continue')]"),
		},
	}

	out := make(map[string]browser.Locator, len(table))
	for name, strategies := range table {
		out[name] = browser.NewLocator(name, strategies...)
	}
	return out
}

// Locators resolves locator names, with configured overrides replacing
// defaults wholesale.
type Locators struct {
	table map[string]browser.Locator
}

// NewLocators merges overrides into DefaultLocators.
func NewLocators(overrides map[string][]config.LocatorSpec) (Locators, error) {
	table := DefaultLocators()
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		loc, err := browser.LocatorFromSpecs(name, overrides[name])
		if err != nil {
			return Locators{}, err
		}
		table[name] = loc
	}
	return Locators{table: table}, nil
}

// Get returns the named locator. Unknown names yield a locator with no
// strategies, which never resolves.
func (l Locators) Get(name string) browser.Locator {
	if loc, ok := l.table[name]; ok {
		return loc
	}
	return browser.Locator{Name: name}
}

// foldedText is the option text lower-cased for ASCII letters.
const foldedText = "translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz')"

// nationalityOption matches a dropdown entry whose text equals nationality,
// then any entry containing it. Both comparisons ignore case.
func nationalityOption(nationality string) browser.Locator {
	lit := xpathLiteral(strings.ToLower(strings.TrimSpace(nationality)))
	x := browser.XPath
	return browser.NewLocator("nationality-option",
		x(fmt.Sprintf("//li[contains(@class, 'p-dropdown-item')][%s=%s]", foldedText, lit)),
		x(fmt.Sprintf("//li[@role='option'][%s=%s]", foldedText, lit)),
		x(fmt.Sprintf("//li[contains(@class, 'p-dropdown-item')][contains(%s, %s)]", foldedText, lit)),
		x(fmt.Sprintf("//li[@role='option'][contains(%s, %s)]", foldedText, lit)),
		x(fmt.Sprintf("//option[contains(%s, %s)]", foldedText, lit)),
	)
}

// xpathLiteral quotes s as an XPath 1.0 string literal.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}
