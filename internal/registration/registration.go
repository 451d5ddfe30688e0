// Package registration holds the steps that register one record on the
// visa portal: open the page, switch to English, pick the guest type, fill
// the two identity pages and hand the account and OTP pages to the operator.
package registration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/config"
	"github.com/xkilldash9x/registrar/internal/mailbox"
	"github.com/xkilldash9x/registrar/internal/pipeline"
)

// Step names, in execution order.
const (
	StepNavigate       = "navigate"
	StepSwitchLanguage = "switch-language"
	StepGuestType      = "select-guest-type"
	StepIdentity       = "fill-identity-fields"
	StepPersonal       = "fill-personal-fields"
	StepCreateAccount  = "create-account"
	StepVerifyOTP      = "verify-otp"
)

// PlaceholderEmail is recorded when no mailbox could be provisioned and the
// operator entered the address by hand.
const PlaceholderEmail = "MANUAL_INPUT_COMPLETED"

const loadPollInterval = 500 * time.Millisecond

var englishMarkers = []string{"create account", "foreign guest"}

// OTPSource provisions a mailbox and waits for a one-time code in it.
// *mailbox.Poller implements it.
type OTPSource interface {
	Provision(ctx context.Context) (*mailbox.Mailbox, error)
	WaitForOTP(ctx context.Context, mb *mailbox.Mailbox, timeout time.Duration) (string, error)
}

var _ OTPSource = (*mailbox.Poller)(nil)

// Flow builds the registration steps from configuration.
type Flow struct {
	cfg        config.RegistrationConfig
	otpTimeout time.Duration
	locators   Locators
	policy     pipeline.ManualPolicy
	otp        OTPSource
	logger     *zap.Logger
}

// New creates a Flow. otp may be nil, in which case the account page is left
// entirely to the operator.
func New(cfg config.Interface, otp OTPSource, logger *zap.Logger) (*Flow, error) {
	reg := cfg.Registration()
	locators, err := NewLocators(reg.Locators)
	if err != nil {
		return nil, fmt.Errorf("registration locators: %w", err)
	}
	policy, err := pipeline.ParseManualPolicy(reg.ManualPolicy)
	if err != nil {
		return nil, err
	}
	return &Flow{
		cfg:        reg,
		otpTimeout: cfg.Mail().OTPTimeout,
		locators:   locators,
		policy:     policy,
		otp:        otp,
		logger:     logger.Named("registration"),
	}, nil
}

// Steps returns the registration steps in order.
func (f *Flow) Steps() []pipeline.Step {
	return []pipeline.Step{
		pipeline.StepFunc{StepName: StepNavigate, Fn: f.navigate},
		pipeline.StepFunc{StepName: StepSwitchLanguage, Fn: f.switchLanguage},
		pipeline.StepFunc{StepName: StepGuestType, Fn: f.selectGuestType},
		pipeline.StepFunc{StepName: StepIdentity, Fn: f.fillIdentity},
		pipeline.StepFunc{StepName: StepPersonal, Fn: f.fillPersonal},
		pipeline.StepFunc{StepName: StepCreateAccount, Fn: f.createAccount},
		pipeline.StepFunc{StepName: StepVerifyOTP, Fn: f.verifyOTP},
	}
}

// Pipeline wraps Steps in a pipeline.
func (f *Flow) Pipeline(logger *zap.Logger) *pipeline.Pipeline {
	return pipeline.New(logger, f.Steps()...)
}

func (f *Flow) stepLogger(a *pipeline.Attempt, step string) *zap.Logger {
	return f.logger.With(zap.Int("row", a.Item.RowNumber), zap.String("step", step))
}

func (f *Flow) navigate(ctx context.Context, s pipeline.Session, a *pipeline.Attempt) error {
	logger := f.stepLogger(a, StepNavigate)
	if err := s.Navigate(ctx, f.cfg.BaseURL); err != nil {
		return err
	}

	pollCtx, cancel := context.WithTimeout(ctx, f.cfg.PageLoadTimeout)
	defer cancel()

	// Content is measured on the full document source, not the visible text.
	keyword := strings.ToLower(f.cfg.TitleKeyword)
	var (
		title  string
		loaded bool
		titled bool
	)
	for {
		var err error
		title, err = s.Title(ctx)
		if err != nil {
			logger.Debug("Title not readable yet.", zap.Error(err))
		}
		source, err := s.PageSource(ctx)
		if err != nil {
			logger.Debug("Page source not readable yet.", zap.Error(err))
		}
		loaded = title != "" && len(source) > f.cfg.MinContentLength
		titled = keyword != "" && strings.Contains(strings.ToLower(title), keyword)
		if loaded || titled {
			break
		}
		if pipeline.Wait(pollCtx, loadPollInterval) != nil {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if loaded || titled {
		logger.Info("Registration page loaded.", zap.String("title", title), zap.Bool("content_loaded", loaded))
		return nil
	}
	return pipeline.Fail(pipeline.CodeNavigationError, "page did not finish loading within %s (title %q)", f.cfg.PageLoadTimeout, title)
}

func (f *Flow) switchLanguage(ctx context.Context, s pipeline.Session, a *pipeline.Attempt) error {
	logger := f.stepLogger(a, StepSwitchLanguage)
	if f.inEnglish(ctx, s) {
		logger.Info("Page already in English.")
		return nil
	}
	if err := s.Click(ctx, f.locators.Get(LocLanguageToggle)); err != nil {
		return err
	}
	if err := pipeline.Wait(ctx, f.cfg.SettleDelay); err != nil {
		return err
	}
	if err := s.Click(ctx, f.locators.Get(LocEnglishOption)); err != nil {
		return err
	}
	if err := pipeline.Wait(ctx, f.cfg.SettleDelay); err != nil {
		return err
	}
	if !f.inEnglish(ctx, s) {
		return pipeline.Fail(pipeline.CodeValidationError, "page not in English after switching language")
	}
	logger.Info("Switched page to English.")
	return nil
}

func (f *Flow) inEnglish(ctx context.Context, s pipeline.Session) bool {
	body, err := s.BodyText(ctx)
	if err != nil {
		return false
	}
	body = strings.ToLower(body)
	for _, m := range englishMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

func (f *Flow) selectGuestType(ctx context.Context, s pipeline.Session, a *pipeline.Attempt) error {
	if err := s.Click(ctx, f.locators.Get(LocGuestType)); err != nil {
		return err
	}
	f.stepLogger(a, StepGuestType).Info("Selected foreign guest.")
	return pipeline.Wait(ctx, f.cfg.SettleDelay)
}

func (f *Flow) fillIdentity(ctx context.Context, s pipeline.Session, a *pipeline.Attempt) error {
	logger := f.stepLogger(a, StepIdentity)
	fields := f.cfg.Fields

	visa := a.Item.First(fields.Visa...)
	if visa == "" {
		return pipeline.Fail(pipeline.CodeValidationError, "visa number is empty (looked in %v)", fields.Visa)
	}
	nationality := a.Item.First(fields.Nationality...)
	if nationality == "" {
		return pipeline.Fail(pipeline.CodeValidationError, "nationality is empty (looked in %v)", fields.Nationality)
	}
	passport := a.Item.First(fields.Passport...)
	if passport == "" {
		passport = f.cfg.DefaultPassport
		if passport == "" {
			return pipeline.Fail(pipeline.CodeValidationError, "passport number is empty and no default is configured")
		}
		logger.Warn("Passport number missing; using configured default.")
	}

	if err := s.Type(ctx, f.locators.Get(LocVisaInput), visa); err != nil {
		return err
	}
	if err := f.selectNationality(ctx, s, nationality, logger); err != nil {
		return err
	}
	if err := s.Type(ctx, f.locators.Get(LocPassportInput), passport); err != nil {
		return err
	}
	if err := s.Click(ctx, f.locators.Get(LocNextButton)); err != nil {
		return err
	}
	logger.Info("Identity fields submitted.")
	return pipeline.Wait(ctx, f.cfg.SettleDelay)
}

func (f *Flow) selectNationality(ctx context.Context, s pipeline.Session, nationality string, logger *zap.Logger) error {
	if err := s.Click(ctx, f.locators.Get(LocNationalityOpen)); err != nil {
		return err
	}
	filter := f.locators.Get(LocNationalityFilter)
	if ok, _ := s.Exists(ctx, filter); ok {
		if err := s.Type(ctx, filter, nationality); err != nil {
			logger.Debug("Could not type into nationality filter.", zap.Error(err))
		}
	}
	if err := s.Click(ctx, nationalityOption(nationality)); err != nil {
		return fmt.Errorf("nationality %q: %w", nationality, err)
	}
	logger.Debug("Selected nationality.", zap.String("nationality", nationality))
	return nil
}

func (f *Flow) fillPersonal(ctx context.Context, s pipeline.Session, a *pipeline.Attempt) error {
	logger := f.stepLogger(a, StepPersonal)
	fields := f.cfg.Fields

	dob := strings.ReplaceAll(a.Item.First(fields.DOB...), "/", "-")
	if dob == "" {
		return pipeline.Fail(pipeline.CodeValidationError, "date of birth is empty (looked in %v)", fields.DOB)
	}
	mobile := a.Item.First(fields.Phone...)
	if mobile == "" {
		return pipeline.Fail(pipeline.CodeValidationError, "mobile number is empty (looked in %v)", fields.Phone)
	}

	if err := s.Type(ctx, f.locators.Get(LocDOBInput), dob); err != nil {
		return err
	}
	// Tab closes the date picker overlay.
	if err := s.PressKey(ctx, "Tab"); err != nil {
		return err
	}
	if err := s.Click(ctx, f.locators.Get(genderLocator(a.Item.First(fields.Sex...)))); err != nil {
		return err
	}
	if err := s.Type(ctx, f.locators.Get(LocMobileInput), mobile); err != nil {
		return err
	}
	if err := s.Click(ctx, f.locators.Get(LocNoAssistance)); err != nil {
		logger.Warn("Could not select the no-assistance option; continuing.", zap.Error(err))
	}
	if err := s.Click(ctx, f.locators.Get(LocNextButton)); err != nil {
		return err
	}
	logger.Info("Personal fields submitted.")
	return pipeline.Wait(ctx, f.cfg.SettleDelay)
}

// genderLocator maps a sheet value to a locator name; unknown values select male.
func genderLocator(sex string) string {
	switch strings.ToUpper(strings.TrimSpace(sex)) {
	case "F", "FEMALE":
		return LocGenderFemale
	}
	return LocGenderMale
}

func (f *Flow) createAccount(ctx context.Context, s pipeline.Session, a *pipeline.Attempt) error {
	logger := f.stepLogger(a, StepCreateAccount)

	a.Email = PlaceholderEmail
	if f.otp != nil {
		mb, err := f.otp.Provision(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			logger.Warn("Mailbox provisioning failed; email must be entered by hand.",
				zap.String("code", string(pipeline.Classify(err))), zap.Error(err))
		default:
			a.Mailbox = mb
			a.Email = mb.Address
			f.fillEmail(ctx, s, mb.Address, logger)
		}
	}

	logger.Info("Waiting for the operator to complete account creation.", zap.Duration("window", f.cfg.AccountWindow))
	if err := pipeline.Wait(ctx, f.cfg.AccountWindow); err != nil {
		return err
	}
	found, err := s.Exists(ctx, f.locators.Get(LocAccountSuccess))
	if err != nil {
		return err
	}
	return f.policy.Resolve(found, StepCreateAccount, logger)
}

func (f *Flow) fillEmail(ctx context.Context, s pipeline.Session, address string, logger *zap.Logger) {
	loc := f.locators.Get(LocEmailInput)
	if ok, _ := s.Exists(ctx, loc); !ok {
		logger.Debug("No email field on page.")
		return
	}
	if err := s.Type(ctx, loc, address); err != nil {
		logger.Warn("Could not type the email address.", zap.Error(err))
		return
	}
	logger.Info("Filled email address.", zap.String("email", address))
}

func (f *Flow) verifyOTP(ctx context.Context, s pipeline.Session, a *pipeline.Attempt) error {
	logger := f.stepLogger(a, StepVerifyOTP)
	if err := pipeline.Wait(ctx, f.cfg.OTPSettle); err != nil {
		return err
	}

	present, err := s.Exists(ctx, f.locators.Get(LocOTPInput))
	if err != nil {
		return err
	}
	if !present {
		body, err := s.BodyText(ctx)
		if err != nil {
			return err
		}
		lower := strings.ToLower(body)
		if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
			return &pipeline.StepError{
				Code: pipeline.CodeManualStepTimeout,
				Step: StepVerifyOTP,
				Err:  fmt.Errorf("%w: page reports an error", pipeline.ErrManualTimeout),
			}
		}
		logger.Warn("OTP page not detected; assuming account creation succeeded.")
		return nil
	}

	if !f.enterOTP(ctx, s, a, logger) {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info("Waiting for the operator to enter the OTP.", zap.Duration("window", f.cfg.OTPWindow))
		if err := pipeline.Wait(ctx, f.cfg.OTPWindow); err != nil {
			return err
		}
	}

	found, err := s.Exists(ctx, f.locators.Get(LocVerificationResult))
	if err != nil {
		return err
	}
	return f.policy.Resolve(found, StepVerifyOTP, logger)
}

// enterOTP polls the mailbox and submits the code. It reports whether a code
// was typed.
func (f *Flow) enterOTP(ctx context.Context, s pipeline.Session, a *pipeline.Attempt, logger *zap.Logger) bool {
	if f.otp == nil || a.Mailbox == nil {
		return false
	}
	code, err := f.otp.WaitForOTP(ctx, a.Mailbox, f.otpTimeout)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("No OTP received; falling back to manual entry.",
				zap.String("code", string(pipeline.Classify(err))), zap.Error(err))
		}
		return false
	}
	if err := s.Type(ctx, f.locators.Get(LocOTPInput), code); err != nil {
		logger.Warn("Could not type the OTP.", zap.Error(err))
		return false
	}
	if err := s.Click(ctx, f.locators.Get(LocVerifyButton)); err != nil {
		logger.Warn("Could not click verify; the page may submit on its own.", zap.Error(err))
	}
	logger.Info("OTP submitted.")
	if err := pipeline.Wait(ctx, f.cfg.SettleDelay); err != nil {
		return false
	}
	return true
}
