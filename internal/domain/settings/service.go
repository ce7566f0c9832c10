package settings

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Mask replaces configured secrets in read-back views.
const Mask = "********"

// Cipher encrypts credentials before they are stored. Decrypt never fails:
// unreadable blobs come back as "".
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) string
}

// ValidationError reports an invalid settings update.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// Secret is the read-back form of an encrypted credential.
type Secret struct {
	Value        string
	IsConfigured bool
}

// View is the admin read-back of the settings, with secrets masked.
type View struct {
	Settings           Settings
	PaymentAccessToken Secret
	SMTPPassword       Secret
	WebhookSecret      Secret
}

// Credentials are decrypted integration secrets for internal use only.
type Credentials struct {
	PaymentAccessToken string
	SMTPPassword       string
	WebhookSecret      string
}

// Patch is an admin update. Nil fields are left unchanged. An empty string
// in a secret field clears the secret.
type Patch struct {
	TaxRate             *decimal.Decimal
	ProcessorFeePercent *decimal.Decimal
	ProcessorFixedFee   *decimal.Decimal
	DefaultProfitMargin *decimal.Decimal
	MaxInstallments     *int
	NoFeeInstallments   *int
	MinInstallmentValue *decimal.Decimal
	UseManualRate       *bool
	ManualRate          *decimal.Decimal
	RateSpread          *decimal.Decimal
	PaymentPublicKey    *string
	SMTPHost            *string
	SMTPUser            *string
	PaymentAccessToken  *string
	SMTPPassword        *string
	WebhookSecret       *string
}

// Service exposes settings to admin callers and internal consumers.
type Service struct {
	repo   Repository
	cipher Cipher
	now    func() time.Time
}

// NewService creates a settings Service.
func NewService(repo Repository, cipher Cipher) *Service {
	return &Service{repo: repo, cipher: cipher, now: time.Now}
}

// Get returns the raw settings, secrets still encrypted.
func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

// View returns the settings with every secret masked.
func (s *Service) View(ctx context.Context) (*View, error) {
	st, err := s.repo.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get settings")
	}
	return s.view(st), nil
}

func (s *Service) view(st *Settings) *View {
	v := &View{
		Settings:           *st,
		PaymentAccessToken: s.mask(st.PaymentAccessToken),
		SMTPPassword:       s.mask(st.SMTPPassword),
		WebhookSecret:      s.mask(st.WebhookSecret),
	}
	v.Settings.PaymentAccessToken = v.PaymentAccessToken.Value
	v.Settings.SMTPPassword = v.SMTPPassword.Value
	v.Settings.WebhookSecret = v.WebhookSecret.Value
	return v
}

func (s *Service) mask(blob string) Secret {
	if blob == "" || s.cipher.Decrypt(blob) == "" {
		return Secret{}
	}
	return Secret{Value: Mask, IsConfigured: true}
}

// Credentials decrypts the stored secrets. Secrets that cannot be decrypted
// are treated as not configured.
func (s *Service) Credentials(ctx context.Context) (Credentials, error) {
	st, err := s.repo.Get(ctx)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "get settings")
	}
	return Credentials{
		PaymentAccessToken: s.cipher.Decrypt(st.PaymentAccessToken),
		SMTPPassword:       s.cipher.Decrypt(st.SMTPPassword),
		WebhookSecret:      s.cipher.Decrypt(st.WebhookSecret),
	}, nil
}

// Update applies p and returns the masked result.
func (s *Service) Update(ctx context.Context, p Patch) (*View, error) {
	st, err := s.repo.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get settings")
	}

	setDecimal(&st.TaxRate, p.TaxRate)
	setDecimal(&st.ProcessorFeePercent, p.ProcessorFeePercent)
	setDecimal(&st.ProcessorFixedFee, p.ProcessorFixedFee)
	setDecimal(&st.DefaultProfitMargin, p.DefaultProfitMargin)
	setDecimal(&st.MinInstallmentValue, p.MinInstallmentValue)
	setDecimal(&st.ManualRate, p.ManualRate)
	setDecimal(&st.RateSpread, p.RateSpread)
	if p.MaxInstallments != nil {
		st.MaxInstallments = *p.MaxInstallments
	}
	if p.NoFeeInstallments != nil {
		st.NoFeeInstallments = *p.NoFeeInstallments
	}
	if p.UseManualRate != nil {
		st.UseManualRate = *p.UseManualRate
	}
	if p.PaymentPublicKey != nil {
		st.PaymentPublicKey = *p.PaymentPublicKey
	}
	if p.SMTPHost != nil {
		st.SMTPHost = *p.SMTPHost
	}
	if p.SMTPUser != nil {
		st.SMTPUser = *p.SMTPUser
	}

	if err := validate(st); err != nil {
		return nil, err
	}

	for _, sec := range []struct {
		in  *string
		out *string
	}{
		{p.PaymentAccessToken, &st.PaymentAccessToken},
		{p.SMTPPassword, &st.SMTPPassword},
		{p.WebhookSecret, &st.WebhookSecret},
	} {
		if sec.in == nil || *sec.in == Mask {
			continue
		}
		if *sec.in == "" {
			*sec.out = ""
			continue
		}
		blob, err := s.cipher.Encrypt(*sec.in)
		if err != nil {
			return nil, errors.Wrap(err, "encrypt credential")
		}
		*sec.out = blob
	}

	st.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, errors.Wrap(err, "update settings")
	}
	return s.view(st), nil
}

func setDecimal(dst *decimal.Decimal, src *decimal.Decimal) {
	if src != nil {
		*dst = *src
	}
}

var hundred = decimal.NewFromInt(100)

func validate(st *Settings) error {
	for _, f := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"tax rate", st.TaxRate},
		{"processor fee", st.ProcessorFeePercent},
		{"processor fixed fee", st.ProcessorFixedFee},
		{"profit margin", st.DefaultProfitMargin},
		{"minimum installment", st.MinInstallmentValue},
		{"rate spread", st.RateSpread},
		{"manual rate", st.ManualRate},
	} {
		if f.v.IsNegative() {
			return &ValidationError{Field: f.name, Reason: "must not be negative"}
		}
	}
	if st.ProcessorFeePercent.GreaterThanOrEqual(hundred) {
		return &ValidationError{Field: "processor fee", Reason: "must be below 100%"}
	}
	if st.MaxInstallments < 1 {
		return &ValidationError{Field: "max installments", Reason: "must be at least 1"}
	}
	if st.NoFeeInstallments < 0 || st.NoFeeInstallments > st.MaxInstallments {
		return &ValidationError{Field: "fee-free installments", Reason: "must be between 0 and max installments"}
	}
	return nil
}
