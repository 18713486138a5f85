package verify

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ardelia/frontdesk/pkg/errorsx"
)

// State tracks where a call sits in the verification and booking flow.
type State string

const (
	StateUnverified    State = "unverified"
	StateCodeSent      State = "code_sent"
	StateVerified      State = "verified"
	StateBooked        State = "booked"
	StateLimitExceeded State = "limit_exceeded"
)

const codeDigits = 4

// SMSSender delivers a one-time code out of band.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// Booker forwards a booking request to the scheduling backend.
type Booker interface {
	Book(ctx context.Context, req BookingRequest) (BookingOutcome, error)
}

// Appointment carries the fields the caller asked to book.
type Appointment struct {
	DateTime   string `json:"date_time"`
	ClientName string `json:"client_name"`
	Service    string `json:"service"`
	Staff      string `json:"staff,omitempty"`
}

// BookingRequest is an Appointment plus the call-scoped routing fields.
type BookingRequest struct {
	Appointment
	AssistantNumber string `json:"assistant_number"`
	CallerNumber    string `json:"caller_number"`
}

// BookingOutcome is the backend's answer, passed through verbatim.
type BookingOutcome struct {
	OK      bool
	Payload json.RawMessage
}

// Result is the structured outcome handed back to the tool caller.
type Result struct {
	Success bool            `json:"success"`
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

type Options struct {
	SMS             SMSSender
	Booker          Booker
	CallerNumber    string
	AssistantNumber string
	SMSLimit        int
	Logger          *slog.Logger
}

// Machine gates booking behind SMS code verification for one call. The gate
// is enforced here, in code: the model upstream is instructed to verify
// first, but its compliance is not trusted.
type Machine struct {
	mu        sync.Mutex
	state     State
	code      string
	attempts  int
	limit     int
	verified  bool
	sms       SMSSender
	booker    Booker
	caller    string
	assistant string
	logger    *slog.Logger
	genCode   func() (string, error)
}

func New(opts Options) *Machine {
	if opts.SMSLimit <= 0 {
		opts.SMSLimit = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Machine{
		state:     StateUnverified,
		limit:     opts.SMSLimit,
		sms:       opts.SMS,
		booker:    opts.Booker,
		caller:    opts.CallerNumber,
		assistant: opts.AssistantNumber,
		logger:    opts.Logger,
		genCode:   randomCode,
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *Machine) Verified() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verified
}

// SendCode issues a fresh one-time code and dispatches it via SMS without
// blocking the caller's turn. Once the issuance cap is reached no code is
// generated and the stored code is left untouched.
func (m *Machine) SendCode(ctx context.Context) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attempts >= m.limit {
		m.state = StateLimitExceeded
		return Result{
			Status:  "limit_exceeded",
			Message: fmt.Sprintf("verification SMS limit of %d reached for this call", m.limit),
		}
	}

	code, err := m.genCode()
	if err != nil {
		return Result{Status: "error", Message: "could not generate a verification code"}
	}
	m.code = code
	m.attempts++
	m.state = StateCodeSent

	to := m.caller
	body := "Your verification code is " + code
	go func() {
		if err := m.sms.Send(context.WithoutCancel(ctx), to, body); err != nil {
			m.logger.Error("verification_sms_failed",
				"reason_code", string(errorsx.ReasonSMSDispatch),
				"error", err.Error())
		}
	}()

	return Result{Success: true, Status: "code_sent", Message: "verification code sent via SMS"}
}

// CheckCode compares the caller's read-back against the most recently issued
// code. Anything but an exact digit match fails and leaves the verified flag
// alone.
func (m *Machine) CheckCode(submitted string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	digits := normalizeDigits(submitted)
	if m.code == "" || digits != m.code {
		return Result{Status: "invalid_code", Message: "the code does not match"}
	}
	m.verified = true
	m.state = StateVerified
	return Result{Success: true, Status: "verified", Message: "caller verified"}
}

// Book forwards the appointment to the scheduling backend. It refuses
// without contacting the backend unless the caller has been verified.
func (m *Machine) Book(ctx context.Context, appt Appointment) Result {
	m.mu.Lock()
	if !m.verified {
		m.mu.Unlock()
		return Result{Status: "verification_required", Message: "caller must verify a code before booking"}
	}
	req := BookingRequest{
		Appointment:     appt,
		AssistantNumber: m.assistant,
		CallerNumber:    m.caller,
	}
	m.mu.Unlock()

	outcome, err := m.booker.Book(ctx, req)
	if err != nil {
		m.logger.Error("booking_failed",
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error())
		return Result{Status: "booking_failed", Message: err.Error()}
	}
	if !outcome.OK {
		return Result{Status: "booking_failed", Detail: outcome.Payload}
	}

	m.mu.Lock()
	m.state = StateBooked
	m.mu.Unlock()
	return Result{Success: true, Status: "booked", Detail: outcome.Payload}
}

func normalizeDigits(in string) string {
	var b strings.Builder
	for _, r := range in {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func randomCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
