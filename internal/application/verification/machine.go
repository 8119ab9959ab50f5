// Package verification drives phone-number collection, OTP request, code entry
// and code exchange for one client device.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/wave-api/internal/domain"
)

type State string

const (
	StateIdle          State = "idle"
	StateCodeRequested State = "code_requested"
	StateAwaitingCode  State = "awaiting_code"
	StateVerifying     State = "verifying"
	StateAuthenticated State = "authenticated"
	StateFailed        State = "failed"
)

const (
	msgEmptyNumber     = "Please enter a valid phone number."
	msgNoCountry       = "Select country code for your phone number please..."
	msgBadFormat       = "Invalid full phone number format."
	msgMissingCode     = "Missing code or verification ID"
	msgNothingToResend = "Request a code before asking to resend it."
	msgUnknownCountry  = "Unknown country code."
	msgSignedIn        = "Already signed in."
	msgBusy            = "Verification already in progress."
	msgBadDigit        = "Each code box holds a single digit."
	msgInternal        = "Something went wrong. Please try again."
)

// ErrSuperseded is returned when a provider call completed after a newer
// request or a cancel, so its result was discarded.
var ErrSuperseded = errors.New("superseded by a newer request")

// Provider is the identity provider the machine delegates to.
type Provider interface {
	DispatchOTP(ctx context.Context, phoneNumber string) (string, error)
	ExchangeCode(ctx context.Context, handle, code string) (*domain.Credential, error)
}

// Countries resolves regions and dial codes.
type Countries interface {
	ByISO(iso string) (domain.CountryCode, bool)
	MatchPrefix(number string) (domain.CountryCode, bool)
}

// Hints persists the last issued handle for a device as a resume hint.
type Hints interface {
	SaveHandle(ctx context.Context, deviceID, handle string) error
	LoadHandle(ctx context.Context, deviceID string) (string, error)
	ClearHandle(ctx context.Context, deviceID string) error
}

// Snapshot is a point-in-time copy of the machine.
type Snapshot struct {
	Version    uint64                      `json:"version"`
	State      State                       `json:"state"`
	Country    *domain.CountryCode         `json:"country,omitempty"`
	PhoneInput string                      `json:"phone_input"`
	Pending    *domain.PendingVerification `json:"pending,omitempty"`
	Error      string                      `json:"error,omitempty"`
	Session    *domain.Session             `json:"session,omitempty"`
}

// Machine is the verification state machine for one device. All methods are
// safe for concurrent use; provider calls run without holding the lock.
type Machine struct {
	deviceID  string
	provider  Provider
	countries Countries
	hints     Hints
	now       func() time.Time

	mu         sync.Mutex
	state      State
	country    *domain.CountryCode
	phoneInput string
	target     string // number the current handle was issued for
	requested  string // number of the most recent request, used by resend
	handle     string
	code       [domain.CodeLength]string
	errMsg     string
	session    *domain.Session
	credential *domain.Credential

	// reqSeq numbers RequestCode calls; a completion applies only when newer than appliedSeq.
	reqSeq     uint64
	appliedSeq uint64
	verifySeq  uint64

	version    uint64
	subs       map[int]chan Snapshot
	nextSub    int
	lastActive time.Time
}

// MachineDeps holds the collaborators for NewMachine. Countries and Hints may be nil.
type MachineDeps struct {
	DeviceID  string
	Provider  Provider
	Countries Countries
	Hints     Hints
}

func NewMachine(d MachineDeps) *Machine {
	return &Machine{
		deviceID:   d.DeviceID,
		provider:   d.Provider,
		countries:  d.Countries,
		hints:      d.Hints,
		now:        time.Now,
		state:      StateIdle,
		subs:       make(map[int]chan Snapshot),
		lastActive: time.Now(),
	}
}

// RequestCode asks the provider to send an OTP to fullPhoneNumber.
func (m *Machine) RequestCode(ctx context.Context, fullPhoneNumber string) error {
	full := strings.TrimSpace(fullPhoneNumber)

	m.mu.Lock()
	m.touchLocked()
	if m.state == StateAuthenticated {
		m.mu.Unlock()
		return domain.NewValidationError(msgSignedIn)
	}
	if !strings.HasPrefix(full, "+") || utf8.RuneCountInString(full) <= 4 {
		err := m.rejectLocked(msgBadFormat)
		m.mu.Unlock()
		return err
	}
	m.reqSeq++
	seq := m.reqSeq
	m.requested = full
	if m.handle == "" {
		m.state = StateCodeRequested
	}
	m.errMsg = ""
	m.publishLocked()
	m.mu.Unlock()

	handle, err := m.provider.DispatchOTP(ctx, full)

	m.mu.Lock()
	if seq <= m.appliedSeq {
		m.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrSuperseded
	}
	m.appliedSeq = seq
	if err != nil {
		m.failLocked(err)
		m.mu.Unlock()
		return err
	}
	m.handle = handle
	m.target = full
	m.code = [domain.CodeLength]string{}
	m.state = StateAwaitingCode
	m.errMsg = ""
	m.publishLocked()
	m.mu.Unlock()

	m.saveHint(ctx, handle)
	return nil
}

// RequestCodeForInput composes the number from the selected country and the
// entered local number, then calls RequestCode.
func (m *Machine) RequestCodeForInput(ctx context.Context) error {
	m.mu.Lock()
	m.touchLocked()
	input := strings.TrimSpace(m.phoneInput)
	if input == "" {
		err := m.rejectLocked(msgEmptyNumber)
		m.mu.Unlock()
		return err
	}
	if m.country == nil {
		err := m.rejectLocked(msgNoCountry)
		m.mu.Unlock()
		return err
	}
	full := strings.TrimSpace(m.country.DialCode + input)
	m.mu.Unlock()
	return m.RequestCode(ctx, full)
}

// ResendCode repeats the last request for the same number. The entered code
// is kept until the new handle arrives.
func (m *Machine) ResendCode(ctx context.Context) error {
	m.mu.Lock()
	target := m.requested
	if target == "" {
		err := m.rejectLocked(msgNothingToResend)
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	return m.RequestCode(ctx, target)
}

// SubmitCode exchanges the current handle and the given digits for a credential.
func (m *Machine) SubmitCode(ctx context.Context, digits []string) error {
	code, ok := joinDigits(digits)

	m.mu.Lock()
	m.touchLocked()
	switch m.state {
	case StateAuthenticated:
		m.mu.Unlock()
		return domain.NewValidationError(msgSignedIn)
	case StateVerifying:
		m.mu.Unlock()
		return domain.NewValidationError(msgBusy)
	}
	if !ok {
		err := m.rejectLocked(msgBadDigit)
		m.mu.Unlock()
		return err
	}
	if code == "" || m.handle == "" {
		err := m.rejectLocked(msgMissingCode)
		m.mu.Unlock()
		return err
	}
	handle := m.handle
	m.verifySeq++
	vseq := m.verifySeq
	m.setCodeLocked(digits)
	m.state = StateVerifying
	m.errMsg = ""
	m.publishLocked()
	m.mu.Unlock()

	cred, err := m.provider.ExchangeCode(ctx, handle, code)

	m.mu.Lock()
	if vseq != m.verifySeq {
		m.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrSuperseded
	}
	if err != nil {
		m.failLocked(err)
		m.mu.Unlock()
		return err
	}
	m.state = StateAuthenticated
	m.session = cred.Session
	m.credential = cred
	m.handle = ""
	m.code = [domain.CodeLength]string{}
	m.errMsg = ""
	m.appliedSeq = m.reqSeq
	m.publishLocked()
	m.mu.Unlock()

	m.clearHint(ctx)
	return nil
}

// SetPhoneInput records the typed number. A number that starts with a known
// dial code selects that country and keeps only the local part.
func (m *Machine) SetPhoneInput(input string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchLocked()
	if strings.HasPrefix(input, "+") && m.countries != nil {
		if c, ok := m.countries.MatchPrefix(input); ok {
			m.country = &c
			input = strings.TrimPrefix(input, c.DialCode)
		}
	}
	m.phoneInput = input
	m.publishLocked()
}

// SelectCountry picks the country by ISO region code.
func (m *Machine) SelectCountry(iso string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchLocked()
	if m.countries == nil {
		return domain.NewValidationError(msgUnknownCountry)
	}
	c, ok := m.countries.ByISO(iso)
	if !ok {
		return domain.NewValidationError(msgUnknownCountry)
	}
	m.country = &c
	m.publishLocked()
	return nil
}

// DetectRegion selects the first catalog entry for the device region unless a
// country is already chosen. It reports whether a country was selected.
func (m *Machine) DetectRegion(region string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.country != nil || m.countries == nil {
		return false
	}
	c, ok := m.countries.ByISO(region)
	if !ok {
		return false
	}
	m.country = &c
	m.publishLocked()
	return true
}

// SetDigit fills code box i. An empty digit clears the box; longer input keeps its last character.
func (m *Machine) SetDigit(i int, d string) error {
	d, ok := normalizeDigit(d)
	if i < 0 || i >= domain.CodeLength || !ok {
		return domain.NewValidationError(msgBadDigit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchLocked()
	m.code[i] = d
	m.publishLocked()
	return nil
}

// SetCode replaces every code box.
func (m *Machine) SetCode(digits []string) error {
	if _, ok := joinDigits(digits); !ok {
		return domain.NewValidationError(msgBadDigit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchLocked()
	m.setCodeLocked(digits)
	m.publishLocked()
	return nil
}

// Cancel abandons the pending verification and discards in-flight results.
func (m *Machine) Cancel(ctx context.Context) {
	m.mu.Lock()
	m.touchLocked()
	if m.state == StateAuthenticated {
		m.mu.Unlock()
		return
	}
	m.dropPendingLocked()
	m.publishLocked()
	m.mu.Unlock()
	m.clearHint(ctx)
}

// Reset signs out: the session and any pending verification are dropped.
// The selected country is kept.
func (m *Machine) Reset(ctx context.Context) {
	m.mu.Lock()
	m.touchLocked()
	m.dropPendingLocked()
	m.session = nil
	m.credential = nil
	m.phoneInput = ""
	m.publishLocked()
	m.mu.Unlock()
	m.clearHint(ctx)
}

// Resume adopts a persisted handle when the machine is idle. It reports whether one was adopted.
func (m *Machine) Resume(ctx context.Context) (bool, error) {
	m.mu.Lock()
	m.touchLocked()
	idle := m.state == StateIdle && m.handle == ""
	seq := m.reqSeq
	m.mu.Unlock()
	if !idle || m.hints == nil {
		return false, nil
	}

	handle, err := m.hints.LoadHandle(ctx, m.deviceID)
	if err != nil || handle == "" {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle || m.handle != "" || m.reqSeq != seq {
		return false, nil
	}
	m.handle = handle
	m.state = StateAwaitingCode
	m.publishLocked()
	return true, nil
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Credential returns the credential issued on authentication, or nil.
func (m *Machine) Credential() *domain.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credential
}

// Subscribe streams snapshots, starting with the current one. Slow readers
// only see the latest snapshot. Call cancel to stop.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Snapshot, 1)
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

func (m *Machine) closeSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

// idleSince treats a machine with open subscriptions as active.
func (m *Machine) idleSince() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.subs) > 0 {
		return m.now()
	}
	return m.lastActive
}

func (m *Machine) touchLocked() { m.lastActive = m.now() }

func (m *Machine) rejectLocked(msg string) error {
	m.errMsg = msg
	m.publishLocked()
	return domain.NewValidationError(msg)
}

func (m *Machine) failLocked(err error) {
	m.state = StateFailed
	m.errMsg = userMessage(err)
	m.publishLocked()
}

func (m *Machine) dropPendingLocked() {
	m.state = StateIdle
	m.handle = ""
	m.target = ""
	m.requested = ""
	m.code = [domain.CodeLength]string{}
	m.errMsg = ""
	m.appliedSeq = m.reqSeq
	m.verifySeq++
}

func (m *Machine) setCodeLocked(digits []string) {
	m.code = [domain.CodeLength]string{}
	for i := 0; i < len(digits) && i < domain.CodeLength; i++ {
		m.code[i], _ = normalizeDigit(digits[i])
	}
}

func (m *Machine) publishLocked() {
	m.version++
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		Version:    m.version,
		State:      m.state,
		PhoneInput: m.phoneInput,
		Error:      m.errMsg,
	}
	if m.country != nil {
		c := *m.country
		s.Country = &c
	}
	if m.handle != "" || m.state == StateCodeRequested {
		phone := m.target
		if phone == "" {
			phone = m.requested
		}
		s.Pending = &domain.PendingVerification{
			PhoneNumber: phone,
			Handle:      m.handle,
			Code:        m.code,
			Error:       m.errMsg,
		}
	}
	if m.session != nil {
		sess := *m.session
		s.Session = &sess
	}
	return s
}

func (m *Machine) saveHint(ctx context.Context, handle string) {
	if m.hints == nil {
		return
	}
	if err := m.hints.SaveHandle(ctx, m.deviceID, handle); err != nil {
		slog.Warn("failed to save verification hint", "device_id", m.deviceID, "err", err)
	}
}

func (m *Machine) clearHint(ctx context.Context) {
	if m.hints == nil {
		return
	}
	if err := m.hints.ClearHandle(ctx, m.deviceID); err != nil {
		slog.Warn("failed to clear verification hint", "device_id", m.deviceID, "err", err)
	}
}

// userMessage returns the text shown for err: provider and validation text as-is.
func userMessage(err error) string {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return pe.Msg
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Msg
	}
	slog.Error("verification provider call failed", "err", err)
	return msgInternal
}

func normalizeDigit(d string) (string, bool) {
	d = strings.TrimSpace(d)
	if d == "" {
		return "", true
	}
	last := d[len(d)-1]
	if last < '0' || last > '9' {
		return "", false
	}
	return string(last), true
}

// joinDigits concatenates the code boxes. It reports false for more than
// CodeLength boxes or a box holding anything but a digit.
func joinDigits(digits []string) (string, bool) {
	if len(digits) > domain.CodeLength {
		return "", false
	}
	var b strings.Builder
	for _, raw := range digits {
		d, ok := normalizeDigit(raw)
		if !ok {
			return "", false
		}
		b.WriteString(d)
	}
	return b.String(), true
}
