package admission

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"github.com/tcfw/votem/internal/utils/logging"
	"golang.org/x/crypto/sha3"
)

const (
	DefaultOTPExpiry = 300 * time.Second

	issuer = "BlockchainVote"

	otpMin   = 100000
	otpRange = 900000

	qrSize = 256
)

var (
	ErrAlreadyRegistered = errors.New("voter already registered")
	ErrNotRegistered     = errors.New("voter not registered")
	ErrUnknownVoter      = errors.New("no pending code for voter")
	ErrOTPExpired        = errors.New("one-time code expired")
	ErrOTPMismatch       = errors.New("one-time code mismatch")
)

// AuthFactors are handed to a newly registered voter through a channel
// outside the ledger.
type AuthFactors struct {
	OTP             string
	Expires         time.Time
	Secret          string
	ProvisioningURI string
	QRCode          []byte
}

type pendingCode struct {
	code    string
	expires time.Time
}

// Registry tracks which addresses may vote. A voter must be registered and
// then prove possession of the one-time code before it is verified.
type Registry struct {
	mu sync.Mutex

	registered map[string]struct{}
	verified   map[string]struct{}
	pending    map[string]pendingCode

	now    func() time.Time
	expiry time.Duration
	logger *logrus.Entry
}

func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		registered: make(map[string]struct{}),
		verified:   make(map[string]struct{}),
		pending:    make(map[string]pendingCode),
		now:        time.Now,
		expiry:     DefaultOTPExpiry,
		logger:     logging.Component("admission"),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// RegisterVoter registers addr and issues its first one-time code along
// with the authenticator secret.
func (r *Registry) RegisterVoter(addr string) (*AuthFactors, error) {
	if addr == "" {
		return nil, errors.New("empty voter address")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.registered[addr]; ok {
		return nil, ErrAlreadyRegistered
	}

	code, expires, err := r.issueLocked(addr)
	if err != nil {
		return nil, err
	}

	secret, err := authSecret(addr, r.now())
	if err != nil {
		return nil, err
	}

	uri := provisioningURI(addr, secret)

	qr, err := qrcode.Encode(uri, qrcode.Medium, qrSize)
	if err != nil {
		delete(r.pending, addr)
		return nil, errors.Wrap(err, "rendering provisioning qr code")
	}

	r.registered[addr] = struct{}{}

	r.logger.WithField("voter", addr).Info("registered voter")

	return &AuthFactors{
		OTP:             code,
		Expires:         expires,
		Secret:          secret,
		ProvisioningURI: uri,
		QRCode:          qr,
	}, nil
}

// IssueOTP replaces any pending code for a registered voter.
func (r *Registry) IssueOTP(addr string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.registered[addr]; !ok {
		return "", ErrNotRegistered
	}

	code, _, err := r.issueLocked(addr)
	return code, err
}

func (r *Registry) issueLocked(addr string) (string, time.Time, error) {
	code, err := generateOTP()
	if err != nil {
		return "", time.Time{}, err
	}

	expires := r.now().Add(r.expiry)
	r.pending[addr] = pendingCode{code: code, expires: expires}

	return code, expires, nil
}

// VerifyOTP consumes the pending code for addr. A mismatched code is kept so
// the voter can retry until it expires.
func (r *Registry) VerifyOTP(addr string, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[addr]
	if !ok {
		return ErrUnknownVoter
	}

	if r.now().After(p.expires) {
		delete(r.pending, addr)
		return ErrOTPExpired
	}

	if p.code != code {
		r.logger.WithField("voter", addr).Debug("one-time code mismatch")
		return ErrOTPMismatch
	}

	delete(r.pending, addr)
	r.verified[addr] = struct{}{}

	r.logger.WithField("voter", addr).Info("verified voter")

	return nil
}

func (r *Registry) IsRegistered(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.registered[addr]
	return ok
}

func (r *Registry) IsVerified(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.verified[addr]
	return ok
}

func (r *Registry) Registered() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.registered)
}

func (r *Registry) Verified() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.verified)
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpRange))
	if err != nil {
		return "", errors.Wrap(err, "generating one-time code")
	}

	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

func authSecret(addr string, now time.Time) (string, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "generating secret salt")
	}

	h := sha3.New256()
	fmt.Fprintf(h, "%s:%d:", addr, now.UnixNano())
	h.Write(salt)

	return hex.EncodeToString(h.Sum(nil)), nil
}

func provisioningURI(addr string, secret string) string {
	q := url.Values{}
	q.Set("secret", secret)
	q.Set("issuer", issuer)

	return fmt.Sprintf("otpauth://totp/%s:%s?%s", issuer, url.PathEscape(addr), q.Encode())
}
