package admission

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestRegistry(t *testing.T, c *fakeClock) *Registry {
	r, err := NewRegistry(WithClock(c.Now), WithOTPExpiry(time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	return r
}

func TestRegisterVoter(t *testing.T) {
	c := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, c)

	f, err := r.RegisterVoter("V1")
	if err != nil {
		t.Fatal(err)
	}

	assert.Len(t, f.OTP, 6)
	code, err := strconv.Atoi(f.OTP)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, code, 100000)
	assert.LessOrEqual(t, code, 999999)

	assert.Equal(t, c.t.Add(time.Minute), f.Expires)
	assert.Len(t, f.Secret, 64)
	assert.True(t, strings.HasPrefix(f.ProvisioningURI, "otpauth://totp/BlockchainVote:V1?"))
	assert.Contains(t, f.ProvisioningURI, f.Secret)
	assert.True(t, bytes.HasPrefix(f.QRCode, []byte("\x89PNG")))

	assert.True(t, r.IsRegistered("V1"))
	assert.False(t, r.IsVerified("V1"))

	_, err = r.RegisterVoter("V1")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, 1, r.Registered())
}

func TestVerifyRetryAfterMismatch(t *testing.T) {
	c := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, c)

	f, err := r.RegisterVoter("V1")
	if err != nil {
		t.Fatal(err)
	}

	wrong := "000000"
	if f.OTP == wrong {
		wrong = "000001"
	}

	assert.ErrorIs(t, r.VerifyOTP("V1", wrong), ErrOTPMismatch)
	assert.False(t, r.IsVerified("V1"))

	assert.NoError(t, r.VerifyOTP("V1", f.OTP))
	assert.True(t, r.IsVerified("V1"))
	assert.Equal(t, 1, r.Verified())

	// codes are single use
	assert.ErrorIs(t, r.VerifyOTP("V1", f.OTP), ErrUnknownVoter)
}

func TestVerifyExpired(t *testing.T) {
	c := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, c)

	f, err := r.RegisterVoter("V1")
	if err != nil {
		t.Fatal(err)
	}

	c.t = c.t.Add(2 * time.Minute)

	assert.ErrorIs(t, r.VerifyOTP("V1", f.OTP), ErrOTPExpired)
	assert.ErrorIs(t, r.VerifyOTP("V1", f.OTP), ErrUnknownVoter)
	assert.False(t, r.IsVerified("V1"))
}

func TestIssueOTPLastWins(t *testing.T) {
	c := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, c)

	_, err := r.IssueOTP("V1")
	assert.ErrorIs(t, err, ErrNotRegistered)

	first, err := r.RegisterVoter("V1")
	if err != nil {
		t.Fatal(err)
	}

	second, err := r.IssueOTP("V1")
	require.NoError(t, err)

	if first.OTP != second {
		assert.ErrorIs(t, r.VerifyOTP("V1", first.OTP), ErrOTPMismatch)
	}
	assert.NoError(t, r.VerifyOTP("V1", second))
}

func TestVerifyUnknown(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatal(err)
	}

	assert.ErrorIs(t, r.VerifyOTP("nobody", "123456"), ErrUnknownVoter)
}

func TestInvalidOptions(t *testing.T) {
	_, err := NewRegistry(WithOTPExpiry(0))
	assert.Error(t, err)

	_, err = NewRegistry(WithClock(nil))
	assert.Error(t, err)
}
