package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/internal/qrscan"
	apperrors "github.com/R3E-Network/payflow/internal/errors"
	"github.com/R3E-Network/payflow/internal/state"
)

const (
	// ImageAttempts bounds the QR image fetch. The backend renders images
	// lazily and may fail the first requests after a code is created.
	ImageAttempts = 3
	// ImageRetryDelay separates image fetch attempts.
	ImageRetryDelay = time.Second

	// MsgImageUnavailable is recorded once every image attempt failed.
	MsgImageUnavailable = "Failed to load QR code image. Please try again."
)

// QRCodeData is the state owned by QRCodeStore.
type QRCodeData struct {
	Codes   []domain.QRCode
	Current *domain.QRCode
	// Image is the base64 payload of the current code's image.
	Image string
}

// QRCodeStore holds the user's payment QR codes.
type QRCodeStore struct {
	base
	state *state.Container[QRCodeData]

	// AfterPayment, when set, runs after Pay succeeds.
	AfterPayment AfterPaymentFunc
}

// NewQRCodeStore creates an empty QR code store.
func NewQRCodeStore(deps Deps) *QRCodeStore {
	return &QRCodeStore{
		base:  newBase("qr_codes", deps),
		state: state.New(QRCodeData{}),
	}
}

func (s *QRCodeStore) Snapshot() state.Snapshot[QRCodeData] { return s.state.Snapshot() }

func (s *QRCodeStore) Subscribe(buf int) (<-chan state.Snapshot[QRCodeData], func()) {
	return s.state.Subscribe(buf)
}

// LoadAll fetches every QR code of the user.
func (s *QRCodeStore) LoadAll(ctx context.Context) error {
	return load(ctx, s.base, s.state, "load qr codes",
		getJSON[[]domain.QRCode](s.Gateway, "qr-codes", nil),
		func(d *QRCodeData, codes []domain.QRCode) { d.Codes = codes })
}

// LoadByID fetches one code and makes it current. id is either the numeric
// id or the qrId.
func (s *QRCodeStore) LoadByID(ctx context.Context, id string) error {
	const op = "load qr code"
	path, err := qrPath(id)
	if err != nil {
		return fail(ctx, s.base, s.state, op, err)
	}
	return load(ctx, s.base, s.state, op,
		getJSON[domain.QRCode](s.Gateway, path, nil),
		func(d *QRCodeData, code domain.QRCode) { d.Current = &code })
}

// LoadImage fetches the image of a code. A response without imageData counts
// as a failed attempt. After ImageAttempts failures the store records a
// terminal error and gives up.
func (s *QRCodeStore) LoadImage(ctx context.Context, id string) error {
	const op = "load qr code image"
	path, err := qrPath(id, "image")
	if err != nil {
		return fail(ctx, s.base, s.state, op, err)
	}
	s.state.Update(func(snap *state.Snapshot[QRCodeData]) { snap.IsLoading = true; snap.Err = nil })

	var lastErr error
	for attempt := 1; attempt <= ImageAttempts; attempt++ {
		if attempt > 1 {
			if err := s.Clock.Sleep(ctx, ImageRetryDelay); err != nil {
				lastErr = err
				break
			}
		}
		var img domain.QRCodeImage
		err := s.Gateway.GetJSON(ctx, path, nil, &img)
		if err == nil && img.ImageData == "" {
			err = apperrors.ErrMissingImage
		}
		if err == nil {
			s.state.Update(func(snap *state.Snapshot[QRCodeData]) {
				snap.Data.Image = img.ImageData
				snap.IsLoading = false
				snap.Loaded = true
			})
			s.succeeded(ctx, op)
			return nil
		}
		lastErr = err
		s.Logger.WithContext(ctx).WithError(err).
			WithField("attempt", attempt).Debug("qr code image fetch failed")
	}

	if errors.Is(lastErr, context.Canceled) {
		return fail(ctx, s.base, s.state, op, lastErr)
	}
	return fail(ctx, s.base, s.state, op, imageUnavailable(lastErr))
}

func imageUnavailable(cause error) error {
	d := apperrors.Classify(cause)
	out := *d
	out.Message = MsgImageUnavailable
	out.Technical = fmt.Sprintf("%d attempts: %s", ImageAttempts, d.Technical)
	return &out
}

// ImageBytes decodes the current image. Data URL prefixes are accepted.
func (s *QRCodeStore) ImageBytes() ([]byte, error) {
	data := s.state.Snapshot().Data.Image
	if data == "" {
		return nil, apperrors.ErrMissingImage
	}
	if i := strings.Index(data, ","); strings.HasPrefix(data, "data:") && i >= 0 {
		data = data[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("store: decode qr image: %w", err)
	}
	return raw, nil
}

// Create issues a QR code and appends it to the list.
func (s *QRCodeStore) Create(ctx context.Context, req domain.CreateQRCodeRequest) (domain.QRCode, error) {
	return s.create(ctx, "create qr code", req, "QR code created successfully")
}

// GeneratePayment issues a payment QR code. Unset flags default to true and
// ExpirationMinutes becomes an absolute expiry when ExpiresAt is unset.
func (s *QRCodeStore) GeneratePayment(ctx context.Context, req domain.PaymentQRCodeRequest) (domain.QRCode, error) {
	body := domain.CreateQRCodeRequest{
		WalletNumber:  req.WalletNumber,
		Amount:        req.Amount,
		IsAmountFixed: boolOr(req.IsAmountFixed, true),
		IsOneTime:     boolOr(req.IsOneTime, true),
		Description:   req.Description,
		ExpiresAt:     req.ExpiresAt,
	}
	if body.ExpiresAt == nil && req.ExpirationMinutes > 0 {
		at := s.Clock.Now().Add(time.Duration(req.ExpirationMinutes) * time.Minute)
		body.ExpiresAt = &at
	}
	return s.create(ctx, "generate payment qr code", body, "Payment QR code generated successfully")
}

func (s *QRCodeStore) create(ctx context.Context, op string, body domain.CreateQRCodeRequest, success string) (domain.QRCode, error) {
	return process(ctx, s.base, s.state, op,
		postJSON[domain.QRCode](s.Gateway, "qr-codes", body),
		func(d *QRCodeData, code domain.QRCode) {
			d.Codes = appended(d.Codes, code)
			d.Current = &code
		}, success)
}

// Pay pays the code identified by id.
func (s *QRCodeStore) Pay(ctx context.Context, id string, req domain.QRPaymentRequest) (domain.Transaction, error) {
	const op = "pay qr code"
	path, err := qrPath(id, "pay")
	if err != nil {
		return domain.Transaction{}, fail(ctx, s.base, s.state, op, err)
	}
	tx, err := process(ctx, s.base, s.state, op,
		postJSON[domain.Transaction](s.Gateway, path, req),
		nil, "Payment processed successfully")
	if err != nil {
		return tx, err
	}
	if s.AfterPayment != nil {
		if err := s.AfterPayment(ctx); err != nil {
			s.Logger.WithContext(ctx).WithError(err).Warn("reload after payment failed")
		}
	}
	return tx, nil
}

// Deactivate disables a code and swaps the answer into the list and current.
func (s *QRCodeStore) Deactivate(ctx context.Context, id string) (domain.QRCode, error) {
	const op = "deactivate qr code"
	path, err := qrPath(id, "deactivate")
	if err != nil {
		return domain.QRCode{}, fail(ctx, s.base, s.state, op, err)
	}
	return process(ctx, s.base, s.state, op,
		postJSON[domain.QRCode](s.Gateway, path, nil),
		func(d *QRCodeData, code domain.QRCode) {
			d.Codes = replaced(d.Codes, code, sameQRCode)
			if d.Current != nil && sameQRCode(*d.Current, code) {
				d.Current = &code
			}
		}, "QR code deactivated successfully")
}

func (s *QRCodeStore) ClearError() { clearError(s.state) }

// Reset returns the store to its initial state.
func (s *QRCodeStore) Reset() { s.state.Reset() }

// qrPath builds qr-codes/{id}[/suffix]. The id must be a single path
// segment; it is escaped so it can never address another resource.
func qrPath(id string, suffix ...string) (string, error) {
	if err := qrscan.CheckID(id); err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrInvalidQRCode, err)
	}
	p := "qr-codes/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p, nil
}

// QRCodeID renders a numeric id for the id-taking methods.
func QRCodeID(id int64) string { return strconv.FormatInt(id, 10) }

func sameQRCode(a, b domain.QRCode) bool {
	if a.ID != 0 && b.ID != 0 {
		return a.ID == b.ID
	}
	return a.QRID != "" && a.QRID == b.QRID
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
