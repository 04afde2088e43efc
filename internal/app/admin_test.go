package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMediaStore struct {
	uploaded []string
	deleted  []string
	err      error
}

func (m *fakeMediaStore) UploadImage(ctx context.Context, file io.Reader, filename string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	url := "https://res.cloudinary.com/demo/image/upload/v1/payment_settings/" + filename
	m.uploaded = append(m.uploaded, url)
	return url, nil
}

func (m *fakeMediaStore) DeleteImage(ctx context.Context, imageURL string) error {
	m.deleted = append(m.deleted, imageURL)
	return nil
}

func TestPlatformStats(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	_, investor, campaign := setupFundedCampaign(t, env, 100000)
	admin := env.repo.addUser("Meera", domain.RoleAdmin)
	contribute(t, env, investor, campaign, 5000)
	contribute(t, env, investor, campaign, 2500)

	_, err := env.svc.PlatformStats(ctx, investor)
	assert.ErrorIs(t, err, ErrForbidden)

	stats, err := env.svc.PlatformStats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.PlatformStats{
		Users:               3,
		Vendors:             1,
		Investors:           1,
		Campaigns:           1,
		ActiveCampaigns:     1,
		Contributions:       2,
		TotalVerifiedAmount: 7500,
	}, *stats)
}

func TestUpdatePaymentSettings(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	admin := env.repo.addUser("Meera", domain.RoleAdmin)

	_, err := env.svc.PaymentSettings(ctx)
	assert.ErrorIs(t, err, ErrPaymentNotConfigured)

	_, err = env.svc.UpdatePaymentSettings(ctx, admin, domain.PaymentSettings{UPIID: "fundlink@upi"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.UpdatePaymentSettings(ctx, admin, domain.PaymentSettings{QRCodeURL: "javascript:alert(1)"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	saved, err := env.svc.UpdatePaymentSettings(ctx, admin, domain.PaymentSettings{QRCodeURL: " https://cdn.example.com/qr.png ", UPIID: "fundlink@upi"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/qr.png", saved.QRCodeURL)

	got, err := env.svc.PaymentSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fundlink@upi", got.UPIID)
}

func TestUploadPaymentQR(t *testing.T) {
	ctx := context.Background()

	bare := newTestEnv()
	admin := bare.repo.addUser("Meera", domain.RoleAdmin)
	_, err := bare.svc.UploadPaymentQR(ctx, admin, strings.NewReader("png"), "qr.png")
	assert.ErrorIs(t, err, ErrMediaStoreUnavailable)

	media := &fakeMediaStore{}
	env := newTestEnv(func(d *Dependencies) { d.Media = media })
	admin = env.repo.addUser("Meera", domain.RoleAdmin)
	_, err = env.svc.UpdatePaymentSettings(ctx, admin, domain.PaymentSettings{QRCodeURL: "https://cdn.example.com/old.png", BankName: "State Bank"})
	require.NoError(t, err)

	updated, err := env.svc.UploadPaymentQR(ctx, admin, strings.NewReader("png"), "qr.png")
	require.NoError(t, err)
	assert.Equal(t, media.uploaded[0], updated.QRCodeURL)
	assert.Equal(t, "State Bank", updated.BankName)
	assert.Equal(t, []string{"https://cdn.example.com/old.png"}, media.deleted)

	media.err = errors.New("cloudinary down")
	_, err = env.svc.UploadPaymentQR(ctx, admin, strings.NewReader("png"), "qr2.png")
	assert.Error(t, err)
}

func TestDeleteUserRules(t *testing.T) {
	env := newTestEnv()
	admin := env.repo.addUser("Meera", domain.RoleAdmin)
	err := env.svc.DeleteUser(context.Background(), admin, admin.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeleteUserPurgesKeyValueRecords(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	admin := env.repo.addUser("Meera", domain.RoleAdmin)
	vendor := env.repo.addUser("Asha", domain.RoleVendor)
	investor := env.repo.addUser("Ravi", domain.RoleInvestor)
	otherVendor := env.repo.addUser("Kiran", domain.RoleVendor)

	_, err := env.svc.SchedulePost(ctx, vendor, domain.CreatePostRequest{Content: "Harvest sale", ScheduledAt: env.svc.now().Add(2 * time.Minute)})
	require.NoError(t, err)
	_, err = env.svc.SchedulePost(ctx, otherVendor, domain.CreatePostRequest{Content: "Open house", ScheduledAt: env.svc.now().Add(time.Hour)})
	require.NoError(t, err)
	_, err = env.svc.RequestConnection(ctx, vendor, domain.CreateConnectionRequest{InvestorID: investor.ID})
	require.NoError(t, err)
	_, err = env.svc.Notify(ctx, vendor.ID, domain.NotificationPostReminder, "Time to post", "soon")
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteUser(ctx, admin, vendor.ID))

	notifications, err := env.svc.ListNotifications(ctx, vendor)
	require.NoError(t, err)
	assert.Empty(t, notifications)
	connections, err := env.svc.ListConnections(ctx, investor)
	require.NoError(t, err)
	assert.Empty(t, connections)
	remaining, err := env.svc.posts.List(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, otherVendor.ID, remaining[0].VendorID)

	// The deleted vendor's post no longer produces reminders.
	reminded, _, err := env.svc.ProcessPostReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, reminded)
}
