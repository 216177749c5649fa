package authengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldposta/authproxy/internal/authengine"
	"github.com/worldposta/authproxy/internal/cloud2fa"
	"github.com/worldposta/authproxy/internal/cloud2fa/cloud2famock"
	"github.com/worldposta/authproxy/internal/directory"
	"github.com/worldposta/authproxy/internal/directory/directorymock"
)

// generateOTPFixture returns a syntactically valid 6-digit code: the engine
// never verifies it locally (VerifyTOTP is always a cloud round trip), but
// ParsePassword's OTP-shape check demands six-plus digits.
func generateOTPFixture(t *testing.T) string {
	t.Helper()

	code, err := totp.GenerateCode("JBSWY3DPEHPK3PXP", time.Now())
	require.NoError(t, err)

	return code
}

func TestAuthenticateOTPFlowWithGomockFixtures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dir := directorymock.NewMockClient(ctrl)
	cloud := cloud2famock.NewMockClient(ctrl)

	dir.EXPECT().ResolveDN("alice").Return("cn=alice,dc=example,dc=com", true, nil)
	dir.EXPECT().BindAsUser("cn=alice,dc=example,dc=com", "hunter2").Return(directory.BindErrorNone)

	otpCode := generateOTPFixture(t)
	cloud.EXPECT().VerifyTOTP(gomock.Any(), "alice", otpCode).Return(true, nil)

	engine := authengine.New(dir, cloud, time.Second, false, logrus.NewEntry(logrus.New()))

	result, _ := engine.Authenticate(context.Background(), authengine.Request{
		Username: "alice",
		Password: "hunter2," + otpCode,
	})

	assert.Equal(t, authengine.ResultSuccess, result)
}

func TestAuthenticateOTPFlowRejectsInvalidCode(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dir := directorymock.NewMockClient(ctrl)
	cloud := cloud2famock.NewMockClient(ctrl)

	dir.EXPECT().ResolveDN("alice").Return("cn=alice,dc=example,dc=com", true, nil)
	dir.EXPECT().BindAsUser("cn=alice,dc=example,dc=com", "hunter2").Return(directory.BindErrorNone)

	otpCode := generateOTPFixture(t)
	cloud.EXPECT().VerifyTOTP(gomock.Any(), "alice", otpCode).Return(false, nil)

	engine := authengine.New(dir, cloud, time.Second, false, logrus.NewEntry(logrus.New()))

	result, _ := engine.Authenticate(context.Background(), authengine.Request{
		Username: "alice",
		Password: "hunter2," + otpCode,
	})

	assert.Equal(t, authengine.ResultOTPInvalid, result)
}

func TestAuthenticatePushFlowDeniedWithGomockFixtures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dir := directorymock.NewMockClient(ctrl)
	cloud := cloud2famock.NewMockClient(ctrl)

	dir.EXPECT().ResolveDN("bob").Return("cn=bob,dc=example,dc=com", true, nil)
	dir.EXPECT().BindAsUser("cn=bob,dc=example,dc=com", "hunter2").Return(directory.BindErrorNone)

	cloud.EXPECT().SendPush(gomock.Any(), "bob", gomock.Any()).Return("req-1", nil)
	cloud.EXPECT().AwaitPush(gomock.Any(), "req-1", gomock.Any()).Return(cloud2fa.PushDenied)

	engine := authengine.New(dir, cloud, time.Second, false, logrus.NewEntry(logrus.New()))

	result, _ := engine.Authenticate(context.Background(), authengine.Request{
		Username: "bob",
		Password: "hunter2,push",
	})

	assert.Equal(t, authengine.ResultPushDenied, result)
}
