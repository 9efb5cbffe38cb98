package cognito

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvigo/idsession"
)

func testSession() *idsession.Session {
	return idsession.NewSession("access-1", "id-1", "refresh-1")
}

func TestFetchProfileNormalizesBooleans(t *testing.T) {
	client := newTestServer(t, map[string]func(*testing.T, map[string]any) (int, any){
		"GetUser": func(t *testing.T, body map[string]any) (int, any) {
			assert.Equal(t, "access-1", body["AccessToken"])
			return http.StatusOK, map[string]any{
				"Username": "alice@example.com",
				"UserAttributes": []map[string]any{
					{"Name": "email", "Value": "alice@example.com"},
					{"Name": "email_verified", "Value": "true"},
					{"Name": "custom:plan", "Value": "pro"},
				},
			}
		},
	})

	attrs, err := client.FetchProfile(context.Background(), testSession())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", attrs["email"])
	assert.Equal(t, true, attrs["email_verified"])
	assert.Equal(t, "pro", attrs["custom:plan"])
}

func TestUpdateProfileStringifiesValues(t *testing.T) {
	client := newTestServer(t, map[string]func(*testing.T, map[string]any) (int, any){
		"UpdateUserAttributes": func(t *testing.T, body map[string]any) (int, any) {
			attrs, ok := body["UserAttributes"].([]any)
			require.True(t, ok)
			seen := map[string]string{}
			for _, raw := range attrs {
				attr := raw.(map[string]any)
				seen[attr["Name"].(string)] = attr["Value"].(string)
			}
			assert.Equal(t, "Alice", seen["name"])
			assert.Equal(t, "true", seen["custom:beta"])
			return http.StatusOK, map[string]any{}
		},
	})

	err := client.UpdateProfile(context.Background(), testSession(), idsession.ProfileAttributes{
		"name":        "Alice",
		"custom:beta": true,
	})
	assert.NoError(t, err)
}

func TestAttributeVerificationRoundTrip(t *testing.T) {
	client := newTestServer(t, map[string]func(*testing.T, map[string]any) (int, any){
		"GetUserAttributeVerificationCode": func(t *testing.T, body map[string]any) (int, any) {
			assert.Equal(t, "email", body["AttributeName"])
			return http.StatusOK, map[string]any{
				"CodeDeliveryDetails": map[string]any{"Destination": "a***@e***.com"},
			}
		},
		"VerifyUserAttribute": func(t *testing.T, body map[string]any) (int, any) {
			assert.Equal(t, "email", body["AttributeName"])
			assert.Equal(t, "999999", body["Code"])
			return http.StatusOK, map[string]any{}
		},
	})

	dest, err := client.RequestAttributeVerification(context.Background(), testSession(), "email")
	require.NoError(t, err)
	assert.Equal(t, "a***@e***.com", dest)

	err = client.ConfirmAttributeVerification(context.Background(), testSession(), "email", "999999")
	assert.NoError(t, err)
}

func TestIssueSecondFactorSecret(t *testing.T) {
	client := newTestServer(t, map[string]func(*testing.T, map[string]any) (int, any){
		"AssociateSoftwareToken": func(t *testing.T, body map[string]any) (int, any) {
			assert.Equal(t, "access-1", body["AccessToken"])
			return http.StatusOK, map[string]any{"SecretCode": "JBSWY3DPEHPK3PXP"}
		},
	})

	secret, err := client.IssueSecondFactorSecret(context.Background(), testSession())
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", secret)
}

func TestIssueSecondFactorSecretEmptyResponse(t *testing.T) {
	client := newTestServer(t, map[string]func(*testing.T, map[string]any) (int, any){
		"AssociateSoftwareToken": func(t *testing.T, body map[string]any) (int, any) {
			return http.StatusOK, map[string]any{}
		},
	})

	_, err := client.IssueSecondFactorSecret(context.Background(), testSession())
	assert.True(t, idsession.IsKind(err, idsession.KindProviderUnreachable), "err = %v", err)
}

func TestConfirmSecondFactor(t *testing.T) {
	client := newTestServer(t, map[string]func(*testing.T, map[string]any) (int, any){
		"VerifySoftwareToken": func(t *testing.T, body map[string]any) (int, any) {
			assert.Equal(t, "123456", body["UserCode"])
			assert.Equal(t, "alice-phone", body["FriendlyDeviceName"])
			return http.StatusOK, map[string]any{"Status": "SUCCESS"}
		},
	})

	err := client.ConfirmSecondFactor(context.Background(), testSession(), "123456", "alice-phone")
	assert.NoError(t, err)
}

func TestConfirmSecondFactorRejectedStatus(t *testing.T) {
	client := newTestServer(t, map[string]func(*testing.T, map[string]any) (int, any){
		"VerifySoftwareToken": func(t *testing.T, body map[string]any) (int, any) {
			return http.StatusOK, map[string]any{"Status": "ERROR"}
		},
	})

	err := client.ConfirmSecondFactor(context.Background(), testSession(), "000000", "")
	assert.True(t, idsession.IsKind(err, idsession.KindCodeMismatch), "err = %v", err)
}

func TestSetSecondFactorEnabled(t *testing.T) {
	var wantEnabled bool
	client := newTestServer(t, map[string]func(*testing.T, map[string]any) (int, any){
		"SetUserMFAPreference": func(t *testing.T, body map[string]any) (int, any) {
			settings, ok := body["SoftwareTokenMfaSettings"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, wantEnabled, settings["Enabled"])
			assert.Equal(t, wantEnabled, settings["PreferredMfa"])
			return http.StatusOK, map[string]any{}
		},
	})

	wantEnabled = true
	require.NoError(t, client.SetSecondFactorEnabled(context.Background(), testSession(), true))
	wantEnabled = false
	require.NoError(t, client.SetSecondFactorEnabled(context.Background(), testSession(), false))
}

func TestSecondFactorStatus(t *testing.T) {
	cases := []struct {
		name string
		resp map[string]any
		want bool
	}{
		{
			name: "preferred",
			resp: map[string]any{"PreferredMfaSetting": "SOFTWARE_TOKEN_MFA"},
			want: true,
		},
		{
			name: "listed only",
			resp: map[string]any{"UserMFASettingList": []string{"SOFTWARE_TOKEN_MFA"}},
			want: true,
		},
		{
			name: "sms only",
			resp: map[string]any{"PreferredMfaSetting": "SMS_MFA", "UserMFASettingList": []string{"SMS_MFA"}},
			want: false,
		},
		{
			name: "disabled",
			resp: map[string]any{},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestServer(t, map[string]func(*testing.T, map[string]any) (int, any){
				"GetUser": func(t *testing.T, body map[string]any) (int, any) {
					return http.StatusOK, tc.resp
				},
			})

			enabled, err := client.SecondFactorStatus(context.Background(), testSession())
			require.NoError(t, err)
			assert.Equal(t, tc.want, enabled)
		})
	}
}
