package cognito

import (
	"context"
	"errors"

	"github.com/arvigo/idsession"
)

// FetchProfile returns the attribute map with wire booleans normalized.
func (c *Client) FetchProfile(ctx context.Context, session *idsession.Session) (idsession.ProfileAttributes, error) {
	const op = "cognito.FetchProfile"

	resp, err := c.getUser(ctx, op, session)
	if err != nil {
		return nil, err
	}

	attrs := make(idsession.ProfileAttributes, len(resp.UserAttributes))
	for _, attr := range resp.UserAttributes {
		attrs[attr.Name] = idsession.NormalizeAttributeValue(attr.Value)
	}
	return attrs, nil
}

// UpdateProfile writes attribute values, stringified for the wire.
func (c *Client) UpdateProfile(ctx context.Context, session *idsession.Session, attrs idsession.ProfileAttributes) error {
	const op = "cognito.UpdateProfile"

	wire := make([]wireAttribute, 0, len(attrs))
	for name, value := range attrs {
		wire = append(wire, wireAttribute{Name: name, Value: attributeString(value)})
	}

	return c.call(ctx, "UpdateUserAttributes", op, updateUserAttributesRequest{
		AccessToken:    session.AccessToken(),
		UserAttributes: wire,
	}, nil)
}

// RequestAttributeVerification sends a verification code for one attribute.
func (c *Client) RequestAttributeVerification(ctx context.Context, session *idsession.Session, attribute string) (string, error) {
	const op = "cognito.RequestAttributeVerification"

	var resp getUserAttributeVerificationCodeResponse
	err := c.call(ctx, "GetUserAttributeVerificationCode", op, getUserAttributeVerificationCodeRequest{
		AccessToken:   session.AccessToken(),
		AttributeName: attribute,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.CodeDeliveryDetails == nil {
		return "", nil
	}
	return resp.CodeDeliveryDetails.Destination, nil
}

// ConfirmAttributeVerification redeems an attribute verification code.
func (c *Client) ConfirmAttributeVerification(ctx context.Context, session *idsession.Session, attribute, code string) error {
	const op = "cognito.ConfirmAttributeVerification"
	return c.call(ctx, "VerifyUserAttribute", op, verifyUserAttributeRequest{
		AccessToken:   session.AccessToken(),
		AttributeName: attribute,
		Code:          code,
	}, nil)
}

// IssueSecondFactorSecret starts software-token enrollment.
func (c *Client) IssueSecondFactorSecret(ctx context.Context, session *idsession.Session) (string, error) {
	const op = "cognito.IssueSecondFactorSecret"

	var resp associateSoftwareTokenResponse
	err := c.call(ctx, "AssociateSoftwareToken", op, associateSoftwareTokenRequest{
		AccessToken: session.AccessToken(),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.SecretCode == "" {
		return "", idsession.E(idsession.KindProviderUnreachable, op,
			errors.New("response carried no secret"))
	}
	return resp.SecretCode, nil
}

// ConfirmSecondFactor verifies the first code against the associated secret
// and records the device label.
func (c *Client) ConfirmSecondFactor(ctx context.Context, session *idsession.Session, code, deviceLabel string) error {
	const op = "cognito.ConfirmSecondFactor"

	var resp verifySoftwareTokenResponse
	err := c.call(ctx, "VerifySoftwareToken", op, verifySoftwareTokenRequest{
		AccessToken:        session.AccessToken(),
		UserCode:           code,
		FriendlyDeviceName: deviceLabel,
	}, &resp)
	if err != nil {
		return err
	}
	if resp.Status != "SUCCESS" {
		return idsession.E(idsession.KindCodeMismatch, op,
			errors.New("software token verification returned "+resp.Status))
	}
	return nil
}

// SetSecondFactorEnabled toggles the software-token MFA preference.
func (c *Client) SetSecondFactorEnabled(ctx context.Context, session *idsession.Session, enabled bool) error {
	const op = "cognito.SetSecondFactorEnabled"
	return c.call(ctx, "SetUserMFAPreference", op, setUserMFAPreferenceRequest{
		AccessToken: session.AccessToken(),
		SoftwareTokenMfaSettings: &softwareTokenMfaSettings{
			Enabled:      enabled,
			PreferredMfa: enabled,
		},
	}, nil)
}

// SecondFactorStatus reports whether the software token is the preferred
// second factor.
func (c *Client) SecondFactorStatus(ctx context.Context, session *idsession.Session) (bool, error) {
	const op = "cognito.SecondFactorStatus"

	resp, err := c.getUser(ctx, op, session)
	if err != nil {
		return false, err
	}
	if resp.PreferredMfaSetting == challengeSoftwareTokenMFA {
		return true, nil
	}
	for _, setting := range resp.UserMFASettingList {
		if setting == challengeSoftwareTokenMFA {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) getUser(ctx context.Context, op string, session *idsession.Session) (*getUserResponse, error) {
	var resp getUserResponse
	err := c.call(ctx, "GetUser", op, getUserRequest{
		AccessToken: session.AccessToken(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
