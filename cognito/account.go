package cognito

import (
	"context"

	"github.com/arvigo/idsession"
)

// Register creates the account with the identity doubling as the email
// attribute, matching pools configured for email sign-in.
func (c *Client) Register(ctx context.Context, identity, secret string) (*idsession.Registration, error) {
	const op = "cognito.Register"

	var resp signUpResponse
	err := c.call(ctx, "SignUp", op, signUpRequest{
		ClientID:   c.clientID,
		SecretHash: c.secretHash(identity),
		Username:   identity,
		Password:   secret,
		UserAttributes: []wireAttribute{
			{Name: "email", Value: identity},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	reg := &idsession.Registration{Confirmed: resp.UserConfirmed}
	if resp.CodeDeliveryDetails != nil {
		reg.CodeDestination = resp.CodeDeliveryDetails.Destination
	}
	return reg, nil
}

// ConfirmRegistration redeems the sign-up confirmation code.
func (c *Client) ConfirmRegistration(ctx context.Context, identity, code string) error {
	const op = "cognito.ConfirmRegistration"
	return c.call(ctx, "ConfirmSignUp", op, confirmSignUpRequest{
		ClientID:         c.clientID,
		SecretHash:       c.secretHash(identity),
		Username:         identity,
		ConfirmationCode: code,
	}, nil)
}

// ResendConfirmationCode requests a fresh sign-up code.
func (c *Client) ResendConfirmationCode(ctx context.Context, identity string) (string, error) {
	const op = "cognito.ResendConfirmationCode"

	var resp resendConfirmationCodeResponse
	err := c.call(ctx, "ResendConfirmationCode", op, resendConfirmationCodeRequest{
		ClientID:   c.clientID,
		SecretHash: c.secretHash(identity),
		Username:   identity,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.CodeDeliveryDetails == nil {
		return "", nil
	}
	return resp.CodeDeliveryDetails.Destination, nil
}

// RequestPasswordReset starts the forgot-password flow.
func (c *Client) RequestPasswordReset(ctx context.Context, identity string) (string, error) {
	const op = "cognito.RequestPasswordReset"

	var resp forgotPasswordResponse
	err := c.call(ctx, "ForgotPassword", op, forgotPasswordRequest{
		ClientID:   c.clientID,
		SecretHash: c.secretHash(identity),
		Username:   identity,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.CodeDeliveryDetails == nil {
		return "", nil
	}
	return resp.CodeDeliveryDetails.Destination, nil
}

// ConfirmPasswordReset redeems the reset code with the replacement secret.
func (c *Client) ConfirmPasswordReset(ctx context.Context, identity, code, newSecret string) error {
	const op = "cognito.ConfirmPasswordReset"
	return c.call(ctx, "ConfirmForgotPassword", op, confirmForgotPasswordRequest{
		ClientID:         c.clientID,
		SecretHash:       c.secretHash(identity),
		Username:         identity,
		ConfirmationCode: code,
		Password:         newSecret,
	}, nil)
}
